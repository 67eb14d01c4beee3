package pipeline_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/pipeline"
)

func caseRow(date, state, county, fips, cases string) domain.CaseRecord {
	return domain.CaseRecord{Date: date, State: state, County: county, FIPS: fips, Cases: cases, Deaths: "0"}
}

func newBuilder() (*pipeline.Inputs, *pipeline.Store, *pipeline.Builder) {
	inputs := pipeline.NewInputs()
	store := pipeline.NewStore()
	return inputs, store, pipeline.NewBuilder(inputs, store, discardLogger(), observability.NewMetricsForTesting())
}

func TestStore_Readiness(t *testing.T) {
	store := pipeline.NewStore()
	require.Error(t, store.CheckReadiness(context.Background()))
	assert.Nil(t, store.States())
	assert.Nil(t, store.Counties())

	store.SetStates(&domain.Dataset{Level: domain.LevelStates})
	require.NoError(t, store.CheckReadiness(context.Background()))

	store.SetCounties(domain.CountyIndex{"Ohio": {Level: domain.LevelCounties, Scope: "Ohio"}})
	assert.Equal(t, []string{"Ohio"}, store.Counties().States())
}

func TestInputs_MergeUpsertsAndOrders(t *testing.T) {
	inputs := pipeline.NewInputs()
	inputs.SetStates([]domain.CaseRecord{
		caseRow("2020-03-01", "Ohio", "", "39", "1"),
		caseRow("2020-03-02", "Ohio", "", "39", "3"),
	}, nil, nil)

	ch := inputs.Merge([]domain.RawRecord{
		{Kind: domain.KindCases, Level: domain.LevelStates, Date: "2020-03-02", State: "Ohio", FIPS: "39", Cases: "4"},
		{Kind: domain.KindCases, Level: domain.LevelStates, Date: "2020-03-03", State: "Utah", FIPS: "49", Cases: "2"},
		{Kind: domain.KindCases, Level: domain.LevelStates, Date: "2020-02-29", State: "Utah", FIPS: "49", Cases: "1"},
		{Kind: domain.KindCases, Level: domain.LevelCounties, Date: "2020-03-03", State: "Ohio", County: "Franklin", FIPS: "39049", Cases: "1"},
	})
	assert.True(t, ch.States)
	assert.Equal(t, map[string]bool{"Ohio": true}, ch.CountyStates)
	assert.False(t, ch.AllCounties)

	cases, _, tests := inputs.StateInputs()
	assert.Nil(t, tests, "no testing data supplied")
	got := make([]string, len(cases))
	for i, c := range cases {
		got[i] = c.Date + " " + c.State + " " + c.Cases
	}
	want := []string{
		"2020-02-29 Utah 1",
		"2020-03-01 Ohio 1",
		"2020-03-02 Ohio 4",
		"2020-03-03 Utah 2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged rows mismatch (-want +got):\n%s", diff)
	}

	countyCases, _ := inputs.CountyInputs()
	assert.Len(t, countyCases, 1)
}

func TestInputs_Changes(t *testing.T) {
	inputs := pipeline.NewInputs()
	assert.True(t, inputs.Merge(nil).Empty())

	ch := inputs.Merge([]domain.RawRecord{{Kind: domain.KindPopulation, Level: domain.LevelCounties, FIPS: "39049", Pop: "1"}})
	assert.True(t, ch.AllCounties)
	assert.False(t, ch.States)

	ch = inputs.Merge([]domain.RawRecord{{Kind: domain.KindTesting, Level: domain.LevelStates, FIPS: "39", Date: "20200301"}})
	assert.True(t, ch.States)
	_, _, tests := inputs.StateInputs()
	assert.Len(t, tests, 1)
}

func TestBuilder_RebuildStates(t *testing.T) {
	inputs, store, b := newBuilder()
	inputs.SetStates(
		[]domain.CaseRecord{caseRow("2020-03-01", "Ohio", "", "39", "10"), caseRow("2020-03-02", "Ohio", "", "39", "15")},
		[]domain.PopulationRecord{{FIPS: "39", Pop: "1000000"}},
		[]domain.TestingRecord{{Date: "20200302", FIPS: "39", Positive: "5", Total: "50"}},
	)

	ds, err := b.RebuildStates()
	require.NoError(t, err)
	assert.Same(t, ds, store.States())
	assert.True(t, ds.HasTesting)

	g, ok := ds.Group("Ohio")
	require.True(t, ok)
	last, _ := g.Last()
	v, ok := last.Value(domain.Abs(domain.PositivePct))
	require.True(t, ok)
	assert.InDelta(t, 0.1, v, 1e-9)
	v, _ = last.Value(domain.PerCapitaOf(domain.NewCases))
	assert.InDelta(t, 0.5, v, 1e-9)
}

func TestBuilder_RebuildStatesErrorKeepsPrevious(t *testing.T) {
	inputs, store, b := newBuilder()
	inputs.SetStates([]domain.CaseRecord{caseRow("2020-03-01", "Ohio", "", "39", "1")}, nil, nil)
	prev, err := b.RebuildStates()
	require.NoError(t, err)

	inputs.SetStates([]domain.CaseRecord{caseRow("garbage", "Ohio", "", "39", "1")}, nil, nil)
	_, err = b.RebuildStates()
	require.ErrorIs(t, err, domain.ErrNoObservations)
	assert.Same(t, prev, store.States())
}

func TestBuilder_RebuildCountiesScoped(t *testing.T) {
	inputs, store, b := newBuilder()
	inputs.SetCounties([]domain.CaseRecord{
		caseRow("2020-03-01", "Ohio", "Franklin", "39049", "1"),
		caseRow("2020-03-01", "Utah", "Salt Lake", "49035", "2"),
	}, nil)
	all, err := b.RebuildCounties(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	utah := store.Counties()["Utah"]

	inputs.Merge([]domain.RawRecord{{Kind: domain.KindCases, Level: domain.LevelCounties, Date: "2020-03-02", State: "Ohio", County: "Franklin", FIPS: "39049", Cases: "5"}})
	built, err := b.RebuildCounties(map[string]bool{"Ohio": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ohio"}, built.States())

	idx := store.Counties()
	assert.Equal(t, []string{"Ohio", "Utah"}, idx.States())
	assert.Same(t, utah, idx["Utah"], "untouched states keep their dataset")
	g, _ := idx["Ohio"].Group("Franklin")
	assert.Len(t, g.Observations, 2)
}

func TestBuilder_Refresh(t *testing.T) {
	inputs, store, b := newBuilder()
	inputs.SetStates([]domain.CaseRecord{
		caseRow("2020-03-01", "Ohio", "", "39", "1"),
		caseRow("2020-03-01", "Utah", "", "49", "1"),
	}, nil, nil)
	inputs.SetCounties([]domain.CaseRecord{caseRow("2020-03-01", "Ohio", "Franklin", "39049", "1")}, nil)
	_, err := b.RebuildStates()
	require.NoError(t, err)

	obs, err := b.Refresh(context.Background(), []domain.RawRecord{
		{Kind: domain.KindCases, Level: domain.LevelStates, Date: "2020-03-02", State: "Ohio", FIPS: "39", Cases: "7"},
		{Kind: domain.KindCases, Level: domain.LevelCounties, Date: "2020-03-02", State: "Ohio", County: "Franklin", FIPS: "39049", Cases: "4"},
	})
	require.NoError(t, err)
	require.Len(t, obs, 3, "two states and one county")

	assert.Equal(t, "Ohio", obs[0].State)
	assert.Equal(t, time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC), obs[0].Date)
	v, _ := obs[0].Value(domain.Abs(domain.NewCases))
	assert.InDelta(t, 6, v, 0)
	assert.Equal(t, "Utah", obs[1].State)
	assert.Equal(t, "Franklin", obs[2].County)

	assert.Equal(t, store.States().LastDate, obs[0].Date)
	assert.Nil(t, store.Counties(), "a scoped rebuild before the initial county load is not published")
}

func TestBuilder_ScopedRebuildBeforeLoadNotPublished(t *testing.T) {
	inputs, store, b := newBuilder()
	inputs.SetCounties([]domain.CaseRecord{
		caseRow("2020-03-01", "Ohio", "Franklin", "39049", "1"),
		caseRow("2020-03-01", "Utah", "Salt Lake", "49035", "2"),
	}, nil)

	built, err := b.RebuildCounties(map[string]bool{"Ohio": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ohio"}, built.States())
	assert.Nil(t, store.Counties())

	_, err = b.RebuildCounties(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Ohio", "Utah"}, store.Counties().States())
}

func TestBuilder_ConcurrentRebuildsKeepFullIndex(t *testing.T) {
	for range 50 {
		inputs, store, b := newBuilder()
		inputs.SetCounties([]domain.CaseRecord{
			caseRow("2020-03-01", "Ohio", "Franklin", "39049", "1"),
			caseRow("2020-03-01", "Utah", "Salt Lake", "49035", "2"),
		}, nil)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = b.RebuildCounties(nil)
		}()
		go func() {
			defer wg.Done()
			_, _ = b.RebuildCounties(map[string]bool{"Ohio": true})
		}()
		wg.Wait()

		require.Equal(t, []string{"Ohio", "Utah"}, store.Counties().States())
	}
}

func TestBuilder_RefreshNothing(t *testing.T) {
	_, _, b := newBuilder()
	obs, err := b.Refresh(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, obs)
}
