package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// ErrNoObservations is returned when no case row survived parsing.
var ErrNoObservations = errors.New("no valid observations")

// per100k is the per-capita denominator.
const per100k = 1e5

// pctOf pairs each percentage metric with its count and total.
var pctOf = []struct{ pct, count, total Metric }{
	{PositivePct, Positive, Tests},
	{NegativePct, Negative, Tests},
	{PendingPct, Pending, Tests},
	{NewPositivePct, NewPositive, NewTests},
	{NewNegativePct, NewNegative, NewTests},
}

// RowGroup is a run of case rows sharing one grouping key, in input order.
type RowGroup struct {
	Key  string
	Rows []CaseRecord
}

// GroupRows groups rows by exact key match. Groups appear in order of first
// appearance and rows keep their input order.
func GroupRows(rows []CaseRecord, key func(CaseRecord) string) []RowGroup {
	index := make(map[string]int)
	var groups []RowGroup
	for _, r := range rows {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, RowGroup{Key: k})
		}
		groups[i].Rows = append(groups[i].Rows, r)
	}
	return groups
}

func byState(r CaseRecord) string  { return r.State }
func byCounty(r CaseRecord) string { return r.County }

// NormalizeGroup parses one geography's date-ordered rows into a Group.
// Each observation is derived from its raw row and the preceding accepted
// observation: deltas subtract the predecessor's cumulative values (the first
// observation's delta is its own value), testing values for the same FIPS
// and day are merged, and per-capita variants are added when population is
// known. Rows with an invalid date or number are skipped and counted.
func NormalizeGroup(key string, rows []CaseRecord, pop Population, testing *TestingIndex, logger *slog.Logger) (*Group, int) {
	g := &Group{Key: key, Observations: make([]Observation, 0, len(rows))}
	rejected := 0
	var prev *Observation
	for _, row := range rows {
		obs, err := parseCaseRow(row)
		if err != nil {
			rejected++
			logger.Warn("skipping case row", "key", key, "date", row.Date, "error", err)
			continue
		}
		obs = withDeltas(obs, prev)
		if values, ok := testing.Lookup(obs.GeoID, obs.Date); ok {
			obs = withTesting(obs, values)
		}
		if n, ok := pop.Lookup(obs.GeoID); ok {
			obs = withPerCapita(obs, n)
		} else {
			g.NoPopulation = true
		}
		g.Observations = append(g.Observations, obs)
		prev = &g.Observations[len(g.Observations)-1]
	}
	if len(g.Observations) > 0 {
		first := g.Observations[0]
		g.GeoID = first.GeoID
		g.State = first.State
	}
	return g, rejected
}

func parseCaseRow(row CaseRecord) (Observation, error) {
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(row.Date))
	if err != nil {
		return Observation{}, fmt.Errorf("invalid date %q", row.Date)
	}
	cases, err := parseCount(row.Cases)
	if err != nil {
		return Observation{}, fmt.Errorf("invalid cases: %w", err)
	}
	deaths, err := parseCount(row.Deaths)
	if err != nil {
		return Observation{}, fmt.Errorf("invalid deaths: %w", err)
	}
	obs := Observation{Date: date, GeoID: row.FIPS, State: row.State, County: row.County}
	return obs.With(Abs(Cases), cases).With(Abs(Deaths), deaths), nil
}

// parseCount parses a cumulative count. Empty cells count as zero.
func parseCount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

func withDeltas(obs Observation, prev *Observation) Observation {
	for _, pair := range [][2]Metric{{Cases, NewCases}, {Deaths, NewDeaths}} {
		cur, _ := obs.Value(Abs(pair[0]))
		delta := cur
		if prev != nil {
			before, _ := prev.Value(Abs(pair[0]))
			delta = cur - before
		}
		obs = obs.With(Abs(pair[1]), delta)
	}
	return obs
}

func withTesting(obs Observation, values TestingValues) Observation {
	for _, m := range TestingMetrics {
		if v, ok := values[m]; ok {
			obs = obs.With(Abs(m), v)
		}
	}
	for _, p := range pctOf {
		count, okCount := obs.Value(Abs(p.count))
		total, okTotal := obs.Value(Abs(p.total))
		if okCount && okTotal && total != 0 {
			obs = obs.With(Abs(p.pct), count/total)
		}
	}
	return obs
}

func withPerCapita(obs Observation, population int) Observation {
	obs.Population = population
	factor := float64(population) / per100k
	for m := Metric(0); m < numMetrics; m++ {
		if m.IsPercent() {
			continue
		}
		if v, ok := obs.Value(Abs(m)); ok {
			obs = obs.With(PerCapitaOf(m), v/factor)
		}
	}
	return obs
}

// BuildStates normalizes state-level case rows into the state Dataset.
// Testing may be nil, in which case testing fields are not tracked.
func BuildStates(cases []CaseRecord, pop Population, testing *TestingIndex, logger *slog.Logger) (*Dataset, error) {
	groups, rejected := normalizeGroups(GroupRows(cases, byState), pop, testing, logger)
	if len(groups) == 0 {
		return nil, fmt.Errorf("build states: %w", ErrNoObservations)
	}
	ds := newDataset(LevelStates, "", groups, testing != nil)
	ds.RejectedRows = rejected
	if testing != nil {
		ds.RejectedRows += testing.Rejected
		ds.DuplicateTesting = testing.Duplicates
	}
	logger.Info("built state dataset",
		"groups", len(ds.Groups),
		"rejected", ds.RejectedRows,
		"missing_population", ds.MissingPopulation,
	)
	return ds, nil
}

// BuildCounties normalizes county-level case rows into one Dataset per state,
// each with its own Extents.
func BuildCounties(cases []CaseRecord, pop Population, logger *slog.Logger) (CountyIndex, error) {
	index := make(CountyIndex)
	total := 0
	for _, state := range GroupRows(cases, byState) {
		groups, rejected := normalizeGroups(GroupRows(state.Rows, byCounty), pop, nil, logger)
		if len(groups) == 0 {
			logger.Warn("no valid county rows for state", "state", state.Key)
			continue
		}
		ds := newDataset(LevelCounties, state.Key, groups, false)
		ds.RejectedRows = rejected
		index[state.Key] = ds
		total += len(groups)
	}
	if len(index) == 0 {
		return nil, fmt.Errorf("build counties: %w", ErrNoObservations)
	}
	logger.Info("built county index", "states", len(index), "counties", total)
	return index, nil
}

func normalizeGroups(rowGroups []RowGroup, pop Population, testing *TestingIndex, logger *slog.Logger) ([]*Group, int) {
	groups := make([]*Group, 0, len(rowGroups))
	rejected := 0
	for _, rg := range rowGroups {
		g, n := NormalizeGroup(rg.Key, rg.Rows, pop, testing, logger)
		rejected += n
		if len(g.Observations) == 0 {
			continue
		}
		groups = append(groups, g)
	}
	return groups, rejected
}
