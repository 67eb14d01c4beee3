package pipeline

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
)

// Builder normalizes the accumulated inputs and swaps the results into the
// store. Rebuilds are serialized so a scoped county rebuild never merges
// into an index that a concurrent full rebuild is replacing.
type Builder struct {
	inputs  *Inputs
	store   *Store
	logger  *slog.Logger
	metrics *observability.Metrics

	mu sync.Mutex
}

// NewBuilder creates a Builder over inputs publishing to store.
func NewBuilder(inputs *Inputs, store *Store, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{inputs: inputs, store: store, logger: logger, metrics: metrics}
}

// RebuildStates builds the state dataset from the current inputs and
// publishes it. The previous dataset stays published on error.
func (b *Builder) RebuildStates() (*domain.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()
	level := string(domain.LevelStates)
	cases, popRecords, testingRecords := b.inputs.StateInputs()

	pop := b.population(popRecords)
	var idx *domain.TestingIndex
	if testingRecords != nil {
		idx = domain.IndexTesting(testingRecords, b.logger)
		b.count("testing", len(testingRecords), idx.Rejected)
		b.metrics.DuplicateTesting.Add(float64(idx.Duplicates))
	}

	ds, err := domain.BuildStates(cases, pop, idx, b.logger)
	if err != nil {
		b.metrics.DatasetBuilds.WithLabelValues(level, "error").Inc()
		return nil, fmt.Errorf("rebuild states: %w", err)
	}
	caseRejected := ds.RejectedRows
	if idx != nil {
		caseRejected -= idx.Rejected
	}
	b.count("cases", len(cases), caseRejected)

	b.store.SetStates(ds)
	b.metrics.DatasetBuilds.WithLabelValues(level, "success").Inc()
	b.metrics.DatasetBuildTime.WithLabelValues(level).Observe(time.Since(start).Seconds())
	b.metrics.DatasetGroups.WithLabelValues(level).Set(float64(len(ds.Groups)))
	return ds, nil
}

// RebuildCounties rebuilds the county datasets of the given states, or of
// every state when states is nil, and publishes the merged index. It
// returns the rebuilt datasets. A scoped rebuild before the first full one
// is not published, so drill-downs keep reporting that counties are loading.
func (b *Builder) RebuildCounties(states map[string]bool) (domain.CountyIndex, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()
	level := string(domain.LevelCounties)
	cases, popRecords := b.inputs.CountyInputs()

	if states != nil {
		filtered := cases[:0:0]
		for _, r := range cases {
			if states[r.State] {
				filtered = append(filtered, r)
			}
		}
		cases = filtered
	}

	built, err := domain.BuildCounties(cases, b.population(popRecords), b.logger)
	if err != nil {
		b.metrics.DatasetBuilds.WithLabelValues(level, "error").Inc()
		return nil, fmt.Errorf("rebuild counties: %w", err)
	}
	rejected := 0
	for _, ds := range built {
		rejected += ds.RejectedRows
	}
	b.count("cases", len(cases), rejected)

	merged := built
	if states != nil {
		current := b.store.Counties()
		if current == nil {
			b.logger.Debug("county index not loaded, scoped rebuild not published", "states", len(built))
			return built, nil
		}
		merged = make(domain.CountyIndex, len(current)+len(built))
		maps.Copy(merged, current)
		maps.Copy(merged, built)
	}
	b.store.SetCounties(merged)

	groups := 0
	for _, ds := range merged {
		groups += len(ds.Groups)
	}
	b.metrics.DatasetBuilds.WithLabelValues(level, "success").Inc()
	b.metrics.DatasetBuildTime.WithLabelValues(level).Observe(time.Since(start).Seconds())
	b.metrics.DatasetGroups.WithLabelValues(level).Set(float64(groups))
	return built, nil
}

func (b *Builder) population(records []domain.PopulationRecord) domain.Population {
	pop, skipped := domain.ParsePopulation(records, b.logger)
	b.count("population", len(records), skipped)
	return pop
}

func (b *Builder) count(kind string, total, rejected int) {
	b.metrics.RecordsParsed.WithLabelValues(kind).Add(float64(total - rejected))
	b.metrics.RecordsRejected.WithLabelValues(kind).Add(float64(rejected))
}
