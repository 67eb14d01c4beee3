package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/covid-grid-service/internal/config"
	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Fetcher loads a headed CSV table from a URL or file.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]map[string]string, error)
}

// Loader performs the initial load of both dataset levels from CSV sources.
type Loader struct {
	cases       Fetcher
	populations Fetcher
	sources     config.Sources
	inputs      *Inputs
	builder     *Builder
	clock       clockwork.Clock
	countyDelay time.Duration
	logger      *slog.Logger
}

// NewLoader creates a Loader. populations serves the population tables,
// which are typically wrapped in a cache since they never change.
func NewLoader(cases, populations Fetcher, sources config.Sources, inputs *Inputs, builder *Builder,
	clock clockwork.Clock, countyDelay time.Duration, logger *slog.Logger) *Loader {
	return &Loader{
		cases:       cases,
		populations: populations,
		sources:     sources,
		inputs:      inputs,
		builder:     builder,
		clock:       clock,
		countyDelay: countyDelay,
		logger:      logger,
	}
}

// Run loads state data immediately and county data after the configured
// delay, each in its own goroutine and each retried with backoff until it
// succeeds or ctx is cancelled. It returns once both levels have loaded.
func (l *Loader) Run(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		return l.retry(ctx, "states", l.LoadStates)
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-l.clock.After(l.countyDelay):
		}
		return l.retry(ctx, "counties", l.LoadCounties)
	})
	return g.Wait()
}

func (l *Loader) retry(ctx context.Context, level string, load func(context.Context) error) error {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second
	for {
		err := load(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Error("dataset load failed", "level", level, "error", err, "retry_in", backoff)
		if !sleepWithContext(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
}

// LoadStates fetches state cases, state populations, and testing in
// parallel, then builds and publishes the state dataset. A testing fetch
// failure is logged and the dataset is built without testing views.
func (l *Loader) LoadStates(ctx context.Context) error {
	var caseRows, popRows, testRows []map[string]string
	testingOK := false

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		caseRows, err = l.cases.Fetch(gctx, l.sources.States)
		return err
	})
	g.Go(func() (err error) {
		popRows, err = l.populations.Fetch(gctx, l.sources.StatePopulation)
		return err
	})
	if l.sources.Testing != "" {
		g.Go(func() error {
			rows, err := l.cases.Fetch(gctx, l.sources.Testing)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					l.logger.Warn("testing data unavailable", "error", err)
				}
				return nil
			}
			testRows, testingOK = rows, true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load states: %w", err)
	}

	var testing []domain.TestingRecord
	if testingOK {
		testing = mapRows(testRows, domain.TestingRecordFromRow)
	}
	l.inputs.SetStates(
		mapRows(caseRows, domain.CaseRecordFromRow),
		mapRows(popRows, domain.PopulationRecordFromRow),
		testing,
	)
	_, err := l.builder.RebuildStates()
	return err
}

// LoadCounties fetches county cases and populations in parallel, then builds
// and publishes the county index.
func (l *Loader) LoadCounties(ctx context.Context) error {
	var caseRows, popRows []map[string]string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		caseRows, err = l.cases.Fetch(gctx, l.sources.Counties)
		return err
	})
	g.Go(func() (err error) {
		popRows, err = l.populations.Fetch(gctx, l.sources.CountyPopulation)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load counties: %w", err)
	}

	l.inputs.SetCounties(
		mapRows(caseRows, domain.CaseRecordFromRow),
		mapRows(popRows, domain.PopulationRecordFromRow),
	)
	_, err := l.builder.RebuildCounties(nil)
	return err
}

func mapRows[T any](rows []map[string]string, fn func(map[string]string) T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}
