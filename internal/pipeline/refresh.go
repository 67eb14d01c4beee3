package pipeline

import (
	"context"
	"errors"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Refresh merges refresh records into the inputs, rebuilds the affected
// datasets, and returns the latest observation of every rebuilt group.
// States come first, then counties grouped by state.
func (b *Builder) Refresh(_ context.Context, records []domain.RawRecord) ([]domain.Observation, error) {
	ch := b.inputs.Merge(records)
	if ch.Empty() {
		return nil, nil
	}

	var out []domain.Observation
	var errs []error
	if ch.States {
		ds, err := b.RebuildStates()
		if err != nil {
			errs = append(errs, err)
		} else {
			out = append(out, latest(ds)...)
		}
	}
	if ch.AllCounties || len(ch.CountyStates) > 0 {
		scope := ch.CountyStates
		if ch.AllCounties {
			scope = nil
		}
		idx, err := b.RebuildCounties(scope)
		if err != nil {
			errs = append(errs, err)
		} else {
			for _, state := range idx.States() {
				out = append(out, latest(idx[state])...)
			}
		}
	}
	return out, errors.Join(errs...)
}

func latest(ds *domain.Dataset) []domain.Observation {
	out := make([]domain.Observation, 0, len(ds.Groups))
	for _, g := range ds.Groups {
		if obs, ok := g.Last(); ok {
			out = append(out, obs)
		}
	}
	return out
}
