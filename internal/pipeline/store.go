package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
)

// Store publishes the current immutable datasets. Readers get whatever was
// last swapped in; a nil result means the level has not loaded yet.
type Store struct {
	states   atomic.Pointer[domain.Dataset]
	counties atomic.Pointer[domain.CountyIndex]
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{} }

// States returns the state dataset, or nil while loading.
func (s *Store) States() *domain.Dataset { return s.states.Load() }

// Counties returns the county index, or nil while loading.
func (s *Store) Counties() domain.CountyIndex {
	p := s.counties.Load()
	if p == nil {
		return nil
	}
	return *p
}

// SetStates swaps in a new state dataset.
func (s *Store) SetStates(ds *domain.Dataset) { s.states.Store(ds) }

// SetCounties swaps in a new county index.
func (s *Store) SetCounties(idx domain.CountyIndex) { s.counties.Store(&idx) }

// CheckReadiness returns nil once state data has loaded. County data
// arrives later and does not gate readiness.
func (s *Store) CheckReadiness(_ context.Context) error {
	if s.States() == nil {
		return errors.New("state data has not loaded yet")
	}
	return nil
}
