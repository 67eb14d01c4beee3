package source

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/covid-grid-service/internal/observability"
)

// Fetcher loads a CSV table from a location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]map[string]string, error)
}

// CachedFetcher wraps a Fetcher with an in-memory LRU keyed by location.
// Use it for static tables such as populations that a reload should not
// download again.
type CachedFetcher struct {
	inner   Fetcher
	cache   *lru.Cache[string, []map[string]string]
	metrics *observability.Metrics
}

// NewCachedFetcher creates a cache decorator around a fetcher.
func NewCachedFetcher(inner Fetcher, maxEntries int, metrics *observability.Metrics) (*CachedFetcher, error) {
	cache, err := lru.New[string, []map[string]string](maxEntries)
	if err != nil {
		return nil, err
	}
	return &CachedFetcher{inner: inner, cache: cache, metrics: metrics}, nil
}

func (c *CachedFetcher) Fetch(ctx context.Context, location string) ([]map[string]string, error) {
	if rows, ok := c.cache.Get(location); ok {
		c.metrics.SourceFetches.WithLabelValues("cached").Inc()
		return rows, nil
	}
	rows, err := c.inner.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	// Empty tables are not cached so a transient truncated download can be retried.
	if len(rows) > 0 {
		c.cache.Add(location, rows)
	}
	return rows, nil
}
