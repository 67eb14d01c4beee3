package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/covid-grid-service/internal/observability"
)

// Client fetches CSV tables from http(s) URLs or local files.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a CSV source client. timeout bounds each HTTP request.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch downloads or opens location and parses it as a headed CSV table.
func (c *Client) Fetch(ctx context.Context, location string) ([]map[string]string, error) {
	start := time.Now()
	rows, err := c.fetch(ctx, location)
	if err != nil {
		c.metrics.SourceFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.SourceFetches.WithLabelValues("success").Inc()
	c.metrics.SourceFetchSeconds.Observe(time.Since(start).Seconds())
	c.logger.Info("source fetched", "location", location, "rows", len(rows), "duration", time.Since(start))
	return rows, nil
}

func (c *Client) fetch(ctx context.Context, location string) ([]map[string]string, error) {
	if !isURL(location) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open source: %w", err)
		}
		defer f.Close()
		return ReadCSV(f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source error: status %d: %s", resp.StatusCode, body)
	}
	return ReadCSV(resp.Body)
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
