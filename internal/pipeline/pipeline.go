package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer decodes a raw event into a raw input record.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.RawRecord, error)
}

// Refresher folds records into the published datasets and returns the
// observations to publish.
type Refresher interface {
	Refresh(ctx context.Context, records []domain.RawRecord) ([]domain.Observation, error)
}

// BatchLoader writes normalized observations to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, observations []domain.Observation) error
}

// Pipeline orchestrates the extract, rebuild, and publish loop that keeps
// the datasets current from the source topic.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	refresher   Refresher
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, r Refresher, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		refresher:   r,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// Run executes the batch refresh loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-rebuild-publish cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	if !p.refreshAndPublish(ctx, rawBatch, backoff, maxBackoff) {
		return false
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return true
}

// refreshAndPublish decodes each message in the batch, rebuilds the datasets
// the valid records touch, publishes the resulting observations, and commits
// offsets. Returns false if the pipeline should stop.
func (p *Pipeline) refreshAndPublish(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration, maxBackoff time.Duration) bool {
	records := make([]domain.RawRecord, 0, len(rawBatch))
	successfulRaws := make([]domain.RawEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		rec, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("invalid record, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commitOffset(ctx, raw)
			continue
		}
		records = append(records, rec)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(records) == 0 {
		return true
	}

	observations, err := p.refresher.Refresh(ctx, records)
	if err != nil {
		// Rebuilding again would fail the same way; the records stay merged
		// and the previous datasets stay published.
		p.logger.Error("dataset rebuild failed", "error", err, "records", len(records))
	}

	if len(observations) > 0 {
		if err := p.loader.LoadBatch(ctx, observations); err != nil {
			p.logger.Error("publish observations failed", "error", err, "batch_size", len(observations))
			return p.backoffOrStop(ctx, backoff, maxBackoff)
		}
		p.metrics.MessagesProduced.Add(float64(len(observations)))
	}

	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
