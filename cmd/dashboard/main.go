package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/covid-grid-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/covid-grid-service/internal/adapter/kafka"
	"github.com/couchcryptid/covid-grid-service/internal/adapter/source"
	"github.com/couchcryptid/covid-grid-service/internal/config"
	"github.com/couchcryptid/covid-grid-service/internal/dashboard"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/pipeline"
	"github.com/couchcryptid/covid-grid-service/internal/render"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Population tables never change, so they are fetched through a cache.
	client := source.NewClient(cfg.FetchTimeout, metrics, logger)
	populations, err := source.NewCachedFetcher(client, cfg.SourceCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create source cache", "error", err)
		os.Exit(1)
	}

	inputs := pipeline.NewInputs()
	store := pipeline.NewStore()
	builder := pipeline.NewBuilder(inputs, store, logger, metrics)
	loader := pipeline.NewLoader(client, populations, cfg.Sources, inputs, builder, clock, cfg.CountyLoadDelay, logger)

	renderer := render.NewRenderer(cfg.Profile)
	sessions, err := httpadapter.NewSessions(cfg.SessionCacheSize, func(id string) *dashboard.Session {
		return dashboard.NewSession(id, store, renderer, dashboard.Options{
			Width:          cfg.DefaultWidth,
			ResizeThrottle: cfg.ResizeThrottle,
			Clock:          clock,
		}, logger, metrics)
	}, metrics)
	if err != nil {
		logger.Error("failed to create session cache", "error", err)
		os.Exit(1)
	}

	api := httpadapter.NewAPI(store, sessions, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, store, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Load state and county data.
	go func() {
		if err := loader.Run(ctx); err != nil {
			logger.Error("initial load error", "error", err)
		}
	}()

	// Start the Kafka refresh pipeline (feature-flagged via KAFKA_ENABLED).
	var (
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		p := pipeline.New(reader, pipeline.NewTransformer(), builder, writer, logger, metrics, cfg.BatchSize)
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	} else {
		logger.Info("kafka refresh pipeline disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sessions.Close()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
