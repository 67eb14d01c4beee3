package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "covid_grid"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Normalization metrics.
	RecordsParsed      *prometheus.CounterVec // labels: kind={cases,testing,population}
	RecordsRejected    *prometheus.CounterVec // labels: kind
	DuplicateTesting   prometheus.Counter
	DatasetBuilds      *prometheus.CounterVec   // labels: level={state,county}, outcome={success,error}
	DatasetBuildTime   *prometheus.HistogramVec // labels: level
	DatasetGroups      *prometheus.GaugeVec     // labels: level
	SourceFetches      *prometheus.CounterVec   // labels: outcome={success,error,cached}
	SourceFetchSeconds prometheus.Histogram

	// Rendering and interaction metrics.
	Renders            *prometheus.CounterVec // labels: level
	RenderDuration     prometheus.Histogram
	TooltipResolutions *prometheus.CounterVec // labels: result={hit,miss}
	Drilldowns         *prometheus.CounterVec // labels: outcome={accepted,rejected,loading}
	ActiveSessions     prometheus.Gauge

	// Refresh pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	TransformErrors         prometheus.Counter
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.RecordsParsed,
		m.RecordsRejected,
		m.DuplicateTesting,
		m.DatasetBuilds,
		m.DatasetBuildTime,
		m.DatasetGroups,
		m.SourceFetches,
		m.SourceFetchSeconds,
		m.Renders,
		m.RenderDuration,
		m.TooltipResolutions,
		m.Drilldowns,
		m.ActiveSessions,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		RecordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      help("Raw input records accepted, by kind."),
		}, []string{"kind"}),
		RecordsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      help("Raw input records skipped as invalid, by kind."),
		}, []string{"kind"}),
		DuplicateTesting: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_testing_records_total",
			Help:      help("Testing rows that repeated a geography and date."),
		}),
		DatasetBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_builds_total",
			Help:      help("Dataset builds by level and outcome."),
		}, []string{"level", "outcome"}),
		DatasetBuildTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dataset_build_duration_seconds",
			Help:      help("Time to normalize one dataset level."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"level"}),
		DatasetGroups: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_groups",
			Help:      help("Geography groups in the published dataset, by level."),
		}, []string{"level"}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetches_total",
			Help:      help("CSV source fetches by outcome."),
		}, []string{"outcome"}),
		SourceFetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      help("CSV source download and parse duration."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		Renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      help("Grid frames rendered, by level."),
		}, []string{"level"}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      help("Time to render one grid frame."),
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		TooltipResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tooltip_resolutions_total",
			Help:      help("Pointer resolutions by result."),
		}, []string{"result"}),
		Drilldowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drilldowns_total",
			Help:      help("Drill-down requests by outcome."),
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      help("Sessions held in the session cache."),
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      help("Total messages read from the source topic."),
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      help("Total messages written to the sink topic."),
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      help("Total source messages that failed to decode."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 when the refresh pipeline is active, 0 when shut down."),
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      help("Number of messages per batch extracted from Kafka."),
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete extract-rebuild-publish cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
