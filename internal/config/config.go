package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/covid-grid-service/internal/layout"
)

const (
	defaultStatesURL           = "https://raw.githubusercontent.com/nytimes/covid-19-data/master/us-states.csv"
	defaultCountiesURL         = "https://raw.githubusercontent.com/nytimes/covid-19-data/master/us-counties.csv"
	defaultStatePopulationURL  = "https://raw.githubusercontent.com/schnerd/us-covid-dashboard/master/fips-pop-sta.csv"
	defaultCountyPopulationURL = "https://raw.githubusercontent.com/schnerd/us-covid-dashboard/master/fips-pop-cty.csv"
	defaultTestingURL          = "https://covidtracking.com/api/states/daily.csv"
)

// Sources locates the raw CSV inputs. Each entry is an http(s) URL or a
// local file path.
type Sources struct {
	States           string
	Counties         string
	StatePopulation  string
	CountyPopulation string
	// Testing is optional; an empty value disables testing views.
	Testing string
}

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Sources         Sources
	FetchTimeout    time.Duration
	SourceCacheSize int
	CountyLoadDelay time.Duration

	// Session settings.
	ResizeThrottle   time.Duration
	SessionCacheSize int
	DefaultWidth     int
	Profile          layout.Profile

	// Kafka refresh pipeline, off unless KAFKA_ENABLED=true.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "30s", false)
	if err != nil {
		return nil, err
	}
	countyDelay, err := parseDuration("COUNTY_LOAD_DELAY", "200ms", true)
	if err != nil {
		return nil, err
	}
	throttle, err := parseDuration("RESIZE_THROTTLE", "100ms", false)
	if err != nil {
		return nil, err
	}

	profile, err := loadProfile(os.Getenv("LAYOUT_PROFILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Sources: Sources{
			States:           sharedcfg.EnvOrDefault("STATES_URL", defaultStatesURL),
			Counties:         sharedcfg.EnvOrDefault("COUNTIES_URL", defaultCountiesURL),
			StatePopulation:  sharedcfg.EnvOrDefault("STATE_POPULATION_URL", defaultStatePopulationURL),
			CountyPopulation: sharedcfg.EnvOrDefault("COUNTY_POPULATION_URL", defaultCountyPopulationURL),
			Testing:          testingSource(),
		},
		FetchTimeout:    fetchTimeout,
		SourceCacheSize: parsePositiveInt("SOURCE_CACHE_SIZE", 16),
		CountyLoadDelay: countyDelay,

		ResizeThrottle:   throttle,
		SessionCacheSize: parsePositiveInt("SESSION_CACHE_SIZE", 1000),
		DefaultWidth:     parsePositiveInt("DEFAULT_WIDTH", 1280),
		Profile:          profile,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-covid-records"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "normalized-covid-observations"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "covid-grid-service"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.Sources.States == "" {
		return nil, errors.New("STATES_URL is required")
	}
	if cfg.Sources.Counties == "" {
		return nil, errors.New("COUNTIES_URL is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

// testingSource distinguishes an unset TESTING_URL (use the default) from
// one explicitly set empty (disable testing).
func testingSource() string {
	if v, ok := os.LookupEnv("TESTING_URL"); ok {
		return v
	}
	return defaultTestingURL
}

func parseDuration(key, fallback string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func loadProfile(path string) (layout.Profile, error) {
	if path == "" {
		return layout.DefaultProfile(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return layout.Profile{}, fmt.Errorf("read LAYOUT_PROFILE: %w", err)
	}
	p, err := layout.ParseProfile(data)
	if err != nil {
		return layout.Profile{}, fmt.Errorf("LAYOUT_PROFILE %s: %w", path, err)
	}
	return p, nil
}
