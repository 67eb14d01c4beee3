//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-grid-service/internal/adapter/kafka"
	"github.com/couchcryptid/covid-grid-service/internal/config"
	"github.com/couchcryptid/covid-grid-service/internal/domain"
	"github.com/couchcryptid/covid-grid-service/internal/observability"
	"github.com/couchcryptid/covid-grid-service/internal/pipeline"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// publishedObservation is a deserialized message read from the sink topic.
type publishedObservation struct {
	Date    string             `json:"date"`
	GeoID   string             `json:"geo_id"`
	State   string             `json:"state"`
	County  string             `json:"county"`
	Values  map[string]float64 `json:"values"`
	Key     string             `json:"-"`
	Headers map[string]string  `json:"-"`
}

// readPublished reads a single message from the sink consumer and deserializes it.
func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedObservation {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	var obs publishedObservation
	require.NoError(t, json.Unmarshal(msg.Value, &obs), "unmarshal sink message")
	obs.Key = string(msg.Key)
	obs.Headers = make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		obs.Headers[h.Key] = string(h.Value)
	}
	return obs
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func publish(ctx context.Context, t *testing.T, broker string, msgs ...kafkago.Message) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

func recordMessage(t *testing.T, key string, rec domain.RawRecord) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(key), Value: payload}
}

// seededBuilder returns a builder whose inputs hold three days of Ohio and
// Utah state rows plus one Salt Lake county row, with the county index
// already published.
func seededBuilder(t *testing.T, metrics *observability.Metrics) (*pipeline.Store, *pipeline.Builder) {
	t.Helper()
	inputs := pipeline.NewInputs()
	var cases []domain.CaseRecord
	for i, d := range []string{"2020-03-01", "2020-03-02", "2020-03-03"} {
		cases = append(cases,
			domain.CaseRecord{Date: d, State: "Ohio", FIPS: "39", Cases: fmt.Sprint(10 * (i + 1)), Deaths: "0"},
			domain.CaseRecord{Date: d, State: "Utah", FIPS: "49", Cases: fmt.Sprint(i + 1), Deaths: "0"},
		)
	}
	inputs.SetStates(cases, []domain.PopulationRecord{{FIPS: "39", Pop: "1000000"}, {FIPS: "49", Pop: "500000"}}, nil)
	inputs.SetCounties([]domain.CaseRecord{
		{Date: "2020-03-03", State: "Utah", County: "Salt Lake", FIPS: "49035", Cases: "2", Deaths: "0"},
	}, nil)
	store := pipeline.NewStore()
	builder := pipeline.NewBuilder(inputs, store, discardLogger(), metrics)
	_, err := builder.RebuildCounties(nil)
	require.NoError(t, err)
	return store, builder
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a record through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	rec := domain.RawRecord{Kind: domain.KindCases, Level: domain.LevelStates, Date: "2020-03-04", State: "Ohio", FIPS: "39", Cases: "55", Deaths: "1"}
	msg := recordMessage(t, "ohio", rec)
	publish(ctx, t, broker, msg)

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("ohio"), raw.Key)
	assert.Equal(t, msg.Value, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	got, err := pipeline.NewTransformer().Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, builder := seededBuilder(t, observability.NewMetricsForTesting())
	observations, err := builder.Refresh(ctx, []domain.RawRecord{got})
	require.NoError(t, err)
	require.Len(t, observations, 2)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, observations))

	consumer := sinkConsumer(t, broker)
	byGeo := map[string]publishedObservation{}
	for range observations {
		obs := readPublished(ctx, t, consumer)
		byGeo[obs.Key] = obs
	}
	ohio := byGeo["39"]
	assert.Equal(t, "state", ohio.Headers["level"])
	assert.Equal(t, "2020-03-04", ohio.Headers["date"])
	assert.Equal(t, "Ohio", ohio.State)
	assert.InDelta(t, 55, ohio.Values["cases"], 0)
	assert.InDelta(t, 25, ohio.Values["newCases"], 0)
	assert.InDelta(t, 2.5, ohio.Values["newCases_p100k"], 1e-9)
	assert.Equal(t, "2020-03-03", byGeo["49"].Date, "utah has no new record")
}

// TestPipelineEndToEnd wires the full refresh pipeline (Reader → Transformer →
// Builder → Writer) with real Kafka, including a poison pill that must be
// skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	publish(ctx, t, broker,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		recordMessage(t, "ohio", domain.RawRecord{Kind: domain.KindCases, Level: domain.LevelStates, Date: "2020-03-04", State: "Ohio", FIPS: "39", Cases: "50", Deaths: "2"}),
		recordMessage(t, "franklin", domain.RawRecord{Kind: domain.KindCases, Level: domain.LevelCounties, Date: "2020-03-04", State: "Ohio", County: "Franklin", FIPS: "39049", Cases: "7", Deaths: "0"}),
	)

	metrics := observability.NewMetricsForTesting()
	store, builder := seededBuilder(t, metrics)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(reader, pipeline.NewTransformer(), builder, writer, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	// Batches may split, so read until both refreshed geographies appear.
	consumer := sinkConsumer(t, broker)
	var ohio, franklin *publishedObservation
	for ohio == nil || franklin == nil {
		obs := readPublished(ctx, t, consumer)
		switch {
		case obs.Key == "39" && obs.Date == "2020-03-04":
			ohio = &obs
		case obs.Key == "39049":
			franklin = &obs
		}
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	assert.Equal(t, "state", ohio.Headers["level"])
	assert.InDelta(t, 20, ohio.Values["newCases"], 0)
	assert.Equal(t, "county", franklin.Headers["level"])
	assert.Equal(t, "Franklin", franklin.County)
	assert.InDelta(t, 7, franklin.Values["cases"], 0)
	_, hasPerCapita := franklin.Values["cases_p100k"]
	assert.False(t, hasPerCapita, "no county population was loaded")

	states := store.States()
	require.NotNil(t, states)
	g, ok := states.Group("Ohio")
	require.True(t, ok)
	last, _ := g.Last()
	assert.Equal(t, "2020-03-04", last.Date.Format(time.DateOnly))
	require.NotNil(t, store.Counties())
	assert.Equal(t, []string{"Ohio", "Utah"}, store.Counties().States(), "scoped rebuild merges into the loaded index")
}
