//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/adapter/kafka"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/config"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/dataset"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/extract"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/fixture"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/output"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/pipeline"
)

const testSinkTopic = "test-nwm-rows"

// Run with: go test -tags=integration ./internal/integration/ -v -count=1

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("nwm-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     2,
		ReplicationFactor: 1,
	}))
}

type published struct {
	Key     string
	Headers map[string]string
	Body    map[string]any
}

func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader, n int) []published {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]published, 0, n)
	for len(out) < n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from sink topic")
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var body map[string]any
		require.NoError(t, json.Unmarshal(msg.Value, &body))
		out = append(out, published{Key: string(msg.Key), Headers: headers, Body: body})
	}
	return out
}

type storeOpener struct{ store *fixture.MemStore }

func (o storeOpener) Open(ctx context.Context) (extract.Handle, error) {
	return dataset.Open(ctx, o.store, "mem://chrtout.zarr", discardLogger())
}

// TestPipelinePublishesRows runs a one-feature, one-day extraction with Kafka
// as the only sink and reads every row back from the topic.
func TestPipelinePublishesRows(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = writer.Close() })

	store := fixture.NewMemStore()
	require.NoError(t, fixture.WriteChannel(ctx, store, fixture.DefaultChannel()))

	p := pipeline.New(storeOpener{store}, output.Multi{writer}, clockwork.NewRealClock(), discardLogger(), metrics,
		pipeline.Options{Variable: "streamflow"})
	day := time.Date(1999, time.December, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(ctx, []domain.Job{{
		Name:     "flow.csv",
		Criteria: domain.Criteria{Start: day, End: day, FeatureIDs: []int64{1050383}},
	}}))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		Partition:   partitionFor(t, broker, "1050383"),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	msgs := readPublished(ctx, t, consumer, 24)
	for i, m := range msgs {
		assert.Equal(t, "1050383", m.Key)
		assert.Equal(t, "streamflow", m.Headers["variable"])
		assert.Equal(t, "flow.csv", m.Headers["source"])
		assert.InDelta(t, 1050383, m.Body["feature_id"], 0)
		assert.InDelta(t, fixture.StreamflowValue(24+i, 1), m.Body["value"], 1e-9)
	}
}

// partitionFor finds the partition holding key by scanning both partitions.
func partitionFor(t *testing.T, broker, key string) int {
	t.Helper()
	for part := 0; part < 2; part++ {
		conn, err := kafkago.DialLeader(context.Background(), "tcp", broker, testSinkTopic, part)
		require.NoError(t, err)
		last, err := conn.ReadLastOffset()
		_ = conn.Close()
		require.NoError(t, err)
		if last > 0 {
			return part
		}
	}
	t.Fatalf("no partition holds key %s", key)
	return -1
}
