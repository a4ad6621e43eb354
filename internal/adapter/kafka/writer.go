package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/nwm-retrospective-etl/internal/config"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/domain"
	"github.com/couchcryptid/nwm-retrospective-etl/internal/observability"
)

// publishBatch bounds the number of messages per WriteMessages call.
const publishBatch = 5000

// Writer publishes table rows to a Kafka topic, one message per row.
// It implements output.Loader.
type Writer struct {
	writer  *kafkago.Writer
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger, metrics: metrics}
}

// Load publishes every row of t. Rows for the same feature share a key and
// therefore a partition.
func (w *Writer) Load(ctx context.Context, name string, t *domain.Table) error {
	if len(t.Rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, 0, min(len(t.Rows), publishBatch))
	published := 0
	for i := range t.Rows {
		msg, err := serializeToMessage(name, t, t.Rows[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == publishBatch || i == len(t.Rows)-1 {
			if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
				return fmt.Errorf("publish %s rows: %w", name, err)
			}
			published += len(msgs)
			w.metrics.RowsPublished.Add(float64(len(msgs)))
			msgs = msgs[:0]
		}
	}
	w.logger.Info("table published", "topic", w.writer.Topic, "source", name, "rows", published)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// rowMessage is the JSON value of a published row. Missing values are null.
type rowMessage struct {
	Source    string              `json:"source"`
	Variable  string              `json:"variable"`
	Units     string              `json:"units,omitempty"`
	Time      *time.Time          `json:"time,omitempty"`
	FeatureID *int64              `json:"feature_id,omitempty"`
	Coords    map[string]float64  `json:"coords,omitempty"`
	Aux       map[string]*float64 `json:"aux,omitempty"`
	Value     *float64            `json:"value"`
}

// serializeToMessage marshals one row into a Kafka message keyed by feature
// (or by time for reduced selections).
func serializeToMessage(source string, t *domain.Table, row domain.Row) (kafkago.Message, error) {
	m := rowMessage{Source: source, Variable: t.Variable, Units: t.Units, Value: finite(row.Value)}
	var key string
	if t.HasTime() {
		ts := row.Time.UTC()
		m.Time = &ts
		key = ts.Format(time.RFC3339)
	}
	if t.HasFeature() {
		id := row.FeatureID
		m.FeatureID = &id
		key = strconv.FormatInt(id, 10)
	}
	if dims := t.CoordDims(); len(dims) > 0 {
		m.Coords = make(map[string]float64, len(dims))
		for i, d := range dims {
			m.Coords[d] = row.Coords[i]
		}
	}
	if len(t.Aux) > 0 {
		m.Aux = make(map[string]*float64, len(t.Aux))
		for i, name := range t.Aux {
			m.Aux[name] = finite(row.Aux[i])
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s row: %w", t.Variable, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "variable", Value: []byte(t.Variable)},
			{Key: "source", Value: []byte(source)},
		},
	}, nil
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
