package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/brewery-data-etl/internal/config"
	"github.com/couchcryptid/brewery-data-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	headerBreweryType = "brewery_type"
	headerRunID       = "run_id"
)

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes gold-layer rows to a Kafka topic.
// It implements pipeline.GoldPublisher.
type Writer struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured gold topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaGoldTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, topic: cfg.KafkaGoldTopic, logger: logger}
}

// PublishCounts serializes and publishes every count in a single
// WriteMessages call. Messages with the same location key land on the same
// partition.
func (w *Writer) PublishCounts(ctx context.Context, runID string, counts []domain.LocationCount) error {
	if len(counts) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(counts))
	for i := range counts {
		msg, err := serializeToMessage(runID, counts[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish gold counts: %w", err)
	}
	w.logger.Info("gold counts published", "topic", w.topic, "messages", len(msgs), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a LocationCount into a Kafka message.
func serializeToMessage(runID string, c domain.LocationCount) (kafkago.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize location count: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(c.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerBreweryType, Value: []byte(c.BreweryType)},
			{Key: headerRunID, Value: []byte(runID)},
		},
	}, nil
}
