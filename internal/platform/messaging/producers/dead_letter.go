package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/multicurrency-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// ErrDLQDisabled is returned when publishing through a producer without a topic
var ErrDLQDisabled = errors.New("DLQ producer not initialized")

// deadLetter is the envelope written to the DLQ topic
type deadLetter struct {
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
	DLQReason     string `json:"dlq_reason"`
	Timestamp     string `json:"timestamp"`
}

type DLQProducer struct {
	logger   *slog.Logger
	writer   KafkaWriter
	dlqTopic string
	now      func() time.Time
}

// NewDLQProducer returns a nil producer if cfg.DLQTopic is empty (DLQ disabled)
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured. DLQProducer will not be initialized.")
		return nil, nil
	}

	if err := EnsureTopic(ctx, logger, cfg, cfg.DLQTopic); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return newDLQProducer(logger, writer, cfg.DLQTopic), nil
}

func newDLQProducer(logger *slog.Logger, writer KafkaWriter, topic string) *DLQProducer {
	return &DLQProducer{
		logger:   logger,
		writer:   writer,
		dlqTopic: topic,
		now:      time.Now,
	}
}

// PublishToDLQ wraps the original message with the reason it was parked
func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	if p == nil || p.writer == nil {
		return ErrDLQDisabled
	}

	value, err := json.Marshal(deadLetter{
		OriginalKey:   key,
		OriginalValue: string(originalMessageValue),
		DLQReason:     reason,
		Timestamp:     p.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message value: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message to DLQ",
			"topic", p.dlqTopic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Info("Published message to DLQ",
		"topic", p.dlqTopic,
		"key", key,
		"reason", reason,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ Kafka message producer", "topic", p.dlqTopic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close dlq kafka writer for topic %s: %w", p.dlqTopic, err)
	}
	return nil
}

var _ DeadLetterPublisher = (*DLQProducer)(nil)
