package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/multicurrency-ledger/internal/config"
	"github.com/multicurrency-ledger/internal/domain/ledger"
	"github.com/segmentio/kafka-go"
)

// TransactionEventProducer publishes final transactions to the event topic
type TransactionEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewTransactionEventProducer ensures the event topic exists and opens an async writer
func NewTransactionEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*TransactionEventProducer, error) {
	if cfg.EventTopic == "" {
		return nil, fmt.Errorf("kafka event topic is not configured")
	}

	if err := EnsureTopic(ctx, logger, cfg, cfg.EventTopic); err != nil {
		return nil, fmt.Errorf("failed to ensure event topic %s exists: %w", cfg.EventTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write transaction events asynchronously", "topic", cfg.EventTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Wrote transaction events asynchronously", "topic", cfg.EventTopic, "count", len(messages))
			}
		},
	}

	return &TransactionEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventTopic,
	}, nil
}

// PublishTransaction writes tx keyed by its primary account so that events
// for one account stay in one partition.
func (p *TransactionEventProducer) PublishTransaction(ctx context.Context, tx *ledger.Transaction) error {
	value, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}

	key := eventKey(tx)
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(tx.Kind)},
			{Key: "status", Value: []byte(tx.Status)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish transaction event",
			"topic", p.topic,
			"transaction_id", tx.ID.String(),
			"error", err,
		)
		return fmt.Errorf("failed to publish transaction event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published transaction event",
		"topic", p.topic,
		"transaction_id", tx.ID.String(),
		"key", key,
	)
	return nil
}

func (p *TransactionEventProducer) Close() error {
	p.logger.Info("Closing transaction event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}

func eventKey(tx *ledger.Transaction) string {
	switch {
	case tx.SourceAccountID != nil:
		return tx.SourceAccountID.String()
	case tx.DestinationAccountID != nil:
		return tx.DestinationAccountID.String()
	}
	return tx.ID.String()
}
