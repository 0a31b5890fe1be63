package consumers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/multicurrency-ledger/internal/config"
	"github.com/multicurrency-ledger/internal/platform/retry"
	"github.com/segmentio/kafka-go"
)

// escalateAfterAttempts is when a stuck message starts logging at error level
const escalateAfterAttempts = 3

// MessageHandler processes one message. A nil error commits the offset.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// MessageReader wraps the kafka.Reader methods the consumer needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer using a Kafka consumer group
type KafkaConsumer struct {
	reader  MessageReader
	logger  *slog.Logger
	topic   string
	groupID string
	backoff retry.Backoff
	wg      sync.WaitGroup
}

func NewKafkaConsumer(logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{cfg.Brokers},
		Topic:       cfg.OperationTopic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    cfg.MinBytes,
		MaxBytes:    cfg.MaxBytes,
		MaxWait:     cfg.MaxWait,
		StartOffset: cfg.StartOffset,
	})
	return newKafkaConsumer(logger, reader, cfg.OperationTopic, cfg.ConsumerGroup)
}

func newKafkaConsumer(logger *slog.Logger, reader MessageReader, topic, groupID string) *KafkaConsumer {
	return &KafkaConsumer{
		reader:  reader,
		logger:  logger.With("topic", topic, "group_id", groupID),
		topic:   topic,
		groupID: groupID,
		backoff: retry.Backoff{Base: 100 * time.Millisecond, Max: 5 * time.Second},
	}
}

// Subscribe starts consuming in the background until ctx is canceled.
// Offsets of failed messages are left uncommitted so they are redelivered.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	if handler == nil {
		return errors.New("message handler cannot be nil")
	}
	c.logger.Info("Subscribed to Kafka topic")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx, handler)
	}()
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, handler MessageHandler) {
	failures := 0
	for {
		if ctx.Err() != nil {
			c.logger.Info("Context canceled, stopping consumer")
			return
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer")
				return
			}
			c.logger.Error("Failed to fetch message from Kafka", "attempt", failures+1, "error", err)
			if retry.Sleep(ctx, c.backoff.Delay(failures)) != nil {
				return
			}
			failures++
			continue
		}
		failures = 0

		c.logger.Debug("Received message from Kafka",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		// Committing a later offset would skip msg, so the loop stays on it
		if err := c.handle(ctx, handler, msg); err != nil {
			c.logger.Info("Stopping consumer before message was processed, offset left uncommitted",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message after successful processing",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			continue
		}
		c.logger.Debug("Message committed successfully", "offset", msg.Offset, "key", string(msg.Key))
	}
}

// handle retries a failing handler with backoff until it succeeds.
// It only gives up when ctx is done.
func (c *KafkaConsumer) handle(ctx context.Context, handler MessageHandler, msg kafka.Message) error {
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := retry.Sleep(ctx, c.backoff.Delay(attempt-1)); err != nil {
				return err
			}
		}
		err := handler(ctx, msg.Key, msg.Value)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}

		attrs := []any{"partition", msg.Partition, "offset", msg.Offset, "attempt", attempt + 1, "error", err}
		if attempt+1 >= escalateAfterAttempts {
			c.logger.Error("Message handler keeps failing, partition is blocked", attrs...)
		} else {
			c.logger.Warn("Message handler failed", attrs...)
		}
	}
}

// Close waits for the consume loop to stop and closes the reader.
// Cancel the Subscribe context first.
func (c *KafkaConsumer) Close() error {
	c.wg.Wait()
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

var _ Consumer = (*KafkaConsumer)(nil)
