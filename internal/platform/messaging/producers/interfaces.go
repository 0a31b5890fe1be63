package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// DeadLetterPublisher parks messages that can never be processed
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
