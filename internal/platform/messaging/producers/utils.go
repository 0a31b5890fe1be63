package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/multicurrency-ledger/internal/config"
	"github.com/multicurrency-ledger/internal/platform/retry"
	"github.com/segmentio/kafka-go"
)

const partitionReadAttempts = 5

// EnsureTopic creates topic on the brokers in cfg if it cannot be found
func EnsureTopic(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string) error {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	return createKafkaTopicIfNotExists(ctx, conn, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
}

// createKafkaTopicIfNotExists creates Kafka topic if not found, retries on partition read errors
func createKafkaTopicIfNotExists(ctx context.Context, conn *kafka.Conn, topicName string, numPartitions int, replicationFactor int, log *slog.Logger) error {
	var partitions []kafka.Partition
	var err error

	log.Info("Checking if Kafka topic exists", "topic", topicName)
	backoff := retry.Backoff{Base: 500 * time.Millisecond, Max: 2 * time.Second}
	for i := 0; i < partitionReadAttempts; i++ {
		partitions, err = conn.ReadPartitions(topicName)
		if err == nil {
			break
		}
		log.Warn("Failed to read partitions, retrying...", "topic", topicName, "attempt", i+1, "error", err)
		if sleepErr := retry.Sleep(ctx, backoff.Ceiling(i)); sleepErr != nil {
			return sleepErr
		}
	}

	if len(partitions) > 0 {
		log.Info("Kafka topic already exists", "topic", topicName)
		return nil
	}

	log.Info("Kafka topic does not exist or is not accessible, attempting to create it", "topic", topicName, "last_error_read", err)
	topicConfig := kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     max(numPartitions, 1),
		ReplicationFactor: max(replicationFactor, 1),
	}
	if creationErr := conn.CreateTopics(topicConfig); creationErr != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, creationErr)
	}
	log.Info("Successfully created Kafka topic", "topic", topicName, "partitions", topicConfig.NumPartitions)
	return nil
}
