// Package config loads and validates the ledger service configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage modes for accounts and the journal
const (
	StorageMemory     = "memory"
	StoragePersistent = "persistent"
)

// Config holds the complete application configuration
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	WorkerPool  WorkerPoolConfig
	Ledger      LedgerConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig contains Kafka configuration. Intake and event publishing are
// skipped entirely when Enabled is false.
type KafkaConfig struct {
	Enabled           bool
	Brokers           string
	OperationTopic    string // Inbound operation requests
	EventTopic        string // Outbound final transactions
	DLQTopic          string // Undecodable operation requests
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Collection      string // Journal collection
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of operations executing at once
}

// LedgerConfig tunes the transaction engine
type LedgerConfig struct {
	Storage                string        // memory | persistent
	IdempotencyWaitTimeout time.Duration // How long a duplicate waits for an in-flight key
	MaxConflictRetries     int           // Optimistic update attempts before CONCURRENCY_CONFLICT
	RetryBaseDelay         time.Duration
	RetryMaxDelay          time.Duration
}

// Persistent reports whether accounts and the journal live in external stores
func (c *Config) Persistent() bool {
	return c.Ledger.Storage == StoragePersistent
}

// validate collects every invalid setting into a single error
func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	switch c.Ledger.Storage {
	case StorageMemory, StoragePersistent:
	default:
		validationErrors = append(validationErrors, fmt.Sprintf("LEDGER_STORAGE must be %q or %q", StorageMemory, StoragePersistent))
	}
	if c.Ledger.IdempotencyWaitTimeout <= 0 {
		validationErrors = append(validationErrors, "LEDGER_IDEMPOTENCY_WAIT_TIMEOUT must be greater than 0")
	}
	if c.Ledger.MaxConflictRetries <= 0 {
		validationErrors = append(validationErrors, "LEDGER_MAX_CONFLICT_RETRIES must be greater than 0")
	}
	if c.Ledger.RetryBaseDelay <= 0 {
		validationErrors = append(validationErrors, "LEDGER_RETRY_BASE_DELAY must be greater than 0")
	}
	if c.Ledger.RetryMaxDelay < c.Ledger.RetryBaseDelay {
		validationErrors = append(validationErrors, "LEDGER_RETRY_MAX_DELAY must not be less than LEDGER_RETRY_BASE_DELAY")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if c.Kafka.Enabled {
		validationErrors = append(validationErrors, c.Kafka.validate()...)
	}
	if c.Persistent() {
		validationErrors = append(validationErrors, c.Postgres.validate()...)
		validationErrors = append(validationErrors, c.MongoDB.validate()...)
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

func (k KafkaConfig) validate() []string {
	var errs []string
	if k.Brokers == "" {
		errs = append(errs, "KAFKA_BROKERS is required")
	}
	if k.OperationTopic == "" {
		errs = append(errs, "KAFKA_OPERATION_TOPIC is required")
	}
	if k.EventTopic == "" {
		errs = append(errs, "KAFKA_EVENT_TOPIC is required")
	}
	if k.DLQTopic == "" {
		errs = append(errs, "KAFKA_DLQ_TOPIC is required")
	}
	if k.ConsumerGroup == "" {
		errs = append(errs, "KAFKA_CONSUMER_GROUP is required")
	}
	if k.MinBytes <= 0 {
		errs = append(errs, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if k.MaxBytes <= 0 {
		errs = append(errs, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if k.MaxWait <= 0 {
		errs = append(errs, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	return errs
}

func (p PostgresConfig) validate() []string {
	var errs []string
	if p.URL == "" {
		errs = append(errs, "POSTGRES_URL is required")
	}
	if p.MaxConns <= 0 {
		errs = append(errs, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if p.MinConns <= 0 {
		errs = append(errs, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if p.ConnMaxLifetime <= 0 {
		errs = append(errs, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if p.ConnMaxIdleTime <= 0 {
		errs = append(errs, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}
	if p.MigrationsPath == "" {
		errs = append(errs, "POSTGRES_MIGRATIONS_PATH is required")
	}
	return errs
}

func (m MongoDBConfig) validate() []string {
	var errs []string
	if m.URI == "" {
		errs = append(errs, "MONGO_URI is required")
	}
	if m.Database == "" {
		errs = append(errs, "MONGO_DATABASE is required")
	}
	if m.Collection == "" {
		errs = append(errs, "MONGO_JOURNAL_COLLECTION is required")
	}
	if m.Timeout <= 0 {
		errs = append(errs, "MONGO_TIMEOUT must be greater than 0")
	}
	if m.MaxPoolSize <= 0 {
		errs = append(errs, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if m.MaxConnIdleTime <= 0 {
		errs = append(errs, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}
	return errs
}
