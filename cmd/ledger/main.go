package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/multicurrency-ledger/internal/api_gateway"
	"github.com/multicurrency-ledger/internal/api_gateway/service"
	"github.com/multicurrency-ledger/internal/config"
	"github.com/multicurrency-ledger/internal/data/memory"
	"github.com/multicurrency-ledger/internal/data/mongo"
	"github.com/multicurrency-ledger/internal/data/postgres"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/ledger"
	"github.com/multicurrency-ledger/internal/engine"
	"github.com/multicurrency-ledger/internal/intake"
	"github.com/multicurrency-ledger/internal/logger"
	"github.com/multicurrency-ledger/internal/platform/messaging/consumers"
	"github.com/multicurrency-ledger/internal/platform/messaging/producers"
	"github.com/multicurrency-ledger/internal/platform/persistence"
	"github.com/multicurrency-ledger/internal/platform/retry"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("ledger")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting ledger service",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"storage", cfg.Ledger.Storage,
		"kafka_enabled", cfg.Kafka.Enabled,
	)

	backoff := retry.Backoff{
		Base: cfg.Ledger.RetryBaseDelay,
		Max:  cfg.Ledger.RetryMaxDelay,
	}

	// Storage: accounts and journal live in memory unless persistence is configured
	var (
		registry   account.Registry = memory.NewAccountRegistry()
		journal    ledger.Journal   = memory.NewJournal()
		postgresDB *persistence.PostgresDB
		mongoDB    *persistence.MongoDB
		checks     map[string]api_gateway.Pinger
	)
	if cfg.Persistent() {
		postgresDB, err = persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
		if err != nil {
			log.Error("Failed to initialize PostgreSQL", "error", err)
			os.Exit(1)
		}

		mongoDB, err = persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
		if err != nil {
			log.Error("Failed to initialize MongoDB", "error", err)
			os.Exit(1)
		}

		registry = postgres.NewAccountRegistry(log, postgresDB, postgres.RetryConfig{
			MaxAttempts: cfg.Ledger.MaxConflictRetries,
			Backoff:     backoff,
		})

		mongoJournal := mongo.NewJournal(log, mongoDB.Collection(cfg.MongoDB.Collection))
		if err = mongoJournal.EnsureIndexes(appCtx); err != nil {
			log.Error("Failed to create journal indexes", "error", err)
			os.Exit(1)
		}
		journal = mongoJournal

		checks = map[string]api_gateway.Pinger{
			"postgres": postgresDB,
			"mongodb":  mongoDB,
		}
	}

	store := memory.NewIdempotencyStore(cfg.Ledger.IdempotencyWaitTimeout)

	engineOpts := []engine.Option{
		engine.WithJournalRetry(engine.JournalRetry{
			MaxAttempts: cfg.Ledger.MaxConflictRetries,
			Backoff:     backoff,
		}),
	}
	var eventProducer *producers.TransactionEventProducer
	if cfg.Kafka.Enabled {
		eventProducer, err = producers.NewTransactionEventProducer(appCtx, log, &cfg.Kafka)
		if err != nil {
			log.Error("Failed to initialize transaction event producer", "error", err)
			os.Exit(1)
		}
		engineOpts = append(engineOpts, engine.WithPublisher(eventProducer))
	}

	ledgerEngine := engine.NewEngine(registry, journal, store, log, engineOpts...)

	submitter, err := engine.NewPooledSubmitter(ledgerEngine, engine.PoolConfig{Size: cfg.WorkerPool.Size}, log)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	accountService := service.NewAccountService(registry)
	transactionService := service.NewTransactionService(log, submitter, journal)

	server := api_gateway.NewServer(log, cfg, accountService, transactionService, checks)
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var (
		kafkaConsumer *consumers.KafkaConsumer
		dlqProducer   *producers.DLQProducer
	)
	if cfg.Kafka.Enabled {
		kafkaConsumer, dlqProducer = startIntake(appCtx, log, cfg, submitter)
	}

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before draining the pool
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// The consume loop exits once appCtx is canceled; closing waits for it
	if kafkaConsumer != nil {
		log.Info("Waiting for Kafka consumer to stop...")
		consumerDone := make(chan error, 1)
		go func() {
			consumerDone <- kafkaConsumer.Close()
		}()

		select {
		case err = <-consumerDone:
			if err != nil {
				log.Error("Error closing Kafka consumer", "error", err)
			} else {
				log.Info("Kafka consumer stopped successfully")
			}
		case <-shutdownCtx.Done():
			log.Warn("Shutdown timeout reached, forcing exit")
		}
	}

	log.Info("Shutting down worker pool", "running_workers", submitter.Running())
	submitter.Shutdown()

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}
	if eventProducer != nil {
		if err = eventProducer.Close(); err != nil {
			log.Error("Error closing transaction event producer", "error", err)
		}
	}

	if postgresDB != nil {
		postgresDB.Close()
	}
	if mongoDB != nil {
		if err = mongoDB.Close(shutdownCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}

	if serviceErr != nil {
		log.Error("Ledger service shutdown completed with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Ledger service shutdown completed successfully")
}

// startIntake subscribes the operation consumer. The DLQ producer may be nil
// when no DLQ topic is configured; bad messages then stay uncommitted.
func startIntake(
	ctx context.Context,
	log *slog.Logger,
	cfg *config.Config,
	submitter engine.Submitter,
) (*consumers.KafkaConsumer, *producers.DLQProducer) {
	if err := producers.EnsureTopic(ctx, log, &cfg.Kafka, cfg.Kafka.OperationTopic); err != nil {
		log.Error("Failed to ensure operation topic", "topic", cfg.Kafka.OperationTopic, "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(ctx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}
	handler := intake.NewOperationHandler(log, submitter, deadLetters)

	kafkaConsumer := consumers.NewKafkaConsumer(log, &cfg.Kafka)

	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.OperationTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(ctx, handler.HandleMessage); err != nil {
		log.Error("Failed to subscribe Kafka consumer", "error", err)
		os.Exit(1)
	}

	return kafkaConsumer, dlqProducer
}
