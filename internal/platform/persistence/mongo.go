package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/multicurrency-ledger/internal/config"
)

type MongoDB struct {
	logger   *slog.Logger
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoDB connects to MongoDB and verifies the primary is reachable
func NewMongoDB(ctx context.Context, logger *slog.Logger, cfg *config.MongoDBConfig) (*MongoDB, error) {
	clientOptions := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(cfg.MaxConnIdleTime)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)
	logger.Info("Connected to MongoDB", "database", cfg.Database)

	return &MongoDB{
		logger:   logger,
		client:   client,
		database: database,
	}, nil
}

func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Collection returns a handle to name in the configured database
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Ping checks connectivity for health reporting
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoDB) Close(ctx context.Context) error {
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	m.logger.Info("Closed MongoDB connection")
	return nil
}
