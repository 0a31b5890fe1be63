package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multicurrency-ledger/internal/config"
)

// Querier supports database operations for both pool and transactions
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Ensure interfaces are satisfied (compile-time check)
var _ Querier = (*pgxpool.Pool)(nil)
var _ Querier = (pgx.Tx)(nil)

type PostgresDB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresDB applies pending migrations and opens a connection pool
func NewPostgresDB(ctx context.Context, logger *slog.Logger, cfg *config.PostgresConfig) (*PostgresDB, error) {
	version, err := RunMigrations(cfg.URL, cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}
	logger.Info("PostgreSQL migrations applied", "path", cfg.MigrationsPath, "version", version)

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL")

	return &PostgresDB{
		pool:   pool,
		logger: logger,
	}, nil
}

func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}

func (db *PostgresDB) Close() {
	db.pool.Close()
	db.logger.Info("Closed PostgreSQL connection")
}

// Ping checks connectivity for health reporting
func (db *PostgresDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
