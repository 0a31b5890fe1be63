package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/multicurrency-ledger/internal/domain/ledger"
	"github.com/panjf2000/ants/v2"
)

// PoolConfig sizes the worker pool
type PoolConfig struct {
	Size int
}

// PooledSubmitter bounds how many operations execute at once
type PooledSubmitter struct {
	base   Submitter
	pool   *ants.Pool
	logger *slog.Logger
}

type submitResult struct {
	tx  *ledger.Transaction
	err error
}

func NewPooledSubmitter(base Submitter, config PoolConfig, logger *slog.Logger) (*PooledSubmitter, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &PooledSubmitter{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// Submit runs op on a pool worker and waits for its outcome.
// It blocks while every worker is busy.
func (s *PooledSubmitter) Submit(ctx context.Context, op ledger.Operation) (*ledger.Transaction, error) {
	resultChan := make(chan submitResult, 1)

	err := s.pool.Submit(func() {
		tx, err := s.base.Submit(ctx, op)
		resultChan <- submitResult{tx: tx, err: err}
	})
	if err != nil {
		s.logger.Error("Failed to submit operation to worker pool",
			"idempotency_key", op.IdempotencyKey,
			"error", err,
		)
		return nil, fmt.Errorf("failed to submit operation to worker pool: %w", err)
	}

	result := <-resultChan
	return result.tx, result.err
}

// Shutdown releases the pool; queued submissions fail afterwards
func (s *PooledSubmitter) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

// Running returns the number of running workers in the pool.
func (s *PooledSubmitter) Running() int {
	return s.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (s *PooledSubmitter) Capacity() int {
	return s.pool.Cap()
}

var _ Submitter = (*PooledSubmitter)(nil)
