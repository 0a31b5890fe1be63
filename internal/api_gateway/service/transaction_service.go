package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/ledger"
	"github.com/multicurrency-ledger/internal/engine"
)

// TransactionServiceImpl implements the TransactionService interface
type TransactionServiceImpl struct {
	submitter engine.Submitter
	journal   ledger.Journal
	logger    *slog.Logger
}

// NewTransactionService creates a new transaction service
func NewTransactionService(logger *slog.Logger, submitter engine.Submitter, journal ledger.Journal) TransactionService {
	return &TransactionServiceImpl{
		submitter: submitter,
		journal:   journal,
		logger:    logger,
	}
}

// Submit hands the operation to the engine
func (s *TransactionServiceImpl) Submit(ctx context.Context, op ledger.Operation) (*ledger.Transaction, error) {
	return s.submitter.Submit(ctx, op)
}

// GetTransactionByID retrieves a transaction by its ID. Returns nil if not found
func (s *TransactionServiceImpl) GetTransactionByID(ctx context.Context, transactionID uuid.UUID) (*ledger.Transaction, error) {
	tx, err := s.journal.Get(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound{}) {
			s.logger.Info("Transaction not found", "transaction_id", transactionID.String())
			return nil, nil
		}
		s.logger.Error("Failed to get transaction by ID", "transaction_id", transactionID.String(), "error", err)
		return nil, err
	}
	return tx, nil
}

// ListTransactions applies page and perPage on top of filter
func (s *TransactionServiceImpl) ListTransactions(ctx context.Context, filter ledger.Filter, page, perPage int) ([]*ledger.Transaction, int64, error) {
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	txs, err := s.journal.Query(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.journal.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return txs, total, nil
}
