package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

// AccountService defines the interface for account operations
type AccountService interface {
	// CreateAccount opens an empty account for the owner in the given currency
	CreateAccount(ctx context.Context, ownerID uuid.UUID, currency string) (*account.Account, error)

	// GetAccountByID returns ErrAccountNotFound if the account doesn't exist
	GetAccountByID(ctx context.Context, id uuid.UUID) (*account.Account, error)

	// ListAccountsByOwner returns every account the owner holds, oldest first
	ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error)

	// BalanceTotals sums balances per currency
	BalanceTotals(ctx context.Context) ([]account.CurrencyTotal, error)
}

// TransactionService defines the interface for transaction operations
type TransactionService interface {
	// Submit runs an operation through the engine. Rejections come back as a
	// rejected transaction, engine failures as *ledger.Error.
	Submit(ctx context.Context, op ledger.Operation) (*ledger.Transaction, error)

	// GetTransactionByID returns nil if the transaction is not found
	GetTransactionByID(ctx context.Context, transactionID uuid.UUID) (*ledger.Transaction, error)

	// ListTransactions returns one page of matches and the total match count
	ListTransactions(ctx context.Context, filter ledger.Filter, page, perPage int) ([]*ledger.Transaction, int64, error)
}
