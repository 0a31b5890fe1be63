package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize bounds queries that do not set a limit
const DefaultPageSize = 50

// Journal is the append-only record of every final transaction
type Journal interface {
	// Append is a no-op when a transaction with the same ID already exists
	Append(ctx context.Context, tx *Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// Query returns matches newest-first; ties keep reverse insertion order
	Query(ctx context.Context, filter Filter) ([]*Transaction, error)
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Filter narrows a journal query. Zero fields match everything.
// From is inclusive and To is exclusive.
type Filter struct {
	AccountID *uuid.UUID
	Kind      Kind
	Status    Status
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Matches reports whether tx satisfies every set criterion
func (f Filter) Matches(tx *Transaction) bool {
	if f.AccountID != nil && !tx.Touches(*f.AccountID) {
		return false
	}
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.From != nil && tx.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !tx.OccurredAt.Before(*f.To) {
		return false
	}
	return true
}

// PageSize returns the effective limit
func (f Filter) PageSize() int {
	if f.Limit <= 0 {
		return DefaultPageSize
	}
	return f.Limit
}

// ErrTransactionNotFound indicates a missing journal entry
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "transaction not found: " + e.TransactionID.String()
}

// Is implements the errors.Is interface for ErrTransactionNotFound
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	// An empty TransactionID matches any ErrTransactionNotFound
	if t.TransactionID == uuid.Nil {
		return true
	}
	return e.TransactionID == t.TransactionID
}
