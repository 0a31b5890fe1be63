package account

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Registry owns the canonical account records.
// ApplyDelta is atomic with respect to the balance read its checks are based on.
type Registry interface {
	Create(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*Account, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, currency Currency, delta decimal.Decimal) (*Account, error)
	BalanceTotals(ctx context.Context) ([]CurrencyTotal, error)
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	AccountID uuid.UUID
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.AccountID.String()
}

// Is matches any ErrAccountNotFound when the target has no AccountID
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	return t.AccountID == uuid.Nil || t.AccountID == e.AccountID
}

// ErrCurrencyMismatch indicates the operation currency differs from the account currency
type ErrCurrencyMismatch struct {
	AccountID uuid.UUID
	Expected  Currency
	Actual    Currency
}

func (e ErrCurrencyMismatch) Error() string {
	return fmt.Sprintf("currency mismatch for account %s: account holds %s, operation uses %s", e.AccountID, e.Expected, e.Actual)
}

func (e ErrCurrencyMismatch) Is(target error) bool {
	t, ok := target.(ErrCurrencyMismatch)
	if !ok {
		return false
	}
	return t.AccountID == uuid.Nil || t.AccountID == e.AccountID
}

// ErrInsufficientFunds indicates a debit larger than the available balance
type ErrInsufficientFunds struct {
	AccountID uuid.UUID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: available %s, requested %s", e.AccountID, e.Available, e.Requested)
}

func (e ErrInsufficientFunds) Is(target error) bool {
	t, ok := target.(ErrInsufficientFunds)
	if !ok {
		return false
	}
	return t.AccountID == uuid.Nil || t.AccountID == e.AccountID
}

// ErrConcurrentModification indicates the optimistic retry budget was exhausted
type ErrConcurrentModification struct {
	AccountID uuid.UUID
	Attempts  int
}

func (e ErrConcurrentModification) Error() string {
	return fmt.Sprintf("concurrent modification detected for account %s after %d attempts", e.AccountID, e.Attempts)
}

func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	return t.AccountID == uuid.Nil || t.AccountID == e.AccountID
}

// ErrDuplicateAccount indicates an account id collision on Create
type ErrDuplicateAccount struct {
	AccountID uuid.UUID
}

func (e ErrDuplicateAccount) Error() string {
	return "account already exists: " + e.AccountID.String()
}
