package account

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInvalidCurrency = errors.New("currency must be one of KES, USD, EUR")
	ErrEmptyOwner      = errors.New("owner id cannot be empty")
	ErrNegativeBalance = errors.New("balance cannot be negative")
)

// Currency is an ISO 4217 code supported by the ledger
type Currency string

const (
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// ParseCurrency normalizes and validates a currency code
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.Valid() {
		return "", ErrInvalidCurrency
	}
	return c, nil
}

// Valid reports whether c is a supported currency
func (c Currency) Valid() bool {
	switch c {
	case CurrencyKES, CurrencyUSD, CurrencyEUR:
		return true
	}
	return false
}

// Account represents a single-currency wallet.
// Reserved funds are Balance - AvailableBalance.
type Account struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Currency         Currency        `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Version          int             `json:"version"` // For optimistic locking
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewAccount creates an empty account for the given owner and currency
func NewAccount(ownerID uuid.UUID, currency Currency) (*Account, error) {
	if ownerID == uuid.Nil {
		return nil, ErrEmptyOwner
	}
	if !currency.Valid() {
		return nil, ErrInvalidCurrency
	}

	now := time.Now().UTC()
	return &Account{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Currency:         currency,
		Balance:          decimal.Zero,
		AvailableBalance: decimal.Zero,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Apply checks and applies a signed delta to both balance and available balance.
// The account is left untouched when an error is returned.
func (a *Account) Apply(currency Currency, delta decimal.Decimal, at time.Time) error {
	if a.Currency != currency {
		return ErrCurrencyMismatch{AccountID: a.ID, Expected: a.Currency, Actual: currency}
	}
	if delta.IsNegative() && !a.CanDebit(delta.Neg()) {
		return ErrInsufficientFunds{AccountID: a.ID, Available: a.AvailableBalance, Requested: delta.Neg()}
	}

	a.Balance = a.Balance.Add(delta)
	a.AvailableBalance = a.AvailableBalance.Add(delta)
	a.Version++
	a.UpdatedAt = at
	return nil
}

// CanDebit checks if the available balance covers amount
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.AvailableBalance.GreaterThanOrEqual(amount)
}

// CheckInvariants verifies balance >= 0 and 0 <= available <= balance
func (a *Account) CheckInvariants() error {
	if a.Balance.IsNegative() || a.AvailableBalance.IsNegative() || a.AvailableBalance.GreaterThan(a.Balance) {
		return ErrNegativeBalance
	}
	return nil
}

// CurrencyTotal is the sum of all balances held in one currency
type CurrencyTotal struct {
	Currency         Currency        `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	Accounts         int64           `json:"accounts"`
}
