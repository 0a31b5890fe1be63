package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/shopspring/decimal"
)

type accountSlot struct {
	mu      sync.Mutex // held for the whole check-and-write of one delta
	account account.Account
}

// AccountRegistry keeps accounts in process memory with one mutex per account
type AccountRegistry struct {
	mu       sync.RWMutex // guards the slots map, not the accounts themselves
	accounts map[uuid.UUID]*accountSlot
	now      func() time.Time
}

// NewAccountRegistry creates an empty registry
func NewAccountRegistry() *AccountRegistry {
	return &AccountRegistry{
		accounts: make(map[uuid.UUID]*accountSlot),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new account
func (r *AccountRegistry) Create(ctx context.Context, acc *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := acc.CheckInvariants(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[acc.ID]; exists {
		return account.ErrDuplicateAccount{AccountID: acc.ID}
	}
	r.accounts[acc.ID] = &accountSlot{account: *acc}
	return nil
}

// GetAccount returns a snapshot of the account
func (r *AccountRegistry) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot, ok := r.slot(id)
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	snapshot := slot.account
	return &snapshot, nil
}

// ListByOwner returns snapshots of the owner's accounts, oldest first
func (r *AccountRegistry) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	slots := make([]*accountSlot, 0)
	for _, slot := range r.accounts {
		if slot.account.OwnerID == ownerID {
			slots = append(slots, slot)
		}
	}
	r.mu.RUnlock()

	accounts := make([]*account.Account, 0, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		snapshot := slot.account
		slot.mu.Unlock()
		accounts = append(accounts, &snapshot)
	}
	slices.SortFunc(accounts, func(a, b *account.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return accounts, nil
}

// ApplyDelta atomically checks and applies delta under the account's mutex
func (r *AccountRegistry) ApplyDelta(ctx context.Context, id uuid.UUID, currency account.Currency, delta decimal.Decimal) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot, ok := r.slot(id)
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()

	updated := slot.account
	if err := updated.Apply(currency, delta, r.now()); err != nil {
		return nil, err
	}
	slot.account = updated
	return &updated, nil
}

// BalanceTotals sums balances per currency, ordered by currency code
func (r *AccountRegistry) BalanceTotals(ctx context.Context) ([]account.CurrencyTotal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	slots := make([]*accountSlot, 0, len(r.accounts))
	for _, slot := range r.accounts {
		slots = append(slots, slot)
	}
	r.mu.RUnlock()

	byCurrency := make(map[account.Currency]*account.CurrencyTotal)
	for _, slot := range slots {
		slot.mu.Lock()
		acc := slot.account
		slot.mu.Unlock()

		total, ok := byCurrency[acc.Currency]
		if !ok {
			total = &account.CurrencyTotal{Currency: acc.Currency, Balance: decimal.Zero, AvailableBalance: decimal.Zero}
			byCurrency[acc.Currency] = total
		}
		total.Balance = total.Balance.Add(acc.Balance)
		total.AvailableBalance = total.AvailableBalance.Add(acc.AvailableBalance)
		total.Accounts++
	}

	totals := make([]account.CurrencyTotal, 0, len(byCurrency))
	for _, total := range byCurrency {
		totals = append(totals, *total)
	}
	slices.SortFunc(totals, func(a, b account.CurrencyTotal) int {
		switch {
		case a.Currency < b.Currency:
			return -1
		case a.Currency > b.Currency:
			return 1
		}
		return 0
	})
	return totals, nil
}

func (r *AccountRegistry) slot(id uuid.UUID) (*accountSlot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot, ok := r.accounts[id]
	return slot, ok
}

var _ account.Registry = (*AccountRegistry)(nil)
