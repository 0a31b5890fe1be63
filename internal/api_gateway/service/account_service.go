package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
)

// AccountServiceImpl implements the AccountService interface
type AccountServiceImpl struct {
	registry account.Registry
}

// NewAccountService creates a new account service
func NewAccountService(registry account.Registry) AccountService {
	return &AccountServiceImpl{
		registry: registry,
	}
}

// CreateAccount validates the currency and registers a zero-balance account
func (s *AccountServiceImpl) CreateAccount(ctx context.Context, ownerID uuid.UUID, currency string) (*account.Account, error) {
	code, err := account.ParseCurrency(currency)
	if err != nil {
		return nil, err
	}

	acc, err := account.NewAccount(ownerID, code)
	if err != nil {
		return nil, err
	}

	if err := s.registry.Create(ctx, acc); err != nil {
		return nil, err
	}

	return acc, nil
}

// GetAccountByID retrieves an account by its ID, returns ErrAccountNotFound if not found
func (s *AccountServiceImpl) GetAccountByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.registry.GetAccount(ctx, id)
}

func (s *AccountServiceImpl) ListAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	if ownerID == uuid.Nil {
		return nil, account.ErrEmptyOwner
	}
	return s.registry.ListByOwner(ctx, ownerID)
}

func (s *AccountServiceImpl) BalanceTotals(ctx context.Context) ([]account.CurrencyTotal, error) {
	return s.registry.BalanceTotals(ctx)
}
