// Package postgres provides the PostgreSQL account registry.
// Balance updates use optimistic compare-and-swap on the version column.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/platform/persistence"
	"github.com/multicurrency-ledger/internal/platform/retry"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// RetryConfig bounds optimistic update retries
type RetryConfig struct {
	MaxAttempts int
	Backoff     retry.Backoff
}

// AccountRegistry implements account.Registry for PostgreSQL
type AccountRegistry struct {
	querier persistence.Querier
	retry   RetryConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewAccountRegistry creates a registry backed by the database pool
func NewAccountRegistry(logger *slog.Logger, db *persistence.PostgresDB, retryConfig RetryConfig) *AccountRegistry {
	return newAccountRegistry(db.Pool(), retryConfig, logger)
}

func newAccountRegistry(querier persistence.Querier, retryConfig RetryConfig, logger *slog.Logger) *AccountRegistry {
	if retryConfig.MaxAttempts < 1 {
		retryConfig.MaxAttempts = 1
	}
	return &AccountRegistry{
		querier: querier,
		retry:   retryConfig,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

// Create stores a new account
func (r *AccountRegistry) Create(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, currency, balance, available_balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.OwnerID,
		string(acc.Currency),
		acc.Balance,
		acc.AvailableBalance,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return account.ErrDuplicateAccount{AccountID: acc.ID}
		}
		r.logger.Error("Failed to create account", "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// GetAccount retrieves an account by its ID
func (r *AccountRegistry) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT id, owner_id, currency, balance, available_balance, version, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	var (
		acc      account.Account
		currency string
	)
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&acc.ID,
		&acc.OwnerID,
		&currency,
		&acc.Balance,
		&acc.AvailableBalance,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	acc.Currency = account.Currency(currency)

	return &acc, nil
}

// ListByOwner returns the owner's accounts, oldest first
func (r *AccountRegistry) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	query := `
		SELECT id, owner_id, currency, balance, available_balance, version, created_at, updated_at
		FROM accounts
		WHERE owner_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.querier.Query(ctx, query, ownerID)
	if err != nil {
		r.logger.Error("Failed to list accounts", "owner_id", ownerID.String(), "error", err)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0)
	for rows.Next() {
		var (
			acc      account.Account
			currency string
		)
		if err := rows.Scan(
			&acc.ID,
			&acc.OwnerID,
			&currency,
			&acc.Balance,
			&acc.AvailableBalance,
			&acc.Version,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acc.Currency = account.Currency(currency)
		accounts = append(accounts, &acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// ApplyDelta reads the account, checks the delta in memory and writes it back
// only if nobody else bumped the version in between. Conflicts are retried
// with jittered exponential backoff.
func (r *AccountRegistry) ApplyDelta(ctx context.Context, id uuid.UUID, currency account.Currency, delta decimal.Decimal) (*account.Account, error) {
	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.retry.Backoff.Delay(attempt - 1)
			r.logger.Debug("Retrying balance update after version conflict", "id", id.String(), "attempt", attempt+1, "delay", delay)
			if err := retry.Sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		current, err := r.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}

		updated := *current
		if err := updated.Apply(currency, delta, r.now()); err != nil {
			return nil, err
		}

		swapped, err := r.compareAndSwap(ctx, &updated, current.Version)
		if err != nil {
			return nil, err
		}
		if swapped {
			return &updated, nil
		}
	}

	r.logger.Warn("Balance update retries exhausted", "id", id.String(), "attempts", r.retry.MaxAttempts)
	return nil, account.ErrConcurrentModification{AccountID: id, Attempts: r.retry.MaxAttempts}
}

func (r *AccountRegistry) compareAndSwap(ctx context.Context, acc *account.Account, expectedVersion int) (bool, error) {
	query := `
		UPDATE accounts
		SET balance = $1, available_balance = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6
	`

	result, err := r.querier.Exec(ctx, query,
		acc.Balance,
		acc.AvailableBalance,
		acc.Version,
		acc.UpdatedAt,
		acc.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update account balance", "id", acc.ID.String(), "error", err)
		return false, fmt.Errorf("failed to update account balance: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// BalanceTotals sums balances per currency
func (r *AccountRegistry) BalanceTotals(ctx context.Context) ([]account.CurrencyTotal, error) {
	query := `
		SELECT currency, COALESCE(SUM(balance), 0), COALESCE(SUM(available_balance), 0), COUNT(*)
		FROM accounts
		GROUP BY currency
		ORDER BY currency
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query balance totals", "error", err)
		return nil, fmt.Errorf("failed to query balance totals: %w", err)
	}
	defer rows.Close()

	totals := make([]account.CurrencyTotal, 0)
	for rows.Next() {
		var (
			total    account.CurrencyTotal
			currency string
		)
		if err := rows.Scan(&currency, &total.Balance, &total.AvailableBalance, &total.Accounts); err != nil {
			return nil, fmt.Errorf("failed to scan balance totals: %w", err)
		}
		total.Currency = account.Currency(currency)
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate balance totals: %w", err)
	}

	return totals, nil
}

var _ account.Registry = (*AccountRegistry)(nil)
