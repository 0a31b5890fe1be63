package account

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccount(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		ownerID := uuid.New()

		beforeCreation := time.Now().UTC()
		acc, err := NewAccount(ownerID, CurrencyKES)
		afterCreation := time.Now().UTC()

		require.NoError(t, err)
		require.NotNil(t, acc)

		assert.NotEqual(t, uuid.Nil, acc.ID, "Account ID should not be nil")
		assert.Equal(t, ownerID, acc.OwnerID)
		assert.Equal(t, CurrencyKES, acc.Currency)
		assert.True(t, acc.Balance.IsZero())
		assert.True(t, acc.AvailableBalance.IsZero())
		assert.Equal(t, 1, acc.Version, "Initial version should be 1")
		assert.WithinDuration(t, beforeCreation, acc.CreatedAt, afterCreation.Sub(beforeCreation)+time.Millisecond)
	})

	t.Run("EmptyOwner", func(t *testing.T) {
		acc, err := NewAccount(uuid.Nil, CurrencyUSD)
		assert.ErrorIs(t, err, ErrEmptyOwner)
		assert.Nil(t, acc)
	})

	t.Run("UnsupportedCurrency", func(t *testing.T) {
		acc, err := NewAccount(uuid.New(), Currency("GBP"))
		assert.ErrorIs(t, err, ErrInvalidCurrency)
		assert.Nil(t, acc)
	})
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" kes ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyKES, c)

	_, err = ParseCurrency("JPY")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestAccount_Apply(t *testing.T) {
	newAcc := func(balance string) *Account {
		b := decimal.RequireFromString(balance)
		return &Account{
			ID:               uuid.New(),
			Currency:         CurrencyKES,
			Balance:          b,
			AvailableBalance: b,
			Version:          3,
		}
	}

	t.Run("Credit", func(t *testing.T) {
		acc := newAcc("100")
		at := time.Now()

		err := acc.Apply(CurrencyKES, decimal.NewFromInt(50), at)

		require.NoError(t, err)
		assert.True(t, acc.Balance.Equal(decimal.NewFromInt(150)))
		assert.True(t, acc.AvailableBalance.Equal(decimal.NewFromInt(150)))
		assert.Equal(t, 4, acc.Version)
		assert.Equal(t, at, acc.UpdatedAt)
	})

	t.Run("DebitToZero", func(t *testing.T) {
		acc := newAcc("100.50")

		err := acc.Apply(CurrencyKES, decimal.RequireFromString("-100.50"), time.Now())

		require.NoError(t, err)
		assert.True(t, acc.Balance.IsZero())
		assert.NoError(t, acc.CheckInvariants())
	})

	t.Run("InsufficientFundsLeavesAccountUntouched", func(t *testing.T) {
		acc := newAcc("100")

		err := acc.Apply(CurrencyKES, decimal.NewFromInt(-101), time.Now())

		var insufficient ErrInsufficientFunds
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, acc.ID, insufficient.AccountID)
		assert.True(t, insufficient.Available.Equal(decimal.NewFromInt(100)))
		assert.True(t, insufficient.Requested.Equal(decimal.NewFromInt(101)))
		assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, 3, acc.Version)
	})

	t.Run("DebitLimitedByAvailableBalance", func(t *testing.T) {
		acc := newAcc("100")
		acc.AvailableBalance = decimal.NewFromInt(40)

		err := acc.Apply(CurrencyKES, decimal.NewFromInt(-60), time.Now())

		assert.ErrorIs(t, err, ErrInsufficientFunds{})
	})

	t.Run("CurrencyMismatch", func(t *testing.T) {
		acc := newAcc("100")

		err := acc.Apply(CurrencyUSD, decimal.NewFromInt(10), time.Now())

		var mismatch ErrCurrencyMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, CurrencyKES, mismatch.Expected)
		assert.Equal(t, CurrencyUSD, mismatch.Actual)
		assert.True(t, acc.Balance.Equal(decimal.NewFromInt(100)))
	})
}

func TestAccount_CheckInvariants(t *testing.T) {
	acc := &Account{Balance: decimal.NewFromInt(10), AvailableBalance: decimal.NewFromInt(11)}
	assert.ErrorIs(t, acc.CheckInvariants(), ErrNegativeBalance)

	acc = &Account{Balance: decimal.NewFromInt(-1), AvailableBalance: decimal.NewFromInt(-1)}
	assert.ErrorIs(t, acc.CheckInvariants(), ErrNegativeBalance)

	acc = &Account{Balance: decimal.NewFromInt(10), AvailableBalance: decimal.NewFromInt(4)}
	assert.NoError(t, acc.CheckInvariants())
}

func TestErrorMatching(t *testing.T) {
	id := uuid.New()
	err := error(ErrAccountNotFound{AccountID: id})

	assert.True(t, errors.Is(err, ErrAccountNotFound{}))
	assert.True(t, errors.Is(err, ErrAccountNotFound{AccountID: id}))
	assert.False(t, errors.Is(err, ErrAccountNotFound{AccountID: uuid.New()}))
	assert.False(t, errors.Is(err, ErrCurrencyMismatch{}))
}
