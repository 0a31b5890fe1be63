package mongo

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func committedTransfer() *ledger.Transaction {
	source := uuid.New()
	destination := uuid.New()
	return &ledger.Transaction{
		ID:                   uuid.New(),
		Kind:                 ledger.KindTransfer,
		Status:               ledger.StatusCommitted,
		Amount:               decimal.RequireFromString("250.50"),
		Currency:             account.CurrencyKES,
		SourceAccountID:      &source,
		DestinationAccountID: &destination,
		Reference:            "0f8fad5bd9cb469fa16570867728950e",
		Description:          "rent",
		IdempotencyKey:       "key-1",
		OccurredAt:           time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func rejectedWithdrawal() *ledger.Transaction {
	source := uuid.New()
	balance := decimal.RequireFromString("30")
	return &ledger.Transaction{
		ID:              uuid.New(),
		Kind:            ledger.KindWithdraw,
		Status:          ledger.StatusRejected,
		Amount:          decimal.RequireFromString("40"),
		Currency:        account.CurrencyUSD,
		SourceAccountID: &source,
		Reference:       "7c9e6679742540de944be07fc1f90ae7",
		IdempotencyKey:  "key-2",
		OccurredAt:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Rejection: &ledger.Rejection{
			Reason:    ledger.ReasonInsufficientFunds,
			Field:     "amount",
			AccountID: &source,
			Balance:   &balance,
			Message:   "insufficient funds",
		},
	}
}

// asBSON renders a transaction the way it is stored
func asBSON(t *testing.T, tx *ledger.Transaction) bson.D {
	raw, err := bson.Marshal(toDocument(tx))
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestDocumentConversion(t *testing.T) {
	for _, tx := range []*ledger.Transaction{committedTransfer(), rejectedWithdrawal()} {
		doc := toDocument(tx)
		got, err := fromDocument(doc)
		require.NoError(t, err)

		assert.Equal(t, tx.ID, got.ID)
		assert.True(t, tx.Amount.Equal(got.Amount))
		assert.Equal(t, tx.SourceAccountID, got.SourceAccountID)
		assert.Equal(t, tx.DestinationAccountID, got.DestinationAccountID)
		assert.Equal(t, tx.Reference, got.Reference)
		assert.True(t, tx.OccurredAt.Equal(got.OccurredAt))
		if tx.Rejection != nil {
			require.NotNil(t, got.Rejection)
			assert.Equal(t, tx.Rejection.Reason, got.Rejection.Reason)
			assert.True(t, tx.Rejection.Balance.Equal(*got.Rejection.Balance))
		}
	}

	t.Run("accounts lists both sides", func(t *testing.T) {
		tx := committedTransfer()
		doc := toDocument(tx)
		assert.Equal(t, []string{tx.SourceAccountID.String(), tx.DestinationAccountID.String()}, doc.Accounts)
	})

	t.Run("corrupt amount", func(t *testing.T) {
		doc := toDocument(committedTransfer())
		doc.Amount = "abc"
		_, err := fromDocument(doc)
		assert.Error(t, err)
	})
}

func TestBuildFilter(t *testing.T) {
	accountID := uuid.New()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		name     string
		filter   ledger.Filter
		expected bson.M
	}{
		{
			name:     "empty",
			filter:   ledger.Filter{},
			expected: bson.M{},
		},
		{
			name:   "account kind and status",
			filter: ledger.Filter{AccountID: &accountID, Kind: ledger.KindDeposit, Status: ledger.StatusRejected},
			expected: bson.M{
				"accounts": accountID.String(),
				"kind":     "deposit",
				"status":   "rejected",
			},
		},
		{
			name:   "date range",
			filter: ledger.Filter{From: &from, To: &to},
			expected: bson.M{
				"occurred_at": bson.M{"$gte": from, "$lt": to},
			},
		},
		{
			name:     "open ended range",
			filter:   ledger.Filter{From: &from},
			expected: bson.M{"occurred_at": bson.M{"$gte": from}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildFilter(tt.filter))
		})
	}
}

func TestJournal_Append(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserted", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		err := journal.Append(context.Background(), committedTransfer())
		assert.NoError(t, err)
	})

	mt.Run("duplicate id is a no-op", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := journal.Append(context.Background(), committedTransfer())
		assert.NoError(t, err)
	})

	mt.Run("server error", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Message: "bad value",
		}))

		err := journal.Append(context.Background(), committedTransfer())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to append transaction")
	})
}

func TestJournal_Get(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		tx := rejectedWithdrawal()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, asBSON(t, tx)))

		got, err := journal.Get(context.Background(), tx.ID)
		require.NoError(t, err)
		assert.Equal(t, tx.ID, got.ID)
		assert.Equal(t, ledger.StatusRejected, got.Status)
		require.NotNil(t, got.Rejection)
		assert.Equal(t, ledger.ReasonInsufficientFunds, got.Rejection.Reason)
	})

	mt.Run("not found", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		id := uuid.New()
		_, err := journal.Get(context.Background(), id)
		assert.ErrorIs(t, err, ledger.ErrTransactionNotFound{TransactionID: id})
	})
}

func TestJournal_QueryAndCount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("query decodes every document", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		first, second := committedTransfer(), rejectedWithdrawal()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			asBSON(t, first), asBSON(t, second)))

		txs, err := journal.Query(context.Background(), ledger.Filter{Limit: 10})
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.Equal(t, first.ID, txs[0].ID)
		assert.Equal(t, second.ID, txs[1].ID)
	})

	mt.Run("count", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(3)}}))

		count, err := journal.Count(context.Background(), ledger.Filter{Kind: ledger.KindDeposit})
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	mt.Run("query error", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad sort"}))

		_, err := journal.Query(context.Background(), ledger.Filter{})
		assert.Error(t, err)
	})
}

func TestJournal_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("created", func(mt *mtest.T) {
		journal := NewJournal(testLogger(), mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		assert.NoError(t, journal.EnsureIndexes(context.Background()))
	})
}
