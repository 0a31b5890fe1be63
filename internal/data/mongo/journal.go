package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

// transactionDocument is the stored form of a ledger.Transaction.
// Amounts are kept as strings to preserve exact decimal values.
type transactionDocument struct {
	TransactionID        string             `bson:"transaction_id"`
	Kind                 string             `bson:"kind"`
	Status               string             `bson:"status"`
	Amount               string             `bson:"amount"`
	Currency             string             `bson:"currency"`
	SourceAccountID      string             `bson:"source_account_id,omitempty"`
	DestinationAccountID string             `bson:"destination_account_id,omitempty"`
	Accounts             []string           `bson:"accounts"`
	Reference            string             `bson:"reference"`
	Description          string             `bson:"description,omitempty"`
	IdempotencyKey       string             `bson:"idempotency_key"`
	OccurredAt           time.Time          `bson:"occurred_at"`
	Rejection            *rejectionDocument `bson:"rejection,omitempty"`
}

type rejectionDocument struct {
	Reason    string `bson:"reason"`
	Field     string `bson:"field,omitempty"`
	AccountID string `bson:"account_id,omitempty"`
	Balance   string `bson:"balance,omitempty"`
	Message   string `bson:"message"`
}

// Journal implements ledger.Journal on a MongoDB collection
type Journal struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewJournal creates a journal backed by the given collection
func NewJournal(logger *slog.Logger, collection *mongo.Collection) *Journal {
	return &Journal{
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the indexes the journal relies on.
// The unique transaction_id index is what makes concurrent appends safe.
func (j *Journal) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "transaction_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_transaction_id"),
		},
		{
			Keys:    bson.D{{Key: "reference", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_reference"),
		},
		{
			Keys:    bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("occurred_at_desc"),
		},
		{
			Keys:    bson.D{{Key: "accounts", Value: 1}, {Key: "occurred_at", Value: -1}},
			Options: options.Index().SetName("accounts_occurred_at"),
		},
	}

	if _, err := j.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create journal indexes: %w", err)
	}
	return nil
}

// Append inserts tx unless a document with the same transaction id exists
func (j *Journal) Append(ctx context.Context, tx *ledger.Transaction) error {
	filter := bson.M{"transaction_id": tx.ID.String()}
	update := bson.M{"$setOnInsert": toDocument(tx)}

	_, err := j.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// A concurrent upsert of the same id won the race
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		j.logger.Error("Failed to append transaction",
			"transaction_id", tx.ID.String(),
			"error", err)
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// Get retrieves a transaction by its id
func (j *Journal) Get(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	var doc transactionDocument
	err := j.collection.FindOne(ctx, bson.M{"transaction_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ledger.ErrTransactionNotFound{TransactionID: id}
		}
		j.logger.Error("Failed to get transaction",
			"transaction_id", id.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return fromDocument(&doc)
}

// Query returns a page of matching transactions, newest first.
// _id breaks ties on occurred_at since ObjectIDs grow with insertion.
func (j *Journal) Query(ctx context.Context, filter ledger.Filter) ([]*ledger.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(max(filter.Offset, 0))).
		SetLimit(int64(filter.PageSize()))

	cursor, err := j.collection.Find(ctx, buildFilter(filter), opts)
	if err != nil {
		j.logger.Error("Failed to query transactions", "error", err)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []transactionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		j.logger.Error("Failed to decode transactions", "error", err)
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	txs := make([]*ledger.Transaction, 0, len(docs))
	for i := range docs {
		tx, err := fromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// Count counts matching transactions, ignoring pagination
func (j *Journal) Count(ctx context.Context, filter ledger.Filter) (int64, error) {
	count, err := j.collection.CountDocuments(ctx, buildFilter(filter))
	if err != nil {
		j.logger.Error("Failed to count transactions", "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// buildFilter translates a journal filter into a MongoDB query document
func buildFilter(f ledger.Filter) bson.M {
	query := bson.M{}
	if f.AccountID != nil {
		query["accounts"] = f.AccountID.String()
	}
	if f.Kind != "" {
		query["kind"] = string(f.Kind)
	}
	if f.Status != "" {
		query["status"] = string(f.Status)
	}

	occurred := bson.M{}
	if f.From != nil {
		occurred["$gte"] = *f.From
	}
	if f.To != nil {
		occurred["$lt"] = *f.To
	}
	if len(occurred) > 0 {
		query["occurred_at"] = occurred
	}
	return query
}

func toDocument(tx *ledger.Transaction) *transactionDocument {
	doc := &transactionDocument{
		TransactionID:  tx.ID.String(),
		Kind:           string(tx.Kind),
		Status:         string(tx.Status),
		Amount:         tx.Amount.String(),
		Currency:       string(tx.Currency),
		Accounts:       []string{},
		Reference:      tx.Reference,
		Description:    tx.Description,
		IdempotencyKey: tx.IdempotencyKey,
		OccurredAt:     tx.OccurredAt.UTC(),
	}
	if tx.SourceAccountID != nil {
		doc.SourceAccountID = tx.SourceAccountID.String()
		doc.Accounts = append(doc.Accounts, doc.SourceAccountID)
	}
	if tx.DestinationAccountID != nil {
		doc.DestinationAccountID = tx.DestinationAccountID.String()
		doc.Accounts = append(doc.Accounts, doc.DestinationAccountID)
	}

	if r := tx.Rejection; r != nil {
		doc.Rejection = &rejectionDocument{
			Reason:  string(r.Reason),
			Field:   r.Field,
			Message: r.Message,
		}
		if r.AccountID != nil {
			doc.Rejection.AccountID = r.AccountID.String()
		}
		if r.Balance != nil {
			doc.Rejection.Balance = r.Balance.String()
		}
	}
	return doc
}

func fromDocument(doc *transactionDocument) (*ledger.Transaction, error) {
	id, err := uuid.Parse(doc.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", doc.TransactionID, err)
	}
	amount, err := decimal.NewFromString(doc.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for transaction %s: %w", doc.TransactionID, err)
	}

	tx := &ledger.Transaction{
		ID:             id,
		Kind:           ledger.Kind(doc.Kind),
		Status:         ledger.Status(doc.Status),
		Amount:         amount,
		Currency:       account.Currency(doc.Currency),
		Reference:      doc.Reference,
		Description:    doc.Description,
		IdempotencyKey: doc.IdempotencyKey,
		OccurredAt:     doc.OccurredAt.UTC(),
	}
	if tx.SourceAccountID, err = parseOptionalID(doc.SourceAccountID); err != nil {
		return nil, err
	}
	if tx.DestinationAccountID, err = parseOptionalID(doc.DestinationAccountID); err != nil {
		return nil, err
	}

	if r := doc.Rejection; r != nil {
		rejection := &ledger.Rejection{
			Reason:  ledger.Reason(r.Reason),
			Field:   r.Field,
			Message: r.Message,
		}
		if rejection.AccountID, err = parseOptionalID(r.AccountID); err != nil {
			return nil, err
		}
		if r.Balance != "" {
			balance, err := decimal.NewFromString(r.Balance)
			if err != nil {
				return nil, fmt.Errorf("invalid rejection balance for transaction %s: %w", doc.TransactionID, err)
			}
			rejection.Balance = &balance
		}
		tx.Rejection = rejection
	}
	return tx, nil
}

func parseOptionalID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("invalid account id %q: %w", s, err)
	}
	return &id, nil
}

var _ ledger.Journal = (*Journal)(nil)
