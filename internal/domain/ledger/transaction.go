package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/shopspring/decimal"
)

// Transaction is the final outcome of an operation. It is never mutated after creation.
type Transaction struct {
	ID                   uuid.UUID        `json:"id"`
	Kind                 Kind             `json:"kind"`
	Status               Status           `json:"status"`
	Amount               decimal.Decimal  `json:"amount"`
	Currency             account.Currency `json:"currency"`
	SourceAccountID      *uuid.UUID       `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id,omitempty"`
	Reference            string           `json:"reference"`
	Description          string           `json:"description,omitempty"`
	IdempotencyKey       string           `json:"idempotency_key"`
	OccurredAt           time.Time        `json:"occurred_at"`
	Rejection            *Rejection       `json:"rejection,omitempty"`
}

// Committed reports whether the transaction moved money
func (t *Transaction) Committed() bool {
	return t.Status == StatusCommitted
}

// Touches reports whether the transaction references the account
func (t *Transaction) Touches(accountID uuid.UUID) bool {
	return (t.SourceAccountID != nil && *t.SourceAccountID == accountID) ||
		(t.DestinationAccountID != nil && *t.DestinationAccountID == accountID)
}

// NewTransaction builds a transaction from the operation that produced it.
// A non-nil rejection yields a rejected transaction.
func NewTransaction(id uuid.UUID, reference string, op Operation, at time.Time, rejection *Rejection) *Transaction {
	tx := &Transaction{
		ID:                   id,
		Kind:                 op.Kind,
		Status:               StatusCommitted,
		Amount:               op.Amount,
		Currency:             op.Currency,
		SourceAccountID:      copyID(op.SourceAccountID),
		DestinationAccountID: copyID(op.DestinationAccountID),
		Reference:            reference,
		Description:          op.Description,
		IdempotencyKey:       op.IdempotencyKey,
		OccurredAt:           at,
	}
	if rejection != nil {
		tx.Status = StatusRejected
		tx.Rejection = rejection
	}
	return tx
}

// Clone returns a deep copy that shares no pointers with t
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.SourceAccountID = copyID(t.SourceAccountID)
	c.DestinationAccountID = copyID(t.DestinationAccountID)
	if t.Rejection != nil {
		r := *t.Rejection
		r.AccountID = copyID(t.Rejection.AccountID)
		if t.Rejection.Balance != nil {
			balance := *t.Rejection.Balance
			r.Balance = &balance
		}
		c.Rejection = &r
	}
	return &c
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
