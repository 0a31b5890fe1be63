package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/shopspring/decimal"
)

// MaxAmountScale is the number of fractional digits an amount may carry
const MaxAmountScale = 2

// Operation is a caller request to move money
type Operation struct {
	Kind                 Kind             `json:"kind"`
	Amount               decimal.Decimal  `json:"amount"`
	Currency             account.Currency `json:"currency"`
	SourceAccountID      *uuid.UUID       `json:"source_account_id,omitempty"`
	DestinationAccountID *uuid.UUID       `json:"destination_account_id,omitempty"`
	Description          string           `json:"description,omitempty"`
	IdempotencyKey       string           `json:"idempotency_key"`
}

// Validate checks the operation shape without touching any account.
// It returns nil when the operation may be executed.
func (op Operation) Validate() *Rejection {
	if !op.Kind.Valid() {
		return &Rejection{Reason: ReasonInvalidOperation, Field: "kind", Message: fmt.Sprintf("unknown operation kind %q", op.Kind)}
	}
	if !op.Amount.IsPositive() {
		return &Rejection{Reason: ReasonInvalidAmount, Field: "amount", Message: "amount must be greater than zero"}
	}
	if !op.Amount.Equal(op.Amount.Truncate(MaxAmountScale)) {
		return &Rejection{Reason: ReasonInvalidAmount, Field: "amount", Message: fmt.Sprintf("amount supports at most %d decimal places", MaxAmountScale)}
	}
	if !op.Currency.Valid() {
		return &Rejection{Reason: ReasonInvalidOperation, Field: "currency", Message: account.ErrInvalidCurrency.Error()}
	}
	if len(op.Description) > 255 {
		return &Rejection{Reason: ReasonInvalidOperation, Field: "description", Message: "description cannot exceed 255 characters"}
	}

	switch op.Kind {
	case KindDeposit:
		if op.DestinationAccountID == nil {
			return missingAccount("destination_account_id")
		}
		if op.SourceAccountID != nil {
			return unexpectedAccount("source_account_id", op.Kind)
		}
	case KindWithdraw:
		if op.SourceAccountID == nil {
			return missingAccount("source_account_id")
		}
		if op.DestinationAccountID != nil {
			return unexpectedAccount("destination_account_id", op.Kind)
		}
	case KindTransfer:
		if op.SourceAccountID == nil {
			return missingAccount("source_account_id")
		}
		if op.DestinationAccountID == nil {
			return missingAccount("destination_account_id")
		}
		if *op.SourceAccountID == *op.DestinationAccountID {
			id := *op.SourceAccountID
			return &Rejection{Reason: ReasonSameAccountTransfer, Field: "destination_account_id", AccountID: &id, Message: "cannot transfer to the same account"}
		}
	}
	return nil
}

// AccountIDs lists the accounts the operation touches
func (op Operation) AccountIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, 2)
	if op.SourceAccountID != nil {
		ids = append(ids, *op.SourceAccountID)
	}
	if op.DestinationAccountID != nil {
		ids = append(ids, *op.DestinationAccountID)
	}
	return ids
}

// Normalized trims free-text fields and upper-cases the currency code
func (op Operation) Normalized() Operation {
	op.Currency = account.Currency(strings.ToUpper(strings.TrimSpace(string(op.Currency))))
	op.Kind = Kind(strings.ToLower(strings.TrimSpace(string(op.Kind))))
	op.Description = strings.TrimSpace(op.Description)
	op.IdempotencyKey = strings.TrimSpace(op.IdempotencyKey)
	return op
}

func missingAccount(field string) *Rejection {
	return &Rejection{Reason: ReasonInvalidOperation, Field: field, Message: field + " is required"}
}

func unexpectedAccount(field string, kind Kind) *Rejection {
	return &Rejection{Reason: ReasonInvalidOperation, Field: field, Message: fmt.Sprintf("%s must be empty for a %s", field, kind)}
}
