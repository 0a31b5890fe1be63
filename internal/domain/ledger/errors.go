package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/shopspring/decimal"
)

// Rejection describes why an operation ended in the rejected state.
// Rejections are business outcomes: they are journaled and replayed like commits.
type Rejection struct {
	Reason    Reason           `json:"reason"`
	Field     string           `json:"field,omitempty"`
	AccountID *uuid.UUID       `json:"account_id,omitempty"`
	Balance   *decimal.Decimal `json:"balance,omitempty"` // Available balance at the time of rejection
	Message   string           `json:"message"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

// Error is returned by the engine for outcomes that are not cached under the idempotency key
type Error struct {
	Reason    Reason
	Field     string
	AccountID *uuid.UUID
	Balance   *decimal.Decimal
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same reason
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinels for errors.Is checks against a reason
var (
	ErrIdempotencyKeyReuse   = &Error{Reason: ReasonIdempotencyKeyReuse}
	ErrIdempotencyInFlight   = &Error{Reason: ReasonIdempotencyInFlight}
	ErrConcurrencyConflict   = &Error{Reason: ReasonConcurrencyConflict}
	ErrInternalInconsistency = &Error{Reason: ReasonInternalInconsistency}
	ErrInvalidOperation      = &Error{Reason: ReasonInvalidOperation}
	ErrJournalUnavailable    = &Error{Reason: ReasonJournalUnavailable}
)

// ReasonOf extracts the reason code of a ledger error, if any
func ReasonOf(err error) (Reason, bool) {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Reason, true
	}
	return "", false
}

// RejectionFromRegistry maps a registry validation error onto a rejection.
// It returns nil for errors that are not business outcomes.
func RejectionFromRegistry(err error, field string) *Rejection {
	var (
		notFound     account.ErrAccountNotFound
		mismatch     account.ErrCurrencyMismatch
		insufficient account.ErrInsufficientFunds
	)
	switch {
	case errors.As(err, &notFound):
		id := notFound.AccountID
		return &Rejection{Reason: ReasonAccountNotFound, Field: field, AccountID: &id, Message: err.Error()}
	case errors.As(err, &mismatch):
		id := mismatch.AccountID
		return &Rejection{Reason: ReasonCurrencyMismatch, Field: "currency", AccountID: &id, Message: err.Error()}
	case errors.As(err, &insufficient):
		id := insufficient.AccountID
		available := insufficient.Available
		return &Rejection{Reason: ReasonInsufficientFunds, Field: "amount", AccountID: &id, Balance: &available, Message: err.Error()}
	}
	return nil
}
