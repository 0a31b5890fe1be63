package ledger

// Kind defines the money movement an operation performs
type Kind string

const (
	KindDeposit  Kind = "deposit"
	KindTransfer Kind = "transfer"
	KindWithdraw Kind = "withdraw"
)

// Valid reports whether k is a known operation kind
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindTransfer, KindWithdraw:
		return true
	}
	return false
}

// Status defines the terminal state of a transaction
type Status string

const (
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// Valid reports whether s is a terminal status
func (s Status) Valid() bool {
	return s == StatusCommitted || s == StatusRejected
}

// Reason classifies why an operation did not commit
type Reason string

const (
	ReasonInvalidAmount         Reason = "INVALID_AMOUNT"
	ReasonInvalidOperation      Reason = "INVALID_OPERATION"
	ReasonAccountNotFound       Reason = "ACCOUNT_NOT_FOUND"
	ReasonCurrencyMismatch      Reason = "CURRENCY_MISMATCH"
	ReasonInsufficientFunds     Reason = "INSUFFICIENT_FUNDS"
	ReasonSameAccountTransfer   Reason = "SAME_ACCOUNT_TRANSFER"
	ReasonIdempotencyKeyReuse   Reason = "IDEMPOTENCY_KEY_REUSE"
	ReasonIdempotencyInFlight   Reason = "IDEMPOTENCY_IN_FLIGHT"
	ReasonConcurrencyConflict   Reason = "CONCURRENCY_CONFLICT"
	ReasonInternalInconsistency Reason = "INTERNAL_INCONSISTENCY"
	ReasonJournalUnavailable    Reason = "JOURNAL_UNAVAILABLE"
)

// Fatal reports whether the reason signals a violated invariant
func (r Reason) Fatal() bool {
	return r == ReasonInternalInconsistency
}
