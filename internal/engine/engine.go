package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/account"
	"github.com/multicurrency-ledger/internal/domain/idempotency"
	"github.com/multicurrency-ledger/internal/domain/ledger"
	"github.com/multicurrency-ledger/internal/platform/retry"
)

// Submitter executes money-movement operations
type Submitter interface {
	Submit(ctx context.Context, op ledger.Operation) (*ledger.Transaction, error)
}

// EventPublisher announces final transactions to other services
type EventPublisher interface {
	PublishTransaction(ctx context.Context, tx *ledger.Transaction) error
}

// Engine validates, applies and records operations.
// It is the only writer of account balances.
type Engine struct {
	registry     account.Registry
	journal      ledger.Journal
	idempotency  idempotency.Store
	publisher    EventPublisher
	locks        *accountLocker
	clock        Clock
	ids          IDGenerator
	journalRetry JournalRetry
	logger       *slog.Logger
}

// JournalRetry bounds how long Submit keeps trying to journal a final outcome
type JournalRetry struct {
	MaxAttempts int
	Backoff     retry.Backoff
}

var defaultJournalRetry = JournalRetry{
	MaxAttempts: 5,
	Backoff:     retry.Backoff{Base: 20 * time.Millisecond, Max: time.Second},
}

// Option customizes an Engine
type Option func(*Engine)

// WithClock overrides the transaction timestamp source
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDGenerator overrides transaction id and reference generation
func WithIDGenerator(ids IDGenerator) Option {
	return func(e *Engine) { e.ids = ids }
}

// WithJournalRetry overrides the journal append retry schedule
func WithJournalRetry(r JournalRetry) Option {
	return func(e *Engine) {
		if r.MaxAttempts < 1 {
			r.MaxAttempts = 1
		}
		e.journalRetry = r
	}
}

// WithPublisher publishes every final transaction after it is journaled
func WithPublisher(publisher EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func NewEngine(
	registry account.Registry,
	journal ledger.Journal,
	store idempotency.Store,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		registry:     registry,
		journal:      journal,
		idempotency:  store,
		locks:        newAccountLocker(),
		clock:        systemClock{},
		ids:          randomIDs{},
		journalRetry: defaultJournalRetry,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit runs op at most once per idempotency key.
// Rejections come back as a rejected Transaction with a nil error; errors are
// reserved for outcomes that are not cached under the key.
func (e *Engine) Submit(ctx context.Context, op ledger.Operation) (*ledger.Transaction, error) {
	op = op.Normalized()
	logger := e.logger.With("idempotency_key", op.IdempotencyKey, "kind", string(op.Kind))

	if op.IdempotencyKey == "" {
		return nil, &ledger.Error{Reason: ledger.ReasonInvalidOperation, Field: "idempotency_key", Message: "idempotency key is required"}
	}

	fingerprint, err := ledger.Fingerprint(op)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint operation: %w", err)
	}

	outcome, err := e.idempotency.Begin(ctx, op.IdempotencyKey, fingerprint)
	if err != nil {
		return nil, e.beginError(err, op.IdempotencyKey)
	}

	if outcome.Replay != nil {
		logger.Debug("Replaying cached outcome", "transaction_id", outcome.Replay.ID.String(), "status", string(outcome.Replay.Status))
		// Heals a journal append that failed on the first execution
		if err := e.journal.Append(context.WithoutCancel(ctx), outcome.Replay); err != nil {
			logger.Warn("Failed to re-append replayed transaction", "transaction_id", outcome.Replay.ID.String(), "error", err)
		}
		return outcome.Replay, nil
	}

	lease := outcome.Lease
	tx, err := e.execute(ctx, op, logger)
	if err != nil {
		if relErr := e.idempotency.Release(context.WithoutCancel(ctx), lease); relErr != nil {
			logger.Error("Failed to release idempotency lease", "error", relErr)
		}
		if errors.Is(err, ledger.ErrInternalInconsistency) {
			logger.Error("Operation left the ledger inconsistent", "error", err)
		}
		return nil, err
	}

	// From here on the outcome is final and must be recorded regardless of the caller
	dctx := context.WithoutCancel(ctx)

	journalErr := e.appendToJournal(dctx, tx, logger)

	if err := e.idempotency.Complete(dctx, lease, tx); err != nil {
		logger.Error("Failed to complete idempotency lease", "transaction_id", tx.ID.String(), "error", err)
		if relErr := e.idempotency.Release(dctx, lease); relErr != nil {
			logger.Error("Failed to release idempotency lease", "error", relErr)
		}
		return nil, &ledger.Error{
			Reason:  ledger.ReasonInternalInconsistency,
			Message: "outcome could not be stored under its idempotency key",
			Err:     err,
		}
	}

	// The outcome is cached, so a retry with the same key replays it and
	// re-appends it; nothing is applied twice.
	if journalErr != nil {
		logger.Error("Transaction applied but not journaled", "transaction_id", tx.ID.String(), "error", journalErr)
		return nil, &ledger.Error{
			Reason:  ledger.ReasonJournalUnavailable,
			Message: "transaction was applied but not yet journaled, retry with the same idempotency key",
			Err:     journalErr,
		}
	}

	if e.publisher != nil {
		if err := e.publisher.PublishTransaction(dctx, tx); err != nil {
			logger.Warn("Failed to publish transaction event", "transaction_id", tx.ID.String(), "error", err)
		}
	}

	if tx.Committed() {
		logger.Info("Transaction committed", "transaction_id", tx.ID.String(), "reference", tx.Reference, "amount", tx.Amount.String(), "currency", string(tx.Currency))
	} else {
		logger.Warn("Transaction rejected", "transaction_id", tx.ID.String(), "reason", string(tx.Rejection.Reason), "field", tx.Rejection.Field)
	}
	return tx, nil
}

// appendToJournal retries Append with backoff. ctx must not be cancellable by the caller.
func (e *Engine) appendToJournal(ctx context.Context, tx *ledger.Transaction, logger *slog.Logger) error {
	var err error
	for attempt := 0; attempt < e.journalRetry.MaxAttempts; attempt++ {
		if attempt > 0 {
			if sleepErr := retry.Sleep(ctx, e.journalRetry.Backoff.Delay(attempt-1)); sleepErr != nil {
				return errors.Join(err, sleepErr)
			}
		}
		if err = e.journal.Append(ctx, tx); err == nil {
			return nil
		}
		logger.Warn("Failed to append transaction to journal", "transaction_id", tx.ID.String(), "attempt", attempt+1, "error", err)
	}
	return err
}

func (e *Engine) beginError(err error, key string) error {
	var (
		reuse   idempotency.ErrKeyReuse
		timeout idempotency.ErrWaitTimeout
	)
	switch {
	case errors.As(err, &reuse):
		return &ledger.Error{Reason: ledger.ReasonIdempotencyKeyReuse, Field: "idempotency_key", Message: "idempotency key was already used with a different payload", Err: err}
	case errors.As(err, &timeout):
		return &ledger.Error{Reason: ledger.ReasonIdempotencyInFlight, Field: "idempotency_key", Message: "a request with this idempotency key is still being processed", Err: err}
	}
	return fmt.Errorf("failed to begin idempotency key %q: %w", key, err)
}

// execute moves an operation to a terminal state. A nil error always comes
// with a committed or rejected transaction.
func (e *Engine) execute(ctx context.Context, op ledger.Operation, logger *slog.Logger) (*ledger.Transaction, error) {
	if rejection := op.Validate(); rejection != nil {
		return e.newTransaction(op, rejection), nil
	}

	unlock, err := e.locks.Acquire(ctx, op.AccountIDs()...)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire account locks: %w", err)
	}
	defer unlock()

	// Cancellation is only honoured while waiting for locks
	ctx = context.WithoutCancel(ctx)
	logger.Debug("Account locks acquired", "accounts", len(op.AccountIDs()))

	var rejection *ledger.Rejection
	switch op.Kind {
	case ledger.KindDeposit:
		rejection, err = e.deposit(ctx, op)
	case ledger.KindWithdraw:
		rejection, err = e.withdraw(ctx, op)
	case ledger.KindTransfer:
		rejection, err = e.transfer(ctx, op, logger)
	}
	if err != nil {
		return nil, err
	}
	return e.newTransaction(op, rejection), nil
}

func (e *Engine) deposit(ctx context.Context, op ledger.Operation) (*ledger.Rejection, error) {
	_, err := e.registry.ApplyDelta(ctx, *op.DestinationAccountID, op.Currency, op.Amount)
	return classify(err, "destination_account_id")
}

func (e *Engine) withdraw(ctx context.Context, op ledger.Operation) (*ledger.Rejection, error) {
	_, err := e.registry.ApplyDelta(ctx, *op.SourceAccountID, op.Currency, op.Amount.Neg())
	return classify(err, "source_account_id")
}

// transfer debits the source first, then credits the destination.
// A failed credit is undone by crediting the source back.
func (e *Engine) transfer(ctx context.Context, op ledger.Operation, logger *slog.Logger) (*ledger.Rejection, error) {
	sourceID := *op.SourceAccountID
	destinationID := *op.DestinationAccountID

	for _, side := range []struct {
		id    uuid.UUID
		field string
	}{{sourceID, "source_account_id"}, {destinationID, "destination_account_id"}} {
		acc, err := e.registry.GetAccount(ctx, side.id)
		if err != nil {
			return classify(err, side.field)
		}
		if acc.Currency != op.Currency {
			return classify(account.ErrCurrencyMismatch{AccountID: acc.ID, Expected: acc.Currency, Actual: op.Currency}, side.field)
		}
	}

	if _, err := e.registry.ApplyDelta(ctx, sourceID, op.Currency, op.Amount.Neg()); err != nil {
		return classify(err, "source_account_id")
	}

	_, creditErr := e.registry.ApplyDelta(ctx, destinationID, op.Currency, op.Amount)
	if creditErr == nil {
		return nil, nil
	}

	logger.Error("Credit failed after debit, reversing debit",
		"source_account_id", sourceID.String(),
		"destination_account_id", destinationID.String(),
		"error", creditErr,
	)
	if _, err := e.registry.ApplyDelta(ctx, sourceID, op.Currency, op.Amount); err != nil {
		return nil, &ledger.Error{
			Reason:    ledger.ReasonInternalInconsistency,
			Field:     "source_account_id",
			AccountID: &sourceID,
			Message:   fmt.Sprintf("debit of %s %s could not be reversed", op.Amount, op.Currency),
			Err:       errors.Join(creditErr, err),
		}
	}
	logger.Info("Debit reversed", "source_account_id", sourceID.String(), "amount", op.Amount.String())

	return classify(creditErr, "destination_account_id")
}

func (e *Engine) newTransaction(op ledger.Operation, rejection *ledger.Rejection) *ledger.Transaction {
	return ledger.NewTransaction(e.ids.NewTransactionID(), e.ids.NewReference(), op, e.clock.Now(), rejection)
}

// classify splits registry errors into business rejections and system errors
func classify(err error, field string) (*ledger.Rejection, error) {
	if err == nil {
		return nil, nil
	}
	if rejection := ledger.RejectionFromRegistry(err, field); rejection != nil {
		return rejection, nil
	}

	var conflict account.ErrConcurrentModification
	if errors.As(err, &conflict) {
		id := conflict.AccountID
		return nil, &ledger.Error{
			Reason:    ledger.ReasonConcurrencyConflict,
			Field:     field,
			AccountID: &id,
			Message:   "account was modified concurrently, retry the request",
			Err:       err,
		}
	}
	return nil, fmt.Errorf("failed to update %s: %w", field, err)
}

var _ Submitter = (*Engine)(nil)
