package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

// Common errors
var (
	ErrEmptyKey       = errors.New("idempotency key cannot be empty")
	ErrLeaseCompleted = errors.New("idempotency lease already completed")
	ErrUnknownLease   = errors.New("idempotency lease not found")
	ErrNilResult      = errors.New("idempotency result cannot be nil")
)

// State defines the lifecycle of a record
type State string

const (
	StateInFlight  State = "in_flight"
	StateCompleted State = "completed"
)

// Record maps a key to the outcome of its first execution
type Record struct {
	Key         string
	Fingerprint string
	State       State
	Result      *ledger.Transaction
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Lease grants its holder the exclusive right to execute a key
type Lease struct {
	Token       uuid.UUID
	Key         string
	Fingerprint string
}

// Outcome is the result of Begin: exactly one of Replay and Lease is set
type Outcome struct {
	Replay *ledger.Transaction
	Lease  *Lease
}

// Store serializes executions per idempotency key
type Store interface {
	// Begin acquires the key or returns the cached outcome of its first execution.
	// A concurrent duplicate waits for the in-flight holder to finish.
	Begin(ctx context.Context, key, fingerprint string) (Outcome, error)
	// Complete stores the result under the lease's key. It fails on a second call.
	Complete(ctx context.Context, lease *Lease, result *ledger.Transaction) error
	// Release drops an in-flight record so a later retry executes again
	Release(ctx context.Context, lease *Lease) error
}

// ErrKeyReuse indicates the key was first used with a different payload
type ErrKeyReuse struct {
	Key string
}

func (e ErrKeyReuse) Error() string {
	return "idempotency key reused with a different payload: " + e.Key
}

// ErrWaitTimeout indicates an in-flight duplicate did not resolve in time
type ErrWaitTimeout struct {
	Key     string
	Timeout time.Duration
}

func (e ErrWaitTimeout) Error() string {
	return "timed out after " + e.Timeout.String() + " waiting for in-flight idempotency key: " + e.Key
}
