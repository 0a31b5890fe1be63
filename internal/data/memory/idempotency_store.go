package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/idempotency"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

type idempotencyRecord struct {
	record idempotency.Record
	token  uuid.UUID
	done   chan struct{} // closed on Complete or Release
}

// IdempotencyStore keeps idempotency records for the process lifetime
type IdempotencyStore struct {
	mu          sync.Mutex
	records     map[string]*idempotencyRecord
	waitTimeout time.Duration
	now         func() time.Time
}

// NewIdempotencyStore creates a store whose duplicates wait at most waitTimeout
// for an in-flight execution
func NewIdempotencyStore(waitTimeout time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		records:     make(map[string]*idempotencyRecord),
		waitTimeout: waitTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Begin acquires key or replays its completed result
func (s *IdempotencyStore) Begin(ctx context.Context, key, fingerprint string) (idempotency.Outcome, error) {
	if key == "" {
		return idempotency.Outcome{}, idempotency.ErrEmptyKey
	}

	timer := time.NewTimer(s.waitTimeout)
	defer timer.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return idempotency.Outcome{}, err
		}

		s.mu.Lock()
		rec, exists := s.records[key]
		if !exists {
			lease := &idempotency.Lease{Token: uuid.New(), Key: key, Fingerprint: fingerprint}
			s.records[key] = &idempotencyRecord{
				record: idempotency.Record{
					Key:         key,
					Fingerprint: fingerprint,
					State:       idempotency.StateInFlight,
					CreatedAt:   s.now(),
				},
				token: lease.Token,
				done:  make(chan struct{}),
			}
			s.mu.Unlock()
			return idempotency.Outcome{Lease: lease}, nil
		}

		if rec.record.Fingerprint != fingerprint {
			s.mu.Unlock()
			return idempotency.Outcome{}, idempotency.ErrKeyReuse{Key: key}
		}
		if rec.record.State == idempotency.StateCompleted {
			result := rec.record.Result.Clone()
			s.mu.Unlock()
			return idempotency.Outcome{Replay: result}, nil
		}
		done := rec.done
		s.mu.Unlock()

		select {
		case <-done:
			// Completed or released; re-check under the lock
		case <-timer.C:
			return idempotency.Outcome{}, idempotency.ErrWaitTimeout{Key: key, Timeout: s.waitTimeout}
		case <-ctx.Done():
			return idempotency.Outcome{}, ctx.Err()
		}
	}
}

// Complete stores result under the lease's key and wakes waiting duplicates
func (s *IdempotencyStore) Complete(_ context.Context, lease *idempotency.Lease, result *ledger.Transaction) error {
	if result == nil {
		return idempotency.ErrNilResult
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.held(lease)
	if err != nil {
		return err
	}

	completedAt := s.now()
	rec.record.State = idempotency.StateCompleted
	rec.record.Result = result.Clone()
	rec.record.CompletedAt = &completedAt
	close(rec.done)
	return nil
}

// Release forgets an in-flight key so the next Begin executes again
func (s *IdempotencyStore) Release(_ context.Context, lease *idempotency.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.held(lease)
	if err != nil {
		return err
	}

	delete(s.records, lease.Key)
	close(rec.done)
	return nil
}

// Lookup returns a copy of the record stored under key
func (s *IdempotencyStore) Lookup(key string) (idempotency.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return idempotency.Record{}, false
	}
	record := rec.record
	record.Result = record.Result.Clone()
	return record, true
}

// held must be called with s.mu locked
func (s *IdempotencyStore) held(lease *idempotency.Lease) (*idempotencyRecord, error) {
	if lease == nil {
		return nil, idempotency.ErrUnknownLease
	}
	rec, ok := s.records[lease.Key]
	if !ok || rec.token != lease.Token {
		return nil, idempotency.ErrUnknownLease
	}
	if rec.record.State == idempotency.StateCompleted {
		return nil, idempotency.ErrLeaseCompleted
	}
	return rec, nil
}

var _ idempotency.Store = (*IdempotencyStore)(nil)
