package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/multicurrency-ledger/internal/domain/ledger"
)

type journalEntry struct {
	seq int64
	tx  *ledger.Transaction
}

// Journal is an append-only in-memory transaction log
type Journal struct {
	mu      sync.RWMutex
	entries []journalEntry
	byID    map[uuid.UUID]int
}

// NewJournal creates an empty journal
func NewJournal() *Journal {
	return &Journal{byID: make(map[uuid.UUID]int)}
}

// Append records tx once; re-appending the same ID is a no-op
func (j *Journal) Append(ctx context.Context, tx *ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.byID[tx.ID]; exists {
		return nil
	}
	j.byID[tx.ID] = len(j.entries)
	j.entries = append(j.entries, journalEntry{seq: int64(len(j.entries)), tx: tx.Clone()})
	return nil
}

// Get looks up a transaction by ID
func (j *Journal) Get(ctx context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	idx, ok := j.byID[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound{TransactionID: id}
	}
	return j.entries[idx].tx.Clone(), nil
}

// Query returns matching transactions newest-first
func (j *Journal) Query(ctx context.Context, filter ledger.Filter) ([]*ledger.Transaction, error) {
	matches, err := j.matching(ctx, filter)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b journalEntry) int {
		if c := b.tx.OccurredAt.Compare(a.tx.OccurredAt); c != 0 {
			return c
		}
		// Later appends first when timestamps tie
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})

	offset := max(filter.Offset, 0)
	if offset >= len(matches) {
		return []*ledger.Transaction{}, nil
	}
	end := min(offset+filter.PageSize(), len(matches))

	page := make([]*ledger.Transaction, 0, end-offset)
	for _, e := range matches[offset:end] {
		page = append(page, e.tx.Clone())
	}
	return page, nil
}

// Count returns the number of matching transactions, ignoring pagination
func (j *Journal) Count(ctx context.Context, filter ledger.Filter) (int64, error) {
	matches, err := j.matching(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matches)), nil
}

func (j *Journal) matching(ctx context.Context, filter ledger.Filter) ([]journalEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	matches := make([]journalEntry, 0)
	for _, e := range j.entries {
		if filter.Matches(e.tx) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

var _ ledger.Journal = (*Journal)(nil)
