package engine

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type accountLock struct {
	sem  chan struct{}
	refs int
}

// accountLocker hands out one exclusive lock per account.
// Locks for a multi-account operation are always taken in ascending id order.
type accountLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*accountLock
}

func newAccountLocker() *accountLocker {
	return &accountLocker{locks: make(map[uuid.UUID]*accountLock)}
}

// Acquire blocks until every account is locked or ctx is done.
// On success the returned func releases all of them.
func (l *accountLocker) Acquire(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	ordered := lockOrder(ids)
	held := make([]uuid.UUID, 0, len(ordered))

	for _, id := range ordered {
		lk := l.ref(id)
		select {
		case lk.sem <- struct{}{}:
			held = append(held, id)
		case <-ctx.Done():
			l.unref(id)
			l.release(held)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

func (l *accountLocker) release(held []uuid.UUID) {
	for i := len(held) - 1; i >= 0; i-- {
		l.mu.Lock()
		lk := l.locks[held[i]]
		l.mu.Unlock()

		<-lk.sem
		l.unref(held[i])
	}
}

func (l *accountLocker) ref(id uuid.UUID) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk, ok := l.locks[id]
	if !ok {
		lk = &accountLock{sem: make(chan struct{}, 1)}
		l.locks[id] = lk
	}
	lk.refs++
	return lk
}

func (l *accountLocker) unref(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lk := l.locks[id]
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many accounts currently have a lock entry
func (l *accountLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func lockOrder(ids []uuid.UUID) []uuid.UUID {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(ordered)
}
