package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockOrder(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	assert.Equal(t, []uuid.UUID{low, high}, lockOrder([]uuid.UUID{high, low}))
	assert.Equal(t, []uuid.UUID{low}, lockOrder([]uuid.UUID{low, low}))
}

func TestAccountLocker_OppositeOrderDoesNotDeadlock(t *testing.T) {
	l := newAccountLocker()
	a := uuid.New()
	b := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), a, b)
			if assert.NoError(t, err) {
				unlock()
			}
		}()
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), b, a)
			if assert.NoError(t, err) {
				unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock acquisition deadlocked")
	}
	assert.Zero(t, l.size(), "idle locks are dropped")
}

func TestAccountLocker_CancelWhileWaiting(t *testing.T) {
	l := newAccountLocker()
	a := uuid.New()
	b := uuid.New()

	unlockB, err := l.Acquire(context.Background(), b)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, a, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// a must have been released by the cancelled attempt
	unlockA, err := l.Acquire(context.Background(), a)
	require.NoError(t, err)
	unlockA()
	unlockB()
	unlockB() // releasing twice is harmless

	assert.Zero(t, l.size())
}

func TestAccountLocker_Exclusive(t *testing.T) {
	l := newAccountLocker()
	a := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Acquire(context.Background(), a)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}
