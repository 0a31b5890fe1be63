// Package retry computes capped exponential backoff delays with full jitter.
package retry

import (
	"context"
	"math/rand"
	"time"
)

const maxShift = 30

// Backoff describes the delay schedule between retry attempts
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Ceiling returns base * 2^attempt capped at Max
func (b Backoff) Ceiling(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	attempt = min(max(attempt, 0), maxShift)

	delay := b.Base << attempt
	if delay <= 0 || (b.Max > 0 && delay > b.Max) {
		return b.Max
	}
	return delay
}

// Delay returns a random duration in [0, Ceiling(attempt))
func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Ceiling(attempt)
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
