// Package ratelimit provides the in-process rolling-window limiter that
// guards outbound quote fetches. It mirrors the sliding-window semantics of
// the Redis keyed limiter but needs no external service, so the engine can
// run in monitor mode with nothing but itself.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// Limiter admits at most max acquisitions within any trailing window. It
// keeps the timestamps of granted permits and prunes expired ones on every
// call, so memory is bounded by max.
type Limiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	grants []time.Time // granted-permit timestamps, oldest first
}

var _ domain.RateLimiter = (*Limiter)(nil)

// New creates a Limiter allowing max acquisitions per window. max < 1 or a
// non-positive window are clamped to 1 and one second.
func New(max int, window time.Duration) *Limiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		max:    max,
		window: window,
		grants: make([]time.Time, 0, max),
	}
}

// TryAcquire attempts to take a permit without blocking.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)
	if len(l.grants) >= l.max {
		return false
	}
	l.grants = append(l.grants, now)
	return true
}

// Acquire blocks until a permit is available or ctx is done, and reports
// whether a permit was obtained. Callers bound the wait with a deadline on
// ctx; a false return maps to domain.ErrRateLimited and is retryable.
func (l *Limiter) Acquire(ctx context.Context) bool {
	for {
		if l.TryAcquire() {
			return true
		}

		wait := l.nextFree()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// Remaining reports how many permits are currently available.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(time.Now())
	return l.max - len(l.grants)
}

// prune drops grants that have aged out of the trailing window. Callers
// must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.grants) && !l.grants[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// nextFree returns how long until the oldest grant leaves the window. When
// no grants are held it returns a small poll interval so Acquire re-checks
// promptly.
func (l *Limiter) nextFree() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.grants) == 0 {
		return 10 * time.Millisecond
	}
	wait := time.Until(l.grants[0].Add(l.window))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}
