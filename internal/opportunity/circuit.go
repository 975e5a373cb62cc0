package opportunity

import (
	"sync"
	"time"
)

// circuitBreaker halts auto-execution after a run of consecutive failures
// landing within a bounded window. A success clears the streak; once open,
// only an explicit Reset closes it again.
type circuitBreaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	streak    []time.Time
	open      bool
}

func newCircuitBreaker(threshold int, window time.Duration) *circuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &circuitBreaker{threshold: threshold, window: window}
}

// RecordFailure notes one execution failure and reports whether this
// failure tripped the breaker open.
func (c *circuitBreaker) RecordFailure(at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.streak = append(c.streak, at)
	if len(c.streak) > c.threshold {
		c.streak = c.streak[len(c.streak)-c.threshold:]
	}
	if c.open || len(c.streak) < c.threshold {
		return false
	}
	if at.Sub(c.streak[0]) <= c.window {
		c.open = true
		return true
	}
	return false
}

// RecordSuccess clears the failure streak. It does not close an open
// breaker; that takes an operator Reset.
func (c *circuitBreaker) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streak = nil
}

func (c *circuitBreaker) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Reset closes the breaker and clears the streak.
func (c *circuitBreaker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.streak = nil
}
