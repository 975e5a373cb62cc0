package domain

import (
	"context"
	"time"
)

// RateLimiter bounds outbound request volume over a rolling window. One
// limiter instance guards one upstream; all methods are safe for concurrent
// use. Acquire blocks until a permit is available or ctx is done and
// reports whether a permit was obtained.
type RateLimiter interface {
	TryAcquire() bool
	Acquire(ctx context.Context) bool
	Remaining() int
}

// KeyedLimiter provides distributed, per-key rate limiting. Used by the API
// middleware where limits are per client rather than per process.
type KeyedLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking, used to keep two replicas from
// executing the same opportunity.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// QuoteMirror mirrors the latest quote per (venue, pair) to shared storage
// so sibling processes and UIs can read prices without hitting venues.
type QuoteMirror interface {
	SetQuote(ctx context.Context, venueID, pairKey string, p PricePoint) error
	GetQuote(ctx context.Context, venueID, pairKey string) (PricePoint, error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// EventBus provides pub/sub fan-out of engine events plus a durable,
// bounded stream for audit replay. StreamRead pages forward from a known
// id; StreamRecent answers the other common question, "what happened
// last", returning the newest count entries in ascending order.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}
