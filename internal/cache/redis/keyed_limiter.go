package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quantrend/dexarb/internal/domain"
)

// slidingWindowLua atomically trims expired entries, counts the window, and
// records the request if it fits under the limit. Timestamps are in
// microseconds; ARGV[4] is a unique member so concurrent requests in the
// same microsecond do not collapse into one entry.
const slidingWindowLua = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count < limit then
    redis.call('ZADD', KEYS[1], now, ARGV[4])
    redis.call('PEXPIRE', KEYS[1], math.ceil(window / 1000) + 1000)
    return {1, limit - count - 1}
end
return {0, 0}
`

// waitPollInterval is how often Wait re-checks the window.
const waitPollInterval = 50 * time.Millisecond

// KeyedLimiter implements domain.KeyedLimiter with a sliding window backed
// by Redis sorted sets and an atomic Lua script. Limits are shared across
// every process pointing at the same Redis, which is what the API
// middleware needs for per-client limits.
type KeyedLimiter struct {
	rdb           *redis.Client
	slidingWindow *redis.Script
}

// NewKeyedLimiter creates a KeyedLimiter backed by the given Client.
func NewKeyedLimiter(c *Client) *KeyedLimiter {
	return &KeyedLimiter{
		rdb:           c.Underlying(),
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

func rateLimitKey(key string) string {
	return "ratelimit:" + key
}

// Allow checks whether a request for the given key is permitted under the
// sliding window limit. It returns true if the request is allowed (and
// counted), or false if the limit has been reached.
func (kl *KeyedLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	result, err := kl.slidingWindow.Run(
		ctx,
		kl.rdb,
		[]string{rateLimitKey(key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
		uuid.New().String(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}

	if len(result) < 2 {
		return false, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, nil
}

// Wait blocks until a request for the given key is allowed under the given
// limit, polling at a fixed interval. It returns an error if the context is
// cancelled first.
func (kl *KeyedLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		allowed, err := kl.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.KeyedLimiter = (*KeyedLimiter)(nil)
