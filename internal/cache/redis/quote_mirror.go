package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantrend/dexarb/internal/domain"
)

// quoteTTL expires mirrored quotes that stop being refreshed, so a halted
// engine does not leave stale prices behind for readers.
const quoteTTL = 5 * time.Minute

// QuoteMirror implements domain.QuoteMirror using Redis hashes. Each quote
// is stored at "quote:{venue}:{pairKey}" with fields "price", "ts", and
// "venue" so sibling processes and UIs can read current prices without
// touching the venues themselves.
type QuoteMirror struct {
	rdb *redis.Client
}

// NewQuoteMirror creates a QuoteMirror backed by the given Client.
func NewQuoteMirror(c *Client) *QuoteMirror {
	return &QuoteMirror{rdb: c.Underlying()}
}

func quoteKey(venueID, pairKey string) string {
	return "quote:" + venueID + ":" + pairKey
}

// SetQuote mirrors the latest observed quote for a (venue, pair).
func (qm *QuoteMirror) SetQuote(ctx context.Context, venueID, pairKey string, p domain.PricePoint) error {
	key := quoteKey(venueID, pairKey)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(p.Price, 'f', -1, 64),
		"ts":    strconv.FormatInt(p.Timestamp.UnixNano(), 10),
		"venue": p.VenueID,
	}

	pipe := qm.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetQuote reads back the mirrored quote for a (venue, pair). It returns
// domain.ErrNotFound when no quote has been mirrored or it has expired.
func (qm *QuoteMirror) GetQuote(ctx context.Context, venueID, pairKey string) (domain.PricePoint, error) {
	key := quoteKey(venueID, pairKey)
	vals, err := qm.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.PricePoint{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse price %s: %w", key, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PricePoint{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("redis: parse ts %s: %w", key, err)
	}

	return domain.PricePoint{
		Price:     price,
		Timestamp: time.Unix(0, tsNano).UTC(),
		VenueID:   vals["venue"],
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteMirror = (*QuoteMirror)(nil)
