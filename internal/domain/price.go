package domain

import (
	"context"
	"time"
)

// PricePoint is a single observed quote: the price of Base denominated in
// Quote on one venue at one instant. Immutable once created.
type PricePoint struct {
	Price     float64
	Timestamp time.Time
	VenueID   string
}

// Age returns how old the point is relative to now.
func (p PricePoint) Age(now time.Time) time.Duration {
	return now.Sub(p.Timestamp)
}

// QuoteSource fetches a fresh quote for a pair on one venue. Implementations
// wrap venue REST APIs or on-chain reads; errors that stem from the network
// wrap ErrTransientFetch so the polling loop can retry on the next tick.
type QuoteSource interface {
	FetchQuote(ctx context.Context, venue Venue, pair TokenPair) (PricePoint, error)
}

// VenuePrices maps token address (lowercase hex) to the venue's current
// price per token, as assembled for a scan cycle.
type VenuePrices struct {
	VenueID string
	Prices  map[string]float64
}

// QuoteUpdate is one quote delivered by a push feed subscription.
type QuoteUpdate struct {
	VenueID string
	Pair    TokenPair
	Point   PricePoint
}
