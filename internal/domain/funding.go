package domain

import (
	"context"
	"time"
)

// FundingQuote is the cost of borrowing flash capital from one provider for
// a single atomic execution. Quotes are computed on demand and never
// persisted.
type FundingQuote struct {
	Provider      string
	Token         Token
	Amount        float64
	FeePercentage float64
	FeeAmount     float64
	TotalRequired float64
	QuotedAt      time.Time
}

// FundingRequest asks a provider to arrange flash capital for an execution.
type FundingRequest struct {
	Token       Token
	Amount      float64
	Opportunity ArbitrageOpportunity
}

// FundingResult reports the outcome of a funding execution.
type FundingResult struct {
	Success bool
	Fee     float64
	TxRef   string
	Reason  string
}

// FundingProvider is one flash-funding source. GetFee returns
// ErrNoProviderForToken when the provider does not support the token, which
// the selector treats as "skip", not as failure.
type FundingProvider interface {
	Name() string
	GetFee(ctx context.Context, token Token, amount float64) (FundingQuote, error)
	Execute(ctx context.Context, req FundingRequest) (FundingResult, error)
}

// Profitability is the outcome of netting a funding fee against an
// opportunity's expected profit.
type Profitability struct {
	IsProfitable bool
	NetProfit    float64
}
