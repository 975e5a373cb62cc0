// Package funding selects the cheapest flash-funding source for a trade.
//
// Providers quote a fee for borrowing a token amount for the duration of a
// settlement bundle. The selector fans a request out to every registered
// provider, drops the ones that do not carry the token, and picks the
// lowest fee. Net profitability after the funding fee gates auto-execution.
package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/domain"
)

// Pool is a flash-liquidity provider with a flat percentage fee and a fixed
// set of supported tokens. Aave-style pools charge 0.05%, Balancer-style
// pools charge nothing.
type Pool struct {
	name   string
	feePct float64
	tokens map[string]struct{}
}

var _ domain.FundingProvider = (*Pool)(nil)

// NewPool builds a pool named name charging feePct percent on the borrowed
// amount, funding only the given tokens.
func NewPool(name string, feePct float64, tokens []common.Address) *Pool {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t.Hex())] = struct{}{}
	}
	if feePct < 0 {
		feePct = 0
	}
	return &Pool{name: name, feePct: feePct, tokens: set}
}

// Name returns the provider identifier used in quotes and execution records.
func (p *Pool) Name() string { return p.name }

// GetFee quotes the funding cost for borrowing amount of token.
func (p *Pool) GetFee(ctx context.Context, token domain.Token, amount float64) (domain.FundingQuote, error) {
	if !p.supports(token) {
		return domain.FundingQuote{}, fmt.Errorf("funding: %s does not fund %s: %w", p.name, token.String(), domain.ErrNoProviderForToken)
	}
	if amount <= 0 {
		return domain.FundingQuote{}, fmt.Errorf("funding: %s: amount must be positive, got %v", p.name, amount)
	}
	fee := amount * p.feePct / 100
	return domain.FundingQuote{
		Provider:      p.name,
		Token:         token,
		Amount:        amount,
		FeePercentage: p.feePct,
		FeeAmount:     fee,
		TotalRequired: amount + fee,
		QuotedAt:      time.Now().UTC(),
	}, nil
}

// Execute locks the loan terms for the settlement bundle. Flash liquidity
// repays atomically inside the bundle, so there is no standalone
// transaction to reference here.
func (p *Pool) Execute(ctx context.Context, req domain.FundingRequest) (domain.FundingResult, error) {
	if !p.supports(req.Token) {
		return domain.FundingResult{}, fmt.Errorf("funding: %s does not fund %s: %w", p.name, req.Token.String(), domain.ErrNoProviderForToken)
	}
	if req.Amount <= 0 {
		return domain.FundingResult{Success: false, Reason: "non-positive amount"}, nil
	}
	return domain.FundingResult{
		Success: true,
		Fee:     req.Amount * p.feePct / 100,
	}, nil
}

func (p *Pool) supports(token domain.Token) bool {
	_, ok := p.tokens[strings.ToLower(token.Address.Hex())]
	return ok
}
