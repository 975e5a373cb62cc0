package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quantrend/dexarb/internal/domain"
)

// Selector fans quote requests out to registered providers and picks the
// cheapest one that carries the token.
type Selector struct {
	providers []domain.FundingProvider
	byName    map[string]domain.FundingProvider
	logger    *slog.Logger
}

// NewSelector creates a Selector over the given providers. Registration
// order breaks fee ties.
func NewSelector(logger *slog.Logger, providers ...domain.FundingProvider) *Selector {
	byName := make(map[string]domain.FundingProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Selector{
		providers: providers,
		byName:    byName,
		logger:    logger.With(slog.String("component", "funding")),
	}
}

// Quote collects a funding quote from every provider that supports the
// token. Providers that do not carry it are skipped; providers that fail
// are logged and skipped.
func (s *Selector) Quote(ctx context.Context, token domain.Token, amount float64) []domain.FundingQuote {
	quotes := make([]domain.FundingQuote, 0, len(s.providers))
	for _, p := range s.providers {
		q, err := p.GetFee(ctx, token, amount)
		if err != nil {
			if errors.Is(err, domain.ErrNoProviderForToken) {
				s.logger.DebugContext(ctx, "provider skipped",
					slog.String("provider", p.Name()),
					slog.String("token", token.String()))
				continue
			}
			s.logger.WarnContext(ctx, "funding quote failed",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()))
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}

// SelectBest returns the quote with the lowest fee amount among providers
// that support the token. It fails with ErrNoProviderForToken when no
// provider carries it.
func (s *Selector) SelectBest(ctx context.Context, token domain.Token, amount float64) (domain.FundingQuote, error) {
	quotes := s.Quote(ctx, token, amount)
	if len(quotes) == 0 {
		return domain.FundingQuote{}, fmt.Errorf("funding: no provider funds %s: %w", token.String(), domain.ErrNoProviderForToken)
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.FeeAmount < best.FeeAmount {
			best = q
		}
	}
	s.logger.DebugContext(ctx, "funding selected",
		slog.String("provider", best.Provider),
		slog.Float64("feeAmount", best.FeeAmount))
	return best, nil
}

// NetProfitability subtracts the funding fee from the expected profit. A
// fee at or above the expected profit makes the trade unprofitable.
func (s *Selector) NetProfitability(expectedProfit float64, quote domain.FundingQuote) domain.Profitability {
	net := expectedProfit - quote.FeeAmount
	return domain.Profitability{
		IsProfitable: net > 0,
		NetProfit:    net,
	}
}

// Provider looks a registered provider up by name, for executing a
// previously selected quote.
func (s *Selector) Provider(name string) (domain.FundingProvider, bool) {
	p, ok := s.byName[name]
	return p, ok
}
