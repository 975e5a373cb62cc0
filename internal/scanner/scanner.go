// Package scanner implements opportunity detection: given the current price
// per token on every active venue, it produces ranked arbitrage candidates.
// The scan is O(V².T²) in venues and tokens and is therefore run on the
// compute offloader, never on the polling loop.
package scanner

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"

	"github.com/quantrend/dexarb/internal/domain"
)

// DefaultAssumedGasUnits is the flat per-trade gas assumption used when no
// estimate is configured. It approximates a two-swap route with a flash loan
// wrapper; a verified on-chain estimate would replace it per candidate.
const DefaultAssumedGasUnits uint64 = 300_000

// Params are the tunables of one scan cycle, captured from the engine
// config at submission time.
type Params struct {
	MinProfitPercentage float64
	TradeSize           float64
	GasPriceGwei        float64
	AssumedGasUnits     uint64
}

// Input is the self-contained payload of one scan: token metadata, the
// per-venue quote sets, and the params. It carries no references into live
// engine state, so it serialises cleanly across the offload boundary.
type Input struct {
	Tokens []domain.Token
	Venues []domain.VenuePrices
	Params Params
}

// Scan compares the pairwise token price ratios of every venue pair and
// returns candidates whose profit clears both gates: the percentage
// threshold and a positive estimate net of gas. Results are sorted by
// profit percentage descending, ties broken by lower gas estimate.
func Scan(in Input) []domain.ArbitrageOpportunity {
	cfg := in.Params
	if cfg.AssumedGasUnits == 0 {
		cfg.AssumedGasUnits = DefaultAssumedGasUnits
	}

	tokens := make(map[string]domain.Token, len(in.Tokens))
	for _, t := range in.Tokens {
		tokens[strings.ToLower(t.Address.Hex())] = t
	}

	ratios := make([]venueRatios, 0, len(in.Venues))
	for _, v := range in.Venues {
		ratios = append(ratios, ratiosForVenue(v))
	}

	gasCost := GasCostNative(cfg.GasPriceGwei, cfg.AssumedGasUnits)
	now := time.Now().UTC()

	var out []domain.ArbitrageOpportunity
	for i := 0; i < len(ratios); i++ {
		for j := i + 1; j < len(ratios); j++ {
			out = append(out, compare(ratios[i], ratios[j], tokens, cfg, gasCost, now)...)
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].ProfitPercentage != out[b].ProfitPercentage {
			return out[a].ProfitPercentage > out[b].ProfitPercentage
		}
		return out[a].GasEstimate < out[b].GasEstimate
	})
	return out
}

// GasCostNative converts a gas price in gwei and a unit count into a cost
// denominated in the chain's native token.
func GasCostNative(gwei float64, units uint64) float64 {
	return gwei * float64(units) * (float64(params.GWei) / float64(params.Ether))
}

// venueRatios holds one venue's pairwise price ratios keyed by the ordered
// token address pair "a|b" with a < b.
type venueRatios struct {
	venueID string
	ratios  map[ratioKey]float64
}

type ratioKey struct {
	a string // lower token address, lowercase hex
	b string
}

// ratiosForVenue precomputes price[a]/price[b] for every unordered token
// pair present in the venue's quote set. Tokens quoted at zero or below are
// skipped.
func ratiosForVenue(v domain.VenuePrices) venueRatios {
	addrs := make([]string, 0, len(v.Prices))
	for addr, price := range v.Prices {
		if price > 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)

	out := venueRatios{venueID: v.VenueID, ratios: make(map[ratioKey]float64)}
	for i := 0; i < len(addrs); i++ {
		for j := i + 1; j < len(addrs); j++ {
			out.ratios[ratioKey{a: addrs[i], b: addrs[j]}] = v.Prices[addrs[i]] / v.Prices[addrs[j]]
		}
	}
	return out
}

// compare evaluates every token pair both venues quote. The venue with the
// lower ratio is the buy side.
func compare(v1, v2 venueRatios, tokens map[string]domain.Token, p Params, gasCost float64, now time.Time) []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for key, r1 := range v1.ratios {
		r2, ok := v2.ratios[key]
		if !ok {
			continue
		}

		low, high := r1, r2
		source, target := v1.venueID, v2.venueID
		if r2 < r1 {
			low, high = r2, r1
			source, target = v2.venueID, v1.venueID
		}
		if low <= 0 {
			continue
		}

		profitPct := math.Abs(high-low) / low * 100
		if profitPct < p.MinProfitPercentage {
			continue
		}

		estProfit := p.TradeSize*profitPct/100 - gasCost
		if estProfit <= 0 {
			continue
		}

		tokenIn, okIn := tokens[key.a]
		tokenOut, okOut := tokens[key.b]
		if !okIn || !okOut {
			continue
		}

		out = append(out, domain.ArbitrageOpportunity{
			ID:               uuid.New().String(),
			TokenIn:          tokenIn,
			TokenOut:         tokenOut,
			SourceVenue:      source,
			TargetVenue:      target,
			SourcePrice:      low,
			TargetPrice:      high,
			ProfitPercentage: profitPct,
			EstimatedProfit:  estProfit,
			GasEstimate:      gasCost,
			TradeSize:        p.TradeSize,
			Status:           domain.OpportunityPending,
			DetectedAt:       now,
			UpdatedAt:        now,
		})
	}
	return out
}
