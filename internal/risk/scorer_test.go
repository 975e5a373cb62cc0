package risk

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/pricing"
)

var (
	weth = domain.Token{Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), Symbol: "WETH"}
	usdc = domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Symbol: "USDC"}
)

func opp(profitPct float64) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		TokenIn:          usdc,
		TokenOut:         weth,
		SourceVenue:      "uniswap",
		TargetVenue:      "sushiswap",
		ProfitPercentage: profitPct,
	}
}

func fill(h *pricing.HistorySet, pairKey string, n int, price float64) {
	now := time.Now().UTC()
	for i := 0; i < n; i++ {
		h.Push(pairKey, domain.PricePoint{
			Price:     price,
			Timestamp: now.Add(-time.Duration(n-i) * time.Second),
			VenueID:   "uniswap",
		})
	}
}

func TestScoreRewardsDeepFreshStableHistory(t *testing.T) {
	h := pricing.NewHistorySet(64)
	pairKey := domain.NewTokenPair(usdc, weth).Key()
	fill(h, pairKey, 30, 1.0)

	s := NewScorer(h, Config{MinSamples: 20, MaxQuoteAge: time.Minute, HighVolatility: 0.05}, slog.Default())
	confidence, level := s.Score(opp(2.5))

	if confidence < 0.8 {
		t.Errorf("confidence = %v, want >= 0.8 for deep fresh stable history", confidence)
	}
	if level != domain.RiskLow {
		t.Errorf("level = %v, want low", level)
	}
}

func TestScorePenalisesEmptyHistory(t *testing.T) {
	h := pricing.NewHistorySet(64)
	s := NewScorer(h, Config{}, nil)

	confidence, level := s.Score(opp(2.5))
	if confidence > 0.35 {
		t.Errorf("confidence = %v, want low score with no history", confidence)
	}
	if level == domain.RiskLow {
		t.Error("no history should not score as low risk")
	}
}

func TestScoreFlagsSuspectSpreads(t *testing.T) {
	h := pricing.NewHistorySet(64)
	pairKey := domain.NewTokenPair(usdc, weth).Key()
	fill(h, pairKey, 30, 1.0)

	s := NewScorer(h, Config{SuspectProfitPct: 20}, nil)
	_, level := s.Score(opp(45))
	if level != domain.RiskHigh {
		t.Errorf("level = %v, want high for a 45%% spread", level)
	}
}

func TestScoreFlagsVolatilePairs(t *testing.T) {
	h := pricing.NewHistorySet(64)
	pairKey := domain.NewTokenPair(usdc, weth).Key()
	now := time.Now().UTC()
	prices := []float64{1.0, 1.4, 0.7, 1.3, 0.6, 1.5, 0.8, 1.2}
	for i, p := range prices {
		h.Push(pairKey, domain.PricePoint{Price: p, Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	s := NewScorer(h, Config{HighVolatility: 0.05}, nil)
	_, level := s.Score(opp(2.5))
	if level != domain.RiskHigh {
		t.Errorf("level = %v, want high for a volatile pair", level)
	}
}
