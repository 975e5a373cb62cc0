// Package risk annotates detected opportunities with a confidence score and
// a coarse risk level. The score gates auto-execution; manual execution is
// never blocked by it.
package risk

import (
	"log/slog"
	"math"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/pricing"
)

// Config holds the scoring tunables.
type Config struct {
	// MinSamples is the history depth at which the depth component of the
	// score saturates.
	MinSamples int
	// MaxQuoteAge is the age beyond which the freshness component reaches
	// zero.
	MaxQuoteAge time.Duration
	// HighVolatility is the relative stddev (stddev/mean) treated as fully
	// risky.
	HighVolatility float64
	// SuspectProfitPct marks spreads so wide they are more likely stale
	// data than free money.
	SuspectProfitPct float64
}

// DefaultConfig returns conservative scoring defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:       20,
		MaxQuoteAge:      30 * time.Second,
		HighVolatility:   0.05,
		SuspectProfitPct: 20,
	}
}

// HistoryReader is the slice of the history set the scorer needs.
type HistoryReader interface {
	Recent(pairKey string, n int) []domain.PricePoint
	Len(pairKey string) int
}

// Scorer computes confidence and risk annotations from pair history.
type Scorer struct {
	history HistoryReader
	cfg     Config
	logger  *slog.Logger
}

// NewScorer creates a Scorer reading from the given history.
func NewScorer(history HistoryReader, cfg Config, logger *slog.Logger) *Scorer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = DefaultConfig().MaxQuoteAge
	}
	if cfg.HighVolatility <= 0 {
		cfg.HighVolatility = DefaultConfig().HighVolatility
	}
	if cfg.SuspectProfitPct <= 0 {
		cfg.SuspectProfitPct = DefaultConfig().SuspectProfitPct
	}
	return &Scorer{history: history, cfg: cfg, logger: logger}
}

// Score returns the confidence in [0,1] and the risk level for the
// opportunity. Confidence blends history depth, quote freshness, and
// recent volatility of the pair.
func (s *Scorer) Score(opp domain.ArbitrageOpportunity) (float64, domain.RiskLevel) {
	pairKey := domain.NewTokenPair(opp.TokenIn, opp.TokenOut).Key()
	points := s.history.Recent(pairKey, s.cfg.MinSamples)

	depth := float64(len(points)) / float64(s.cfg.MinSamples)
	if depth > 1 {
		depth = 1
	}

	freshness := 0.0
	if len(points) > 0 {
		age := time.Now().UTC().Sub(points[0].Timestamp)
		freshness = 1 - float64(age)/float64(s.cfg.MaxQuoteAge)
		freshness = clamp01(freshness)
	}

	relVol := 0.0
	if mean := pricing.Average(points); mean > 0 {
		relVol = pricing.Volatility(points) / mean
	}
	stability := clamp01(1 - relVol/s.cfg.HighVolatility)

	confidence := 0.4*depth + 0.3*freshness + 0.3*stability

	level := domain.RiskLow
	switch {
	case relVol >= s.cfg.HighVolatility || opp.ProfitPercentage >= s.cfg.SuspectProfitPct:
		level = domain.RiskHigh
	case confidence < 0.5:
		level = domain.RiskMedium
	}

	if s.logger != nil {
		s.logger.Debug("risk: scored opportunity",
			slog.String("pair", pairKey),
			slog.Float64("confidence", round2(confidence)),
			slog.String("level", string(level)),
			slog.Float64("rel_vol", round2(relVol)),
		)
	}
	return confidence, level
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
