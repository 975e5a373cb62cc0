package domain

import "time"

// EngineConfig is the single mutable configuration object owned by the
// monitoring coordinator. Updates are merged field-wise via Apply and take
// effect on the next scan cycle; they never preempt in-flight executions.
type EngineConfig struct {
	PollingInterval     time.Duration
	ScanEveryNCycles    int
	MinProfitPercentage float64
	MaxTradeSize        float64
	SlippageTolerance   float64 // fraction, e.g. 0.005 = 0.5%
	GasPriceStrategy    string  // "standard", "fast", "instant"
	GasPriceGwei        float64
	AssumedGasUnits     uint64
	AutoExecute         bool
	MinConfidenceScore  float64
	RiskTolerance       RiskLevel
	Strategy            ExecutionStrategy
	MaxConcurrentTrades int
}

// EngineConfigPatch is a partial update to EngineConfig. Nil fields leave
// the current value untouched.
type EngineConfigPatch struct {
	PollingInterval     *time.Duration
	ScanEveryNCycles    *int
	MinProfitPercentage *float64
	MaxTradeSize        *float64
	SlippageTolerance   *float64
	GasPriceStrategy    *string
	GasPriceGwei        *float64
	AssumedGasUnits     *uint64
	AutoExecute         *bool
	MinConfidenceScore  *float64
	RiskTolerance       *RiskLevel
	Strategy            *ExecutionStrategy
	MaxConcurrentTrades *int
}

// Apply merges the patch into a copy of the config and returns it.
func (c EngineConfig) Apply(p EngineConfigPatch) EngineConfig {
	out := c
	if p.PollingInterval != nil {
		out.PollingInterval = *p.PollingInterval
	}
	if p.ScanEveryNCycles != nil {
		out.ScanEveryNCycles = *p.ScanEveryNCycles
	}
	if p.MinProfitPercentage != nil {
		out.MinProfitPercentage = *p.MinProfitPercentage
	}
	if p.MaxTradeSize != nil {
		out.MaxTradeSize = *p.MaxTradeSize
	}
	if p.SlippageTolerance != nil {
		out.SlippageTolerance = *p.SlippageTolerance
	}
	if p.GasPriceStrategy != nil {
		out.GasPriceStrategy = *p.GasPriceStrategy
	}
	if p.GasPriceGwei != nil {
		out.GasPriceGwei = *p.GasPriceGwei
	}
	if p.AssumedGasUnits != nil {
		out.AssumedGasUnits = *p.AssumedGasUnits
	}
	if p.AutoExecute != nil {
		out.AutoExecute = *p.AutoExecute
	}
	if p.MinConfidenceScore != nil {
		out.MinConfidenceScore = *p.MinConfidenceScore
	}
	if p.RiskTolerance != nil {
		out.RiskTolerance = *p.RiskTolerance
	}
	if p.Strategy != nil {
		out.Strategy = *p.Strategy
	}
	if p.MaxConcurrentTrades != nil {
		out.MaxConcurrentTrades = *p.MaxConcurrentTrades
	}
	return out
}
