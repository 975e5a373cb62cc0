package domain

import (
	"strings"
	"time"
)

// OpportunityStatus is the lifecycle state of a detected opportunity.
// Transitions are pending -> executing -> completed | failed; completed and
// failed are terminal. A pending record may be replaced in place by a rescan
// of the same discrepancy, keeping its id.
type OpportunityStatus string

const (
	OpportunityPending   OpportunityStatus = "pending"
	OpportunityExecuting OpportunityStatus = "executing"
	OpportunityCompleted OpportunityStatus = "completed"
	OpportunityFailed    OpportunityStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s OpportunityStatus) Terminal() bool {
	return s == OpportunityCompleted || s == OpportunityFailed
}

// RiskLevel is a coarse heuristic annotation on an opportunity.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// riskRank orders risk levels for tolerance comparisons.
var riskRank = map[RiskLevel]int{RiskLow: 0, RiskMedium: 1, RiskHigh: 2}

// Within reports whether the level is at or below the given tolerance.
func (r RiskLevel) Within(tolerance RiskLevel) bool {
	return riskRank[r] <= riskRank[tolerance]
}

// ArbitrageOpportunity is a detected price discrepancy for one token pair
// across two venues, net of estimated costs. Created by the scanner; status
// is mutated only by the opportunity manager.
type ArbitrageOpportunity struct {
	ID               string
	TokenIn          Token
	TokenOut         Token
	SourceVenue      string // buy side, the venue quoting the lower ratio
	TargetVenue      string // sell side
	SourcePrice      float64
	TargetPrice      float64
	ProfitPercentage float64
	EstimatedProfit  float64
	GasEstimate      float64
	TradeSize        float64
	ConfidenceScore  float64
	RiskLevel        RiskLevel
	Status           OpportunityStatus
	FailureReason    string
	DetectedAt       time.Time
	UpdatedAt        time.Time
	ExecutedAt       *time.Time
	TxRef            string
}

// NaturalKey identifies the discrepancy independent of detection time.
// Two non-terminal records may never share a natural key; rescans of a live
// discrepancy replace the existing record instead of duplicating it.
func (o ArbitrageOpportunity) NaturalKey() string {
	return strings.Join([]string{
		strings.ToLower(o.TokenIn.Address.Hex()),
		strings.ToLower(o.TokenOut.Address.Hex()),
		o.SourceVenue,
		o.TargetVenue,
	}, "|")
}

// ExecutionStrategy selects how the manager schedules executions.
type ExecutionStrategy string

const (
	// StrategySequential executes at most one opportunity at a time, in
	// discovery order.
	StrategySequential ExecutionStrategy = "sequential"
	// StrategyConcurrent executes up to MaxConcurrentTrades at once, in
	// discovery order.
	StrategyConcurrent ExecutionStrategy = "concurrent"
	// StrategyPriority executes up to MaxConcurrentTrades at once, admitting
	// the highest profit percentage first.
	StrategyPriority ExecutionStrategy = "priority"
)
