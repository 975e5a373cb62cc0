package domain

import "time"

// ExecutionOutcome classifies a finished execution attempt.
type ExecutionOutcome string

const (
	ExecutionSucceeded ExecutionOutcome = "succeeded"
	ExecutionFailed    ExecutionOutcome = "failed"
)

// ExecutionRecord is the persisted result of one execution attempt of one
// opportunity, kept for PnL accounting and the audit trail.
type ExecutionRecord struct {
	ID              string
	OpportunityID   string
	NaturalKey      string
	TokenIn         string // symbol, for reporting
	TokenOut        string
	SourceVenue     string
	TargetVenue     string
	TradeSize       float64
	ExpectedProfit  float64
	FundingProvider string
	FundingFee      float64
	GasCost         float64
	RealizedProfit  float64
	Outcome         ExecutionOutcome
	Reason          string
	TxRef           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Duration returns how long the attempt took.
func (e ExecutionRecord) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}
