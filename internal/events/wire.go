package events

import (
	"strings"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// TokenJSON is the wire form of a token reference.
type TokenJSON struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals uint8  `json:"decimals,omitempty"`
}

// OpportunityJSON is the wire form of an arbitrage opportunity, shared by
// the event stream and the REST API.
type OpportunityJSON struct {
	ID               string     `json:"id"`
	TokenIn          TokenJSON  `json:"tokenIn"`
	TokenOut         TokenJSON  `json:"tokenOut"`
	SourceVenue      string     `json:"sourceVenue"`
	TargetVenue      string     `json:"targetVenue"`
	SourcePrice      float64    `json:"sourcePrice"`
	TargetPrice      float64    `json:"targetPrice"`
	ProfitPercentage float64    `json:"profitPercentage"`
	EstimatedProfit  float64    `json:"estimatedProfit"`
	GasEstimate      float64    `json:"gasEstimate"`
	TradeSize        float64    `json:"tradeSize"`
	ConfidenceScore  float64    `json:"confidenceScore"`
	RiskLevel        string     `json:"riskLevel"`
	Status           string     `json:"status"`
	FailureReason    string     `json:"failureReason,omitempty"`
	DetectedAt       time.Time  `json:"detectedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	ExecutedAt       *time.Time `json:"executedAt,omitempty"`
	TxRef            string     `json:"txRef,omitempty"`
}

// Envelope is the JSON envelope published on the bus and broadcast to
// WebSocket clients.
type Envelope struct {
	Type        string           `json:"type"`
	At          time.Time        `json:"at"`
	Opportunity *OpportunityJSON `json:"opportunity,omitempty"`
	Detail      map[string]any   `json:"detail,omitempty"`
}

func tokenJSON(t domain.Token) TokenJSON {
	return TokenJSON{
		Address:  strings.ToLower(t.Address.Hex()),
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}
}

// EncodeOpportunity maps a domain opportunity to its wire form.
func EncodeOpportunity(o domain.ArbitrageOpportunity) OpportunityJSON {
	return OpportunityJSON{
		ID:               o.ID,
		TokenIn:          tokenJSON(o.TokenIn),
		TokenOut:         tokenJSON(o.TokenOut),
		SourceVenue:      o.SourceVenue,
		TargetVenue:      o.TargetVenue,
		SourcePrice:      o.SourcePrice,
		TargetPrice:      o.TargetPrice,
		ProfitPercentage: o.ProfitPercentage,
		EstimatedProfit:  o.EstimatedProfit,
		GasEstimate:      o.GasEstimate,
		TradeSize:        o.TradeSize,
		ConfidenceScore:  o.ConfidenceScore,
		RiskLevel:        string(o.RiskLevel),
		Status:           string(o.Status),
		FailureReason:    o.FailureReason,
		DetectedAt:       o.DetectedAt,
		UpdatedAt:        o.UpdatedAt,
		ExecutedAt:       o.ExecutedAt,
		TxRef:            o.TxRef,
	}
}

// ExecutionJSON is the wire form of an execution record, shared by the
// REST API and the archive files.
type ExecutionJSON struct {
	ID              string    `json:"id"`
	OpportunityID   string    `json:"opportunityId"`
	TokenIn         string    `json:"tokenIn"`
	TokenOut        string    `json:"tokenOut"`
	SourceVenue     string    `json:"sourceVenue"`
	TargetVenue     string    `json:"targetVenue"`
	TradeSize       float64   `json:"tradeSize"`
	ExpectedProfit  float64   `json:"expectedProfit"`
	FundingProvider string    `json:"fundingProvider,omitempty"`
	FundingFee      float64   `json:"fundingFee"`
	GasCost         float64   `json:"gasCost"`
	RealizedProfit  float64   `json:"realizedProfit"`
	Outcome         string    `json:"outcome"`
	Reason          string    `json:"reason,omitempty"`
	TxRef           string    `json:"txRef,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	DurationMs      int64     `json:"durationMs"`
}

// EncodeExecution maps a domain execution record to its wire form.
func EncodeExecution(e domain.ExecutionRecord) ExecutionJSON {
	return ExecutionJSON{
		ID:              e.ID,
		OpportunityID:   e.OpportunityID,
		TokenIn:         e.TokenIn,
		TokenOut:        e.TokenOut,
		SourceVenue:     e.SourceVenue,
		TargetVenue:     e.TargetVenue,
		TradeSize:       e.TradeSize,
		ExpectedProfit:  e.ExpectedProfit,
		FundingProvider: e.FundingProvider,
		FundingFee:      e.FundingFee,
		GasCost:         e.GasCost,
		RealizedProfit:  e.RealizedProfit,
		Outcome:         string(e.Outcome),
		Reason:          e.Reason,
		TxRef:           e.TxRef,
		StartedAt:       e.StartedAt,
		FinishedAt:      e.FinishedAt,
		DurationMs:      e.Duration().Milliseconds(),
	}
}
