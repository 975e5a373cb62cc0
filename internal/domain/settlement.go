package domain

import "context"

// SettlementResult is the outcome of submitting an opportunity for
// settlement. Success=false with a Reason is an execution failure recorded
// on the opportunity; a non-nil error from Submit is a transport problem.
type SettlementResult struct {
	Success bool
	TxRef   string
	GasUsed uint64
	Reason  string
}

// SettlementExecutor submits a funded opportunity to the settlement layer
// (an on-chain contract behind a relayer, in production). The engine never
// implements settlement logic itself; it only consumes this contract.
type SettlementExecutor interface {
	Submit(ctx context.Context, opp ArbitrageOpportunity, funding FundingQuote) (SettlementResult, error)
}
