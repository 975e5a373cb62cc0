package domain

import "time"

// EventType names an engine lifecycle event published on the event bus,
// broadcast to WebSocket clients, and optionally forwarded to notifiers.
type EventType string

const (
	EventMonitorStarted     EventType = "monitor_started"
	EventMonitorStopped     EventType = "monitor_stopped"
	EventOpportunityFound   EventType = "opportunity_found"
	EventExecutionStarted   EventType = "execution_started"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionFailed    EventType = "execution_failed"
	EventCircuitOpen        EventType = "circuit_open"
	EventPriceTick          EventType = "price_tick"
)

// Event is the envelope carried by the bus and the WebSocket hub.
// Opportunity is set for opportunity-scoped events; Detail carries
// event-specific scalars.
type Event struct {
	Type        EventType
	At          time.Time
	Opportunity *ArbitrageOpportunity
	Detail      map[string]any
}
