package handler

import (
	"net/http"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// EngineStats exposes the scan-side counters surfaced on the status endpoint.
type EngineStats interface {
	Stats() domain.MonitorStats
}

// CircuitReporter exposes the execution circuit breaker state.
type CircuitReporter interface {
	CircuitOpen() bool
}

// StatusHandler serves the engine status summary for dashboards.
type StatusHandler struct {
	mode    string
	engine  EngineStats
	circuit CircuitReporter
}

// NewStatusHandler creates a StatusHandler. circuit may be nil in modes that
// run without an execution manager.
func NewStatusHandler(mode string, engine EngineStats, circuit CircuitReporter) *StatusHandler {
	return &StatusHandler{mode: mode, engine: engine, circuit: circuit}
}

// GetStatus responds with the current mode, scan counters and circuit state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.engine.Stats()

	resp := map[string]any{
		"mode":              h.mode,
		"running":           stats.IsRunning,
		"pairCount":         stats.PairCount,
		"venueCount":        stats.VenueCount,
		"pendingCount":      stats.PendingCount,
		"requestsRemaining": stats.RequestsRemaining,
		"cyclesCompleted":   stats.CyclesCompleted,
		"timestamp":         time.Now().UTC().Format(time.RFC3339),
	}
	if !stats.LastScanAt.IsZero() {
		resp["lastScanAt"] = stats.LastScanAt.UTC().Format(time.RFC3339)
	}
	if h.circuit != nil {
		resp["circuitOpen"] = h.circuit.CircuitOpen()
	}

	writeJSON(w, http.StatusOK, resp)
}
