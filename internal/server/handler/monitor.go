package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantrend/dexarb/internal/domain"
)

// MonitorController drives the polling loop. Implemented by the monitor
// coordinator.
type MonitorController interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// MonitorHandler serves the start/stop controls for the scan loop.
type MonitorHandler struct {
	ctrl   MonitorController
	logger *slog.Logger
}

// NewMonitorHandler creates a MonitorHandler.
func NewMonitorHandler(ctrl MonitorController, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{ctrl: ctrl, logger: logger}
}

// Start begins the polling loop. Starting an already running monitor is a
// no-op and still returns 200.
// POST /api/monitor/start
func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(r.Context()); err != nil {
		if errors.Is(err, domain.ErrNoActiveVenues) {
			writeError(w, http.StatusConflict, "no active venues configured")
			return
		}
		h.logger.ErrorContext(r.Context(), "monitor start failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to start monitoring")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"running": true})
}

// Stop halts the polling loop. Stopping an already stopped monitor is a
// no-op.
// POST /api/monitor/stop
func (h *MonitorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": false})
}
