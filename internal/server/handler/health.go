package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	logger    *slog.Logger
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler. startedAt is the process start
// time and is used to report uptime.
func NewHealthHandler(logger *slog.Logger, startedAt time.Time) *HealthHandler {
	return &HealthHandler{logger: logger, startedAt: startedAt}
}

// HealthCheck responds with a liveness status and process uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
