package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// AuditHandler serves read access to the audit log.
type AuditHandler struct {
	store  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(store domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{store: store, logger: logger}
}

// List returns audit entries, newest first. The event filter takes the exact
// event name; since/until accept RFC 3339 timestamps or bare dates.
// GET /api/audit?event=&since=&until=&limit=&offset=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		Event: q.Get("event"),
		Limit: parseLimit(r, 50, 500),
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Offset = n
		}
	}

	since, ok := parseTimeParam(w, q.Get("since"), "since")
	if !ok {
		return
	}
	filter.Since = since
	until, ok := parseTimeParam(w, q.Get("until"), "until")
	if !ok {
		return
	}
	filter.Until = until

	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	type entry struct {
		ID        int64          `json:"id"`
		Event     string         `json:"event"`
		Detail    map[string]any `json:"detail,omitempty"`
		CreatedAt time.Time      `json:"createdAt"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": out,
		"count":   len(out),
	})
}

// parseTimeParam parses an optional RFC 3339 or YYYY-MM-DD query value. On a
// malformed value it writes a 400 and reports !ok.
func parseTimeParam(w http.ResponseWriter, v, name string) (*time.Time, bool) {
	if v == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, true
	}
	if t, err := time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
		return &t, true
	}
	writeError(w, http.StatusBadRequest, name+" must be RFC 3339 or YYYY-MM-DD")
	return nil, false
}
