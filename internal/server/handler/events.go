package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/events"
)

// EventsHandler serves the durable audit-event stream over REST. Live
// delivery runs over the WebSocket endpoint; this one exists for replay and
// for clients that reconnect and need to catch up.
type EventsHandler struct {
	bus    domain.EventBus
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(bus domain.EventBus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

type streamEntryJSON struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// List reads audit events. Without parameters it returns the newest
// entries; pass after=<id> from a previous response to page forward, or
// after=0-0 to replay from the oldest retained entry.
// GET /api/events?after=0-0&limit=100
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	limit := parseLimit(r, 100, 1000)

	var (
		msgs []domain.StreamMessage
		err  error
	)
	if after == "" {
		msgs, err = h.bus.StreamRecent(r.Context(), events.AuditStream, limit)
	} else {
		msgs, err = h.bus.StreamRead(r.Context(), events.AuditStream, after, limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "audit stream read failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to read event stream")
		return
	}

	out := make([]streamEntryJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, streamEntryJSON{ID: m.ID, Event: json.RawMessage(m.Payload)})
	}
	resp := map[string]any{
		"events": out,
		"count":  len(out),
	}
	if len(out) > 0 {
		resp["lastId"] = out[len(out)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}
