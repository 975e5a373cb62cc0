package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/events"
)

// OpportunityService is the live in-memory view of detected opportunities.
// Implemented by the opportunity manager.
type OpportunityService interface {
	Pending() []domain.ArbitrageOpportunity
	Snapshot() []domain.ArbitrageOpportunity
	Get(id string) (domain.ArbitrageOpportunity, error)
	ExecuteOpportunity(ctx context.Context, id string) error
	ResetCircuit()
}

// OpportunityHistory reads persisted opportunity rows.
type OpportunityHistory interface {
	GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
}

// ExecutionHistory reads persisted execution attempts.
type ExecutionHistory interface {
	GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
	SumRealizedProfit(ctx context.Context, since time.Time) (float64, error)
}

// OpportunityHandler serves the opportunity and execution endpoints.
type OpportunityHandler struct {
	svc    OpportunityService
	opps   OpportunityHistory
	execs  ExecutionHistory
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler backed by the live
// manager view only.
func NewOpportunityHandler(svc OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logger}
}

// WithHistory attaches the persisted opportunity store. Without it the
// history endpoint reports that persistence is not configured.
func (h *OpportunityHandler) WithHistory(opps OpportunityHistory) *OpportunityHandler {
	h.opps = opps
	return h
}

// WithExecutions attaches the persisted execution store. Without it the
// execution and profit endpoints report that persistence is not configured.
func (h *OpportunityHandler) WithExecutions(execs ExecutionHistory) *OpportunityHandler {
	h.execs = execs
	return h
}

// List returns the live opportunity set, optionally filtered by status.
// GET /api/opportunities?status=pending&limit=50
func (h *OpportunityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	var opps []domain.ArbitrageOpportunity
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		opps = h.svc.Snapshot()
	case string(domain.OpportunityPending):
		opps = h.svc.Pending()
	case string(domain.OpportunityExecuting), string(domain.OpportunityCompleted), string(domain.OpportunityFailed):
		for _, o := range h.svc.Snapshot() {
			if string(o.Status) == status {
				opps = append(opps, o)
			}
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter: "+status)
		return
	}

	if len(opps) > limit {
		opps = opps[:limit]
	}
	out := make([]events.OpportunityJSON, 0, len(opps))
	for _, o := range opps {
		out = append(out, events.EncodeOpportunity(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": out,
		"count":         len(out),
	})
}

// Get returns a single opportunity by id, falling back to the persisted
// store for records already evicted from memory.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "opportunity id is required")
		return
	}

	opp, err := h.svc.Get(id)
	if err != nil && h.opps != nil {
		opp, err = h.opps.GetByID(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "opportunity lookup failed",
			slog.String("opportunity_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load opportunity")
		return
	}
	writeJSON(w, http.StatusOK, events.EncodeOpportunity(opp))
}

// History returns recently persisted opportunities.
// GET /api/opportunities/history?limit=50
func (h *OpportunityHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.opps == nil {
		writeError(w, http.StatusNotImplemented, "opportunity persistence is not configured")
		return
	}
	limit := parseLimit(r, 50, 500)

	opps, err := h.opps.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "opportunity history query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	out := make([]events.OpportunityJSON, 0, len(opps))
	for _, o := range opps {
		out = append(out, events.EncodeOpportunity(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": out,
		"count":         len(out),
	})
}

// Execute admits an opportunity for execution. Execution itself runs
// asynchronously; progress arrives over the event stream.
// POST /api/opportunities/{id}/execute
func (h *OpportunityHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "opportunity id is required")
		return
	}

	if err := h.svc.ExecuteOpportunity(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "opportunity not found")
		case errors.Is(err, domain.ErrAlreadyTerminal):
			writeError(w, http.StatusConflict, "opportunity already terminal")
		default:
			h.logger.ErrorContext(r.Context(), "execution admission failed",
				slog.String("opportunity_id", id), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to admit opportunity")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":       id,
		"admitted": true,
	})
}

// ResetCircuit closes the execution circuit breaker after operator review.
// POST /api/circuit/reset
func (h *OpportunityHandler) ResetCircuit(w http.ResponseWriter, r *http.Request) {
	h.svc.ResetCircuit()
	h.logger.InfoContext(r.Context(), "circuit breaker reset over API")
	writeJSON(w, http.StatusOK, map[string]any{"circuitOpen": false})
}

// Executions returns recently persisted execution attempts.
// GET /api/executions?limit=50
func (h *OpportunityHandler) Executions(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusNotImplemented, "execution persistence is not configured")
		return
	}
	limit := parseLimit(r, 50, 500)

	recs, err := h.execs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "execution history query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	out := make([]events.ExecutionJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, events.EncodeExecution(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": out,
		"count":      len(out),
	})
}

// GetExecution returns a single persisted execution attempt.
// GET /api/executions/{id}
func (h *OpportunityHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusNotImplemented, "execution persistence is not configured")
		return
	}
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "execution id is required")
		return
	}

	rec, err := h.execs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "execution lookup failed",
			slog.String("execution_id", id), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}
	writeJSON(w, http.StatusOK, events.EncodeExecution(rec))
}

// Profit returns realized profit summed over persisted executions since the
// given date (default: the last 24 hours).
// GET /api/profit?since=2026-08-01
func (h *OpportunityHandler) Profit(w http.ResponseWriter, r *http.Request) {
	if h.execs == nil {
		writeError(w, http.StatusNotImplemented, "execution persistence is not configured")
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
			return
		}
		since = t
	}

	total, err := h.execs.SumRealizedProfit(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "profit query failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to compute profit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":          since.Format(time.RFC3339),
		"realizedProfit": total,
	})
}
