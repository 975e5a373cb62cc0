package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/events"
)

// PairAdmin manages the monitored pair set. Implemented by the monitor
// coordinator.
type PairAdmin interface {
	AddPair(a, b domain.Token) bool
	RemovePair(a, b domain.Token) bool
	MonitoredPairs() []domain.TokenPair
}

// PairsHandler serves the monitored-pairs endpoints. Tokens are referenced
// by symbol and resolved against the configured token table.
type PairsHandler struct {
	admin  PairAdmin
	tokens map[string]domain.Token
	logger *slog.Logger
}

// NewPairsHandler creates a PairsHandler. known maps token symbols to their
// configured definitions; lookups are case-insensitive.
func NewPairsHandler(admin PairAdmin, known map[string]domain.Token, logger *slog.Logger) *PairsHandler {
	tokens := make(map[string]domain.Token, len(known))
	for sym, tok := range known {
		tokens[strings.ToUpper(sym)] = tok
	}
	return &PairsHandler{admin: admin, tokens: tokens, logger: logger}
}

type pairJSON struct {
	Key     string           `json:"key"`
	Display string           `json:"display"`
	Base    events.TokenJSON `json:"base"`
	Quote   events.TokenJSON `json:"quote"`
}

func encodePair(p domain.TokenPair) pairJSON {
	return pairJSON{
		Key:     p.Key(),
		Display: p.String(),
		Base:    encodeToken(p.Base),
		Quote:   encodeToken(p.Quote),
	}
}

func encodeToken(t domain.Token) events.TokenJSON {
	return events.TokenJSON{
		Address:  strings.ToLower(t.Address.Hex()),
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}
}

// List returns every monitored pair in canonical form.
// GET /api/pairs
func (h *PairsHandler) List(w http.ResponseWriter, r *http.Request) {
	pairs := h.admin.MonitoredPairs()
	out := make([]pairJSON, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, encodePair(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pairs": out,
		"count": len(out),
	})
}

type addPairRequest struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Add registers a pair for monitoring. Both legs must name configured
// tokens; adding an already monitored pair returns 200 with added=false.
// POST /api/pairs
func (h *PairsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addPairRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Base == "" || req.Quote == "" {
		writeError(w, http.StatusBadRequest, "base and quote are required")
		return
	}

	base, ok := h.tokens[strings.ToUpper(req.Base)]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown token: "+req.Base)
		return
	}
	quote, ok := h.tokens[strings.ToUpper(req.Quote)]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown token: "+req.Quote)
		return
	}
	if base.Equal(quote) {
		writeError(w, http.StatusBadRequest, "pair legs must differ")
		return
	}

	added := h.admin.AddPair(base, quote)
	pair := domain.NewTokenPair(base, quote)
	h.logger.InfoContext(r.Context(), "pair add requested",
		slog.String("pair", pair.String()),
		slog.Bool("added", added))

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"pair":  encodePair(pair),
		"added": added,
	})
}

// Remove drops a pair from monitoring by its canonical key.
// DELETE /api/pairs/{key}
func (h *PairsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "pair key is required")
		return
	}

	for _, p := range h.admin.MonitoredPairs() {
		if p.Key() == key {
			h.admin.RemovePair(p.Base, p.Quote)
			h.logger.InfoContext(r.Context(), "pair removed", slog.String("pair", p.String()))
			writeJSON(w, http.StatusOK, map[string]any{"removed": true, "key": key})
			return
		}
	}
	writeError(w, http.StatusNotFound, "pair not monitored")
}
