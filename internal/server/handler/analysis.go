package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/worker"
)

// AnalysisService computes price statistics for monitored pairs on the
// offload worker. Implemented by the monitor coordinator.
type AnalysisService interface {
	Volatility(ctx context.Context, pairKey string) (worker.VolatilityResult, error)
	Candles(ctx context.Context, pairKey string, bucket time.Duration) (worker.CandleifyResult, error)
}

// AnalysisHandler serves the price-analysis endpoints.
type AnalysisHandler struct {
	svc    AnalysisService
	logger *slog.Logger
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(svc AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{svc: svc, logger: logger}
}

type candleJSON struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Samples   int       `json:"samples"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Volatility returns average price and volatility over the retained history
// of one pair.
// GET /api/analysis/volatility?pair=0xaaa...:0xbbb...
func (h *AnalysisHandler) Volatility(w http.ResponseWriter, r *http.Request) {
	pairKey := r.URL.Query().Get("pair")
	if pairKey == "" {
		writeError(w, http.StatusBadRequest, "pair query parameter is required")
		return
	}

	res, err := h.svc.Volatility(r.Context(), pairKey)
	if err != nil {
		h.writeAnalysisError(w, r, "volatility", pairKey, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair":       res.PairKey,
		"average":    res.Average,
		"volatility": res.Volatility,
		"samples":    res.Samples,
	})
}

// Candles returns OHLC candles bucketed from the retained history of one
// pair. The bucket width is a Go duration and defaults to one minute.
// GET /api/analysis/candles?pair=0xaaa...:0xbbb...&bucket=1m
func (h *AnalysisHandler) Candles(w http.ResponseWriter, r *http.Request) {
	pairKey := r.URL.Query().Get("pair")
	if pairKey == "" {
		writeError(w, http.StatusBadRequest, "pair query parameter is required")
		return
	}

	bucket := time.Minute
	if v := r.URL.Query().Get("bucket"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "bucket must be a positive duration such as \"1m\"")
			return
		}
		bucket = d
	}

	res, err := h.svc.Candles(r.Context(), pairKey, bucket)
	if err != nil {
		h.writeAnalysisError(w, r, "candles", pairKey, err)
		return
	}

	candles := make([]candleJSON, 0, len(res.Candles))
	for _, c := range res.Candles {
		candles = append(candles, candleJSON{
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Samples:   c.Samples,
			StartTime: c.StartTime,
			EndTime:   c.EndTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair":    res.PairKey,
		"bucket":  bucket.String(),
		"candles": candles,
		"count":   len(candles),
	})
}

func (h *AnalysisHandler) writeAnalysisError(w http.ResponseWriter, r *http.Request, op, pairKey string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "no price history for pair")
	case errors.Is(err, domain.ErrOffloaderBusy):
		writeError(w, http.StatusServiceUnavailable, "analysis worker is saturated, retry shortly")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "analysis timed out")
	default:
		h.logger.ErrorContext(r.Context(), "analysis failed",
			slog.String("op", op), slog.String("pair", pairKey), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}
