package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// ConfigService reads and patches the live engine configuration.
// Implemented by the monitor coordinator.
type ConfigService interface {
	Config() domain.EngineConfig
	UpdateConfig(patch domain.EngineConfigPatch) domain.EngineConfig
}

// ConfigHandler serves the runtime engine-configuration endpoints.
type ConfigHandler struct {
	svc    ConfigService
	logger *slog.Logger
}

// NewConfigHandler creates a ConfigHandler.
func NewConfigHandler(svc ConfigService, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{svc: svc, logger: logger}
}

// engineConfigJSON is the wire form of domain.EngineConfig. Durations travel
// as Go duration strings ("10s", "1m30s").
type engineConfigJSON struct {
	PollingInterval     string  `json:"pollingInterval"`
	ScanEveryNCycles    int     `json:"scanEveryNCycles"`
	MinProfitPercentage float64 `json:"minProfitPercentage"`
	MaxTradeSize        float64 `json:"maxTradeSize"`
	SlippageTolerance   float64 `json:"slippageTolerance"`
	GasPriceStrategy    string  `json:"gasPriceStrategy"`
	GasPriceGwei        float64 `json:"gasPriceGwei"`
	AssumedGasUnits     uint64  `json:"assumedGasUnits"`
	AutoExecute         bool    `json:"autoExecute"`
	MinConfidenceScore  float64 `json:"minConfidenceScore"`
	RiskTolerance       string  `json:"riskTolerance"`
	Strategy            string  `json:"strategy"`
	MaxConcurrentTrades int     `json:"maxConcurrentTrades"`
}

func encodeEngineConfig(c domain.EngineConfig) engineConfigJSON {
	return engineConfigJSON{
		PollingInterval:     c.PollingInterval.String(),
		ScanEveryNCycles:    c.ScanEveryNCycles,
		MinProfitPercentage: c.MinProfitPercentage,
		MaxTradeSize:        c.MaxTradeSize,
		SlippageTolerance:   c.SlippageTolerance,
		GasPriceStrategy:    c.GasPriceStrategy,
		GasPriceGwei:        c.GasPriceGwei,
		AssumedGasUnits:     c.AssumedGasUnits,
		AutoExecute:         c.AutoExecute,
		MinConfidenceScore:  c.MinConfidenceScore,
		RiskTolerance:       string(c.RiskTolerance),
		Strategy:            string(c.Strategy),
		MaxConcurrentTrades: c.MaxConcurrentTrades,
	}
}

// configPatchRequest mirrors domain.EngineConfigPatch with JSON-friendly
// field types. Absent fields leave the current value untouched.
type configPatchRequest struct {
	PollingInterval     *string  `json:"pollingInterval"`
	ScanEveryNCycles    *int     `json:"scanEveryNCycles"`
	MinProfitPercentage *float64 `json:"minProfitPercentage"`
	MaxTradeSize        *float64 `json:"maxTradeSize"`
	SlippageTolerance   *float64 `json:"slippageTolerance"`
	GasPriceStrategy    *string  `json:"gasPriceStrategy"`
	GasPriceGwei        *float64 `json:"gasPriceGwei"`
	AssumedGasUnits     *uint64  `json:"assumedGasUnits"`
	AutoExecute         *bool    `json:"autoExecute"`
	MinConfidenceScore  *float64 `json:"minConfidenceScore"`
	RiskTolerance       *string  `json:"riskTolerance"`
	Strategy            *string  `json:"strategy"`
	MaxConcurrentTrades *int     `json:"maxConcurrentTrades"`
}

// toPatch validates the request and converts it to a domain patch. It
// returns a human-readable reason when a field is out of range.
func (req configPatchRequest) toPatch() (domain.EngineConfigPatch, string) {
	var p domain.EngineConfigPatch

	if req.PollingInterval != nil {
		d, err := time.ParseDuration(*req.PollingInterval)
		if err != nil || d <= 0 {
			return p, "pollingInterval must be a positive duration such as \"10s\""
		}
		p.PollingInterval = &d
	}
	if req.ScanEveryNCycles != nil {
		if *req.ScanEveryNCycles < 1 {
			return p, "scanEveryNCycles must be at least 1"
		}
		p.ScanEveryNCycles = req.ScanEveryNCycles
	}
	if req.MinProfitPercentage != nil {
		if *req.MinProfitPercentage < 0 {
			return p, "minProfitPercentage must not be negative"
		}
		p.MinProfitPercentage = req.MinProfitPercentage
	}
	if req.MaxTradeSize != nil {
		if *req.MaxTradeSize <= 0 {
			return p, "maxTradeSize must be positive"
		}
		p.MaxTradeSize = req.MaxTradeSize
	}
	if req.SlippageTolerance != nil {
		if *req.SlippageTolerance < 0 || *req.SlippageTolerance >= 1 {
			return p, "slippageTolerance must be a fraction in [0, 1)"
		}
		p.SlippageTolerance = req.SlippageTolerance
	}
	if req.GasPriceStrategy != nil {
		switch *req.GasPriceStrategy {
		case "standard", "fast", "instant":
			p.GasPriceStrategy = req.GasPriceStrategy
		default:
			return p, "gasPriceStrategy must be standard, fast, or instant"
		}
	}
	if req.GasPriceGwei != nil {
		if *req.GasPriceGwei < 0 {
			return p, "gasPriceGwei must not be negative"
		}
		p.GasPriceGwei = req.GasPriceGwei
	}
	if req.AssumedGasUnits != nil {
		p.AssumedGasUnits = req.AssumedGasUnits
	}
	p.AutoExecute = req.AutoExecute
	if req.MinConfidenceScore != nil {
		if *req.MinConfidenceScore < 0 || *req.MinConfidenceScore > 1 {
			return p, "minConfidenceScore must be in [0, 1]"
		}
		p.MinConfidenceScore = req.MinConfidenceScore
	}
	if req.RiskTolerance != nil {
		switch lvl := domain.RiskLevel(*req.RiskTolerance); lvl {
		case domain.RiskLow, domain.RiskMedium, domain.RiskHigh:
			p.RiskTolerance = &lvl
		default:
			return p, "riskTolerance must be low, medium, or high"
		}
	}
	if req.Strategy != nil {
		switch s := domain.ExecutionStrategy(*req.Strategy); s {
		case domain.StrategySequential, domain.StrategyConcurrent, domain.StrategyPriority:
			p.Strategy = &s
		default:
			return p, "strategy must be sequential, concurrent, or priority"
		}
	}
	if req.MaxConcurrentTrades != nil {
		if *req.MaxConcurrentTrades < 1 {
			return p, "maxConcurrentTrades must be at least 1"
		}
		p.MaxConcurrentTrades = req.MaxConcurrentTrades
	}
	return p, ""
}

// Get returns the current engine configuration.
// GET /api/config
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, encodeEngineConfig(h.svc.Config()))
}

// Update merges a partial configuration into the running engine and returns
// the resulting config. Changes apply from the next scan cycle.
// PUT /api/config
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req configPatchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	patch, reason := req.toPatch()
	if reason != "" {
		writeError(w, http.StatusBadRequest, reason)
		return
	}

	updated := h.svc.UpdateConfig(patch)
	h.logger.InfoContext(r.Context(), "engine config updated",
		slog.Bool("auto_execute", updated.AutoExecute),
		slog.Duration("polling_interval", updated.PollingInterval),
		slog.String("strategy", string(updated.Strategy)))
	writeJSON(w, http.StatusOK, encodeEngineConfig(updated))
}
