package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
)

type fakeConfigService struct {
	cfg   domain.EngineConfig
	patch domain.EngineConfigPatch
}

func (f *fakeConfigService) Config() domain.EngineConfig { return f.cfg }

func (f *fakeConfigService) UpdateConfig(p domain.EngineConfigPatch) domain.EngineConfig {
	f.patch = p
	f.cfg = f.cfg.Apply(p)
	return f.cfg
}

func baseEngineConfig() domain.EngineConfig {
	return domain.EngineConfig{
		PollingInterval:     10 * time.Second,
		ScanEveryNCycles:    3,
		MinProfitPercentage: 0.5,
		MaxTradeSize:        1,
		SlippageTolerance:   0.005,
		GasPriceStrategy:    "standard",
		GasPriceGwei:        30,
		AssumedGasUnits:     300000,
		MinConfidenceScore:  0.6,
		RiskTolerance:       domain.RiskMedium,
		Strategy:            domain.StrategyConcurrent,
		MaxConcurrentTrades: 2,
	}
}

func TestConfigGetRendersDurationsAsStrings(t *testing.T) {
	h := NewConfigHandler(&fakeConfigService{cfg: baseEngineConfig()}, testLogger())

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "10s", body["pollingInterval"])
	assert.Equal(t, "medium", body["riskTolerance"])
	assert.Equal(t, "concurrent", body["strategy"])
}

func TestConfigUpdateAppliesPartialPatch(t *testing.T) {
	svc := &fakeConfigService{cfg: baseEngineConfig()}
	h := NewConfigHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPut, "/api/config",
		strings.NewReader(`{"autoExecute":true,"pollingInterval":"30s","minProfitPercentage":1.5}`))
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, true, body["autoExecute"])
	assert.Equal(t, "30s", body["pollingInterval"])

	// Unmentioned fields stay nil in the patch.
	require.NotNil(t, svc.patch.AutoExecute)
	assert.True(t, *svc.patch.AutoExecute)
	require.NotNil(t, svc.patch.PollingInterval)
	assert.Equal(t, 30*time.Second, *svc.patch.PollingInterval)
	assert.Nil(t, svc.patch.MaxTradeSize)
	assert.Nil(t, svc.patch.Strategy)
}

func TestConfigUpdateRejectsOutOfRangeValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad duration", `{"pollingInterval":"soon"}`},
		{"negative duration", `{"pollingInterval":"-5s"}`},
		{"zero scan cycles", `{"scanEveryNCycles":0}`},
		{"negative profit floor", `{"minProfitPercentage":-1}`},
		{"zero trade size", `{"maxTradeSize":0}`},
		{"slippage at 1", `{"slippageTolerance":1}`},
		{"unknown gas strategy", `{"gasPriceStrategy":"cheap"}`},
		{"confidence above 1", `{"minConfidenceScore":1.1}`},
		{"unknown risk tolerance", `{"riskTolerance":"reckless"}`},
		{"unknown strategy", `{"strategy":"parallel"}`},
		{"zero concurrency", `{"maxConcurrentTrades":0}`},
		{"unknown field", `{"maxOpenPositions":4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeConfigService{cfg: baseEngineConfig()}
			h := NewConfigHandler(svc, testLogger())

			req := httptest.NewRequest(http.MethodPut, "/api/config", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Update(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			// The running config must not have moved.
			assert.Equal(t, baseEngineConfig(), svc.cfg)
		})
	}
}
