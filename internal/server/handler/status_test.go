package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
)

type fakeEngineStats struct{ stats domain.MonitorStats }

func (f fakeEngineStats) Stats() domain.MonitorStats { return f.stats }

type fakeCircuit struct{ open bool }

func (f fakeCircuit) CircuitOpen() bool { return f.open }

func TestGetStatusReportsCounters(t *testing.T) {
	h := NewStatusHandler("trade", fakeEngineStats{stats: domain.MonitorStats{
		IsRunning:         true,
		PairCount:         3,
		VenueCount:        2,
		PendingCount:      1,
		RequestsRemaining: 27,
		CyclesCompleted:   120,
		LastScanAt:        time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}}, fakeCircuit{open: true})

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "trade", body["mode"])
	assert.Equal(t, true, body["running"])
	assert.EqualValues(t, 3, body["pairCount"])
	assert.EqualValues(t, 120, body["cyclesCompleted"])
	assert.Equal(t, "2026-08-24T12:00:00Z", body["lastScanAt"])
	assert.Equal(t, true, body["circuitOpen"])
}

func TestGetStatusOmitsOptionalFields(t *testing.T) {
	// Zero LastScanAt and no circuit reporter: neither key shows up.
	h := NewStatusHandler("monitor", fakeEngineStats{}, nil)

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.NotContains(t, body, "lastScanAt")
	assert.NotContains(t, body, "circuitOpen")
}

type fakeMonitorController struct {
	startErr error
	running  bool
	stops    int
}

func (f *fakeMonitorController) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeMonitorController) Stop()           { f.stops++; f.running = false }
func (f *fakeMonitorController) IsRunning() bool { return f.running }

func TestMonitorStartAndStop(t *testing.T) {
	ctrl := &fakeMonitorController{}
	h := NewMonitorHandler(ctrl, testLogger())

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/monitor/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeMap(t, rec)["running"])
	assert.True(t, ctrl.running)

	rec = httptest.NewRecorder()
	h.Stop(rec, httptest.NewRequest(http.MethodPost, "/api/monitor/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeMap(t, rec)["running"])
	assert.Equal(t, 1, ctrl.stops)
}

func TestMonitorStartWithoutVenuesReturns409(t *testing.T) {
	ctrl := &fakeMonitorController{startErr: domain.ErrNoActiveVenues}
	h := NewMonitorHandler(ctrl, testLogger())

	rec := httptest.NewRecorder()
	h.Start(rec, httptest.NewRequest(http.MethodPost, "/api/monitor/start", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
