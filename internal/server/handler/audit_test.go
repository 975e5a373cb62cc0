package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
)

type fakeAuditLog struct {
	entries   []domain.AuditEntry
	err       error
	gotFilter domain.AuditFilter
}

func (f *fakeAuditLog) Log(context.Context, string, map[string]any) error { return nil }

func (f *fakeAuditLog) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	f.gotFilter = filter
	return f.entries, f.err
}

func TestAuditListAppliesFilters(t *testing.T) {
	store := &fakeAuditLog{entries: []domain.AuditEntry{
		{ID: 7, Event: "PUT /api/config", Detail: map[string]any{"status": float64(200)}, CreatedAt: time.Now().UTC()},
	}}
	h := NewAuditHandler(store, testLogger())

	req := httptest.NewRequest(http.MethodGet,
		"/api/audit?event=PUT+%2Fapi%2Fconfig&since=2026-08-01&until=2026-08-24T12:00:00Z&limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PUT /api/config", store.gotFilter.Event)
	require.NotNil(t, store.gotFilter.Since)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), *store.gotFilter.Since)
	require.NotNil(t, store.gotFilter.Until)
	assert.Equal(t, time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), store.gotFilter.Until.UTC())
	assert.Equal(t, 10, store.gotFilter.Limit)
	assert.Equal(t, 5, store.gotFilter.Offset)

	body := decodeMap(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Contains(t, rec.Body.String(), "PUT /api/config")
}

func TestAuditListDefaultsToUnfiltered(t *testing.T) {
	store := &fakeAuditLog{}
	h := NewAuditHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.gotFilter.Event)
	assert.Nil(t, store.gotFilter.Since)
	assert.Nil(t, store.gotFilter.Until)
	assert.Equal(t, 50, store.gotFilter.Limit)
	assert.Equal(t, float64(0), decodeMap(t, rec)["count"])
}

func TestAuditListRejectsMalformedTime(t *testing.T) {
	h := NewAuditHandler(&fakeAuditLog{}, testLogger())

	for _, target := range []string{
		"/api/audit?since=yesterday",
		"/api/audit?until=08%2F24%2F2026",
	} {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestAuditListStoreFailureReturns500(t *testing.T) {
	store := &fakeAuditLog{err: errors.New("connection refused")}
	h := NewAuditHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
