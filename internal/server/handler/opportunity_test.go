package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOpportunityService struct {
	pending  []domain.ArbitrageOpportunity
	snapshot []domain.ArbitrageOpportunity
	getErr   error
	execErr  error

	executedID   string
	circuitReset bool
}

func (f *fakeOpportunityService) Pending() []domain.ArbitrageOpportunity  { return f.pending }
func (f *fakeOpportunityService) Snapshot() []domain.ArbitrageOpportunity { return f.snapshot }

func (f *fakeOpportunityService) Get(id string) (domain.ArbitrageOpportunity, error) {
	if f.getErr != nil {
		return domain.ArbitrageOpportunity{}, f.getErr
	}
	for _, o := range f.snapshot {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.ArbitrageOpportunity{}, domain.ErrNotFound
}

func (f *fakeOpportunityService) ExecuteOpportunity(_ context.Context, id string) error {
	if f.execErr != nil {
		return f.execErr
	}
	f.executedID = id
	return nil
}

func (f *fakeOpportunityService) ResetCircuit() { f.circuitReset = true }

type fakeOpportunityHistory struct {
	byID map[string]domain.ArbitrageOpportunity
	list []domain.ArbitrageOpportunity
	err  error
}

func (f *fakeOpportunityHistory) GetByID(_ context.Context, id string) (domain.ArbitrageOpportunity, error) {
	if f.err != nil {
		return domain.ArbitrageOpportunity{}, f.err
	}
	if o, ok := f.byID[id]; ok {
		return o, nil
	}
	return domain.ArbitrageOpportunity{}, domain.ErrNotFound
}

func (f *fakeOpportunityHistory) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.list) > limit {
		return f.list[:limit], nil
	}
	return f.list, nil
}

type fakeExecutionHistory struct {
	recs   []domain.ExecutionRecord
	profit float64
	since  time.Time
	err    error
}

func (f *fakeExecutionHistory) GetByID(_ context.Context, id string) (domain.ExecutionRecord, error) {
	for _, r := range f.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (f *fakeExecutionHistory) ListRecent(_ context.Context, limit int) ([]domain.ExecutionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.recs, nil
}

func (f *fakeExecutionHistory) SumRealizedProfit(_ context.Context, since time.Time) (float64, error) {
	f.since = since
	return f.profit, f.err
}

func opp(id string, status domain.OpportunityStatus) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:               id,
		SourceVenue:      "uniswap-v3",
		TargetVenue:      "sushiswap",
		ProfitPercentage: 1.2,
		Status:           status,
		DetectedAt:       time.Now().UTC(),
	}
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestListDefaultsToFullSnapshot(t *testing.T) {
	svc := &fakeOpportunityService{snapshot: []domain.ArbitrageOpportunity{
		opp("a", domain.OpportunityPending),
		opp("b", domain.OpportunityCompleted),
	}}
	h := NewOpportunityHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.EqualValues(t, 2, body["count"])
}

func TestListStatusFilters(t *testing.T) {
	svc := &fakeOpportunityService{
		pending: []domain.ArbitrageOpportunity{opp("a", domain.OpportunityPending)},
		snapshot: []domain.ArbitrageOpportunity{
			opp("a", domain.OpportunityPending),
			opp("b", domain.OpportunityFailed),
			opp("c", domain.OpportunityFailed),
		},
	}
	h := NewOpportunityHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?status=pending", nil))
	assert.EqualValues(t, 1, decodeMap(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?status=failed", nil))
	assert.EqualValues(t, 2, decodeMap(t, rec)["count"])

	rec = httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?status=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHonoursLimit(t *testing.T) {
	var all []domain.ArbitrageOpportunity
	for i := 0; i < 10; i++ {
		all = append(all, opp(strings.Repeat("x", i+1), domain.OpportunityPending))
	}
	h := NewOpportunityHandler(&fakeOpportunityService{snapshot: all}, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?limit=3", nil))
	assert.EqualValues(t, 3, decodeMap(t, rec)["count"])
}

func TestGetFallsBackToStore(t *testing.T) {
	svc := &fakeOpportunityService{} // empty memory view
	store := &fakeOpportunityHistory{byID: map[string]domain.ArbitrageOpportunity{
		"old": opp("old", domain.OpportunityCompleted),
	}}
	h := NewOpportunityHandler(svc, testLogger()).WithHistory(store)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/old", nil)
	req.SetPathValue("id", "old")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "old", decodeMap(t, rec)["id"])
}

func TestGetUnknownIDReturns404(t *testing.T) {
	h := NewOpportunityHandler(&fakeOpportunityService{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/nope", nil)
	req.SetPathValue("id", "nope")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryWithoutStoreReturns501(t *testing.T) {
	h := NewOpportunityHandler(&fakeOpportunityService{}, testLogger())

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities/history", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestExecuteAdmitsAsynchronously(t *testing.T) {
	svc := &fakeOpportunityService{}
	h := NewOpportunityHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/opportunities/abc/execute", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.Execute(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "abc", body["id"])
	assert.Equal(t, true, body["admitted"])
	assert.Equal(t, "abc", svc.executedID)
}

func TestExecuteMapsAdmissionErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrAlreadyTerminal, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		h := NewOpportunityHandler(&fakeOpportunityService{execErr: tt.err}, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/api/opportunities/abc/execute", nil)
		req.SetPathValue("id", "abc")
		rec := httptest.NewRecorder()
		h.Execute(rec, req)
		assert.Equal(t, tt.want, rec.Code, "error %v", tt.err)
	}
}

func TestResetCircuit(t *testing.T) {
	svc := &fakeOpportunityService{}
	h := NewOpportunityHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ResetCircuit(rec, httptest.NewRequest(http.MethodPost, "/api/circuit/reset", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.circuitReset)
	assert.Equal(t, false, decodeMap(t, rec)["circuitOpen"])
}

func TestProfitDefaultsToLast24h(t *testing.T) {
	execs := &fakeExecutionHistory{profit: 42.5}
	h := NewOpportunityHandler(&fakeOpportunityService{}, testLogger()).WithExecutions(execs)

	rec := httptest.NewRecorder()
	h.Profit(rec, httptest.NewRequest(http.MethodGet, "/api/profit", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42.5, decodeMap(t, rec)["realizedProfit"])
	assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), execs.since, time.Minute)
}

func TestProfitParsesSinceDate(t *testing.T) {
	execs := &fakeExecutionHistory{profit: 7}
	h := NewOpportunityHandler(&fakeOpportunityService{}, testLogger()).WithExecutions(execs)

	rec := httptest.NewRecorder()
	h.Profit(rec, httptest.NewRequest(http.MethodGet, "/api/profit?since=2026-08-01", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), execs.since)

	rec = httptest.NewRecorder()
	h.Profit(rec, httptest.NewRequest(http.MethodGet, "/api/profit?since=last-tuesday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecutionEndpointsWithoutStoreReturn501(t *testing.T) {
	h := NewOpportunityHandler(&fakeOpportunityService{}, testLogger())

	for _, fn := range []http.HandlerFunc{h.Executions, h.Profit} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/api/executions", nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	}
}
