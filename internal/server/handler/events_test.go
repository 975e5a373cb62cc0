package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
)

type fakeStreamBus struct {
	msgs []domain.StreamMessage
	err  error

	recentCalls int
	readAfter   string
	readCount   int
}

func (f *fakeStreamBus) Publish(context.Context, string, []byte) error { return nil }

func (f *fakeStreamBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (f *fakeStreamBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (f *fakeStreamBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	f.readAfter = lastID
	f.readCount = count
	return f.msgs, f.err
}

func (f *fakeStreamBus) StreamRecent(_ context.Context, _ string, count int) ([]domain.StreamMessage, error) {
	f.recentCalls++
	f.readCount = count
	return f.msgs, f.err
}

func TestEventsListDefaultsToRecent(t *testing.T) {
	bus := &fakeStreamBus{msgs: []domain.StreamMessage{
		{ID: "1700000000000-0", Payload: []byte(`{"type":"opportunity_found"}`)},
		{ID: "1700000000001-0", Payload: []byte(`{"type":"execution_completed"}`)},
	}}
	h := NewEventsHandler(bus, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, bus.recentCalls)
	assert.Empty(t, bus.readAfter)

	body := decodeMap(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, "1700000000001-0", body["lastId"])
	events, ok := body["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 2)
	first, ok := events[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1700000000000-0", first["id"])
	event, ok := first["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "opportunity_found", event["type"])
}

func TestEventsListPagesForwardFromID(t *testing.T) {
	bus := &fakeStreamBus{}
	h := NewEventsHandler(bus, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/events?after=1700000000000-5&limit=20", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, bus.recentCalls)
	assert.Equal(t, "1700000000000-5", bus.readAfter)
	assert.Equal(t, 20, bus.readCount)

	body := decodeMap(t, rec)
	assert.Equal(t, float64(0), body["count"])
	assert.NotContains(t, body, "lastId")
}

func TestEventsListBusFailureReturns500(t *testing.T) {
	bus := &fakeStreamBus{err: errors.New("stream gone")}
	h := NewEventsHandler(bus, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
