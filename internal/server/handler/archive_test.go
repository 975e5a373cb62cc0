package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/pipeline"
)

type fakeArchiveRunner struct {
	result pipeline.RunResult
	err    error
	runs   int
}

func (f *fakeArchiveRunner) Run(context.Context) (pipeline.RunResult, error) {
	f.runs++
	return f.result, f.err
}

type fakeBlobReader struct {
	objects map[string]string
	infos   []domain.BlobInfo
	listErr error
	headErr error
}

func (f *fakeBlobReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBlobReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.BlobInfo
	for _, info := range f.infos {
		if strings.HasPrefix(info.Path, prefix) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *fakeBlobReader) Exists(_ context.Context, path string) (bool, error) {
	if f.headErr != nil {
		return false, f.headErr
	}
	_, ok := f.objects[path]
	return ok, nil
}

func TestArchiveTriggerReportsRunResult(t *testing.T) {
	runner := &fakeArchiveRunner{result: pipeline.RunResult{
		OpportunitiesArchived: 12,
		ExecutionsArchived:    7,
		OpportunitiesPruned:   12,
		ExecutionsPruned:      7,
	}}
	h := NewArchiveHandler(runner, &fakeBlobReader{}, testLogger())

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/archive/trigger", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, runner.runs)
	body := decodeMap(t, rec)
	assert.Equal(t, float64(12), body["opportunitiesArchived"])
	assert.Equal(t, float64(7), body["executionsPruned"])
}

func TestArchiveTriggerFailureReturns500(t *testing.T) {
	runner := &fakeArchiveRunner{err: errors.New("bucket unavailable")}
	h := NewArchiveHandler(runner, &fakeBlobReader{}, testLogger())

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/archive/trigger", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestArchiveListReturnsStoredFiles(t *testing.T) {
	mod := time.Date(2026, 7, 1, 3, 0, 0, 0, time.UTC)
	blobs := &fakeBlobReader{infos: []domain.BlobInfo{
		{Path: "archive/opportunities/2026-06.jsonl", Size: 2048, LastModified: mod},
		{Path: "archive/executions/2026-06.jsonl", Size: 512, LastModified: mod},
		{Path: "unrelated/key", Size: 1},
	}}
	h := NewArchiveHandler(&fakeArchiveRunner{}, blobs, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/archive", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, float64(2), body["count"])
	assert.NotContains(t, rec.Body.String(), "unrelated/key")
	assert.Contains(t, rec.Body.String(), "archive/opportunities/2026-06.jsonl")
}

func TestArchiveListFailureReturns500(t *testing.T) {
	blobs := &fakeBlobReader{listErr: errors.New("s3 down")}
	h := NewArchiveHandler(&fakeArchiveRunner{}, blobs, testLogger())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/archive", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestArchiveDownloadStreamsNDJSON(t *testing.T) {
	blobs := &fakeBlobReader{objects: map[string]string{
		"archive/opportunities/2026-06.jsonl": `{"id":"opp-1"}` + "\n",
	}}
	h := NewArchiveHandler(&fakeArchiveRunner{}, blobs, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archive/opportunities/2026-06", nil)
	req.SetPathValue("kind", "opportunities")
	req.SetPathValue("month", "2026-06")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "opportunities-2026-06.jsonl")
	assert.Equal(t, `{"id":"opp-1"}`+"\n", rec.Body.String())
}

func TestArchiveDownloadRejectsBadInput(t *testing.T) {
	h := NewArchiveHandler(&fakeArchiveRunner{}, &fakeBlobReader{}, testLogger())

	tests := []struct {
		name  string
		kind  string
		month string
	}{
		{"unknown kind", "trades", "2026-06"},
		{"month not YYYY-MM", "executions", "June-2026"},
		{"month with day", "executions", "2026-06-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/archive/x/y", nil)
			req.SetPathValue("kind", tt.kind)
			req.SetPathValue("month", tt.month)
			rec := httptest.NewRecorder()
			h.Download(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestArchiveDownloadMissingMonthReturns404(t *testing.T) {
	h := NewArchiveHandler(&fakeArchiveRunner{}, &fakeBlobReader{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archive/executions/2026-01", nil)
	req.SetPathValue("kind", "executions")
	req.SetPathValue("month", "2026-01")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveHeadProbesWithoutBody(t *testing.T) {
	blobs := &fakeBlobReader{objects: map[string]string{
		"archive/executions/2026-06.jsonl": "data\n",
	}}
	h := NewArchiveHandler(&fakeArchiveRunner{}, blobs, testLogger())

	req := httptest.NewRequest(http.MethodHead, "/api/archive/executions/2026-06", nil)
	req.SetPathValue("kind", "executions")
	req.SetPathValue("month", "2026-06")
	rec := httptest.NewRecorder()
	h.Download(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())

	req = httptest.NewRequest(http.MethodHead, "/api/archive/executions/2025-12", nil)
	req.SetPathValue("kind", "executions")
	req.SetPathValue("month", "2025-12")
	rec = httptest.NewRecorder()
	h.Download(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
