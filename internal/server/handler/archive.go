package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/pipeline"
)

// ArchiveRunner runs one cold-storage archive cycle. Implemented by the
// pipeline archiver.
type ArchiveRunner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// archivePrefix is where the S3 archiver files monthly history.
const archivePrefix = "archive/"

// ArchiveHandler serves the manual archive trigger and read access to the
// cold-storage archive files.
type ArchiveHandler struct {
	runner ArchiveRunner
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(runner ArchiveRunner, blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{runner: runner, blobs: blobs, logger: logger}
}

// Trigger runs an archive cycle synchronously and reports what it moved.
// Concurrent triggers queue behind each other; phases are idempotent, so a
// run that overlaps the schedule uploads a superset and prunes the same rows.
// POST /api/archive/trigger
func (h *ArchiveHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "manual archive run failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "archive run failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// List returns metadata for every archive file in object storage.
// GET /api/archive
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.blobs.List(r.Context(), archivePrefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive listing failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	type entry struct {
		Path         string    `json:"path"`
		Size         int64     `json:"size"`
		LastModified time.Time `json:"lastModified"`
	}
	out := make([]entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, entry{Path: info.Path, Size: info.Size, LastModified: info.LastModified})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"archives": out,
		"count":    len(out),
	})
}

// Download streams one monthly archive file. The mux routes HEAD here too;
// a HEAD request only probes for presence, so clients can poll for a month
// to land without transferring it.
// GET /api/archive/{kind}/{month}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	kind := pathParam(r, "kind")
	if kind != "opportunities" && kind != "executions" {
		writeError(w, http.StatusBadRequest, "kind must be opportunities or executions")
		return
	}
	month := pathParam(r, "month")
	if _, err := time.Parse("2006-01", month); err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	key := fmt.Sprintf("%s%s/%s.jsonl", archivePrefix, kind, month)

	if r.Method == http.MethodHead {
		ok, err := h.blobs.Exists(r.Context(), key)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "archive probe failed",
				slog.String("key", key), slog.Any("error", err))
			writeError(w, http.StatusInternalServerError, "failed to probe archive")
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "archive download failed",
			slog.String("key", key), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to fetch archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition",
		"attachment; filename="+strconv.Quote(kind+"-"+month+".jsonl"))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.ErrorContext(r.Context(), "archive stream interrupted",
			slog.String("key", key), slog.Any("error", err))
	}
}
