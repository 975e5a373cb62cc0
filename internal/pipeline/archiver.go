// Package pipeline runs the cold-storage archive cycle: terminal
// opportunities and finished executions older than the retention horizon
// are uploaded to object storage and then pruned from the database.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BlobArchiver uploads aged history to object storage. Implemented by the
// S3 archiver.
type BlobArchiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
	ArchiveExecutions(ctx context.Context, before time.Time) (int64, error)
}

// OpportunityPruner deletes terminal opportunity rows that have been
// archived. Implemented by the Postgres opportunity store.
type OpportunityPruner interface {
	DeleteTerminalBefore(ctx context.Context, before time.Time) (int64, error)
}

// ExecutionPruner deletes finished execution rows that have been archived.
// Implemented by the Postgres execution store.
type ExecutionPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunResult reports what a single archive run did.
type RunResult struct {
	Cutoff                time.Time `json:"cutoff"`
	OpportunitiesArchived int64     `json:"opportunitiesArchived"`
	ExecutionsArchived    int64     `json:"executionsArchived"`
	OpportunitiesPruned   int64     `json:"opportunitiesPruned"`
	ExecutionsPruned      int64     `json:"executionsPruned"`
	DurationMs            int64     `json:"durationMs"`
}

// Archiver moves aged engine history from the database to cold storage.
// Rows are pruned only after the upload phases succeed, so a failed run
// leaves everything in place for the next attempt.
type Archiver struct {
	blob          BlobArchiver
	opps          OpportunityPruner
	execs         ExecutionPruner
	retentionDays int
	logger        *slog.Logger

	// mu serialises scheduled runs with runs triggered over the API.
	mu sync.Mutex
}

// NewArchiver creates an archive pipeline retaining retentionDays of
// history in the database.
func NewArchiver(blob BlobArchiver, opps OpportunityPruner, execs ExecutionPruner, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:          blob,
		opps:          opps,
		execs:         execs,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive cycle. It archives terminal opportunities
// and finished executions older than the retention cutoff, then prunes the
// archived rows from the database.
func (a *Archiver) Run(ctx context.Context) (RunResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	started := time.Now().UTC()
	cutoff := started.Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	res := RunResult{Cutoff: cutoff}

	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	oppsArchived, err := a.blob.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archiving opportunities before %v: %w", cutoff, err)
	}
	res.OpportunitiesArchived = oppsArchived
	a.logger.InfoContext(ctx, "archived opportunities", slog.Int64("count", oppsArchived))

	execsArchived, err := a.blob.ArchiveExecutions(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: archiving executions before %v: %w", cutoff, err)
	}
	res.ExecutionsArchived = execsArchived
	a.logger.InfoContext(ctx, "archived executions", slog.Int64("count", execsArchived))

	oppsPruned, err := a.opps.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: pruning opportunities before %v: %w", cutoff, err)
	}
	res.OpportunitiesPruned = oppsPruned

	execsPruned, err := a.execs.DeleteBefore(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("pipeline: pruning executions before %v: %w", cutoff, err)
	}
	res.ExecutionsPruned = execsPruned

	res.DurationMs = time.Since(started).Milliseconds()
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("opportunities_archived", res.OpportunitiesArchived),
		slog.Int64("executions_archived", res.ExecutionsArchived),
		slog.Int64("opportunities_pruned", res.OpportunitiesPruned),
		slog.Int64("executions_pruned", res.ExecutionsPruned),
		slog.Int64("duration_ms", res.DurationMs),
	)

	return res, nil
}

// RunLoop re-runs the archive cycle on a fixed interval until the context
// is cancelled. A failed run is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archive loop started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archive loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
