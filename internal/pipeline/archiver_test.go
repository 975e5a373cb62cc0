package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlob struct {
	opps    int64
	execs   int64
	oppErr  error
	execErr error

	oppCutoff  time.Time
	execCutoff time.Time
	execCalls  int
}

func (f *fakeBlob) ArchiveOpportunities(_ context.Context, before time.Time) (int64, error) {
	f.oppCutoff = before
	return f.opps, f.oppErr
}

func (f *fakeBlob) ArchiveExecutions(_ context.Context, before time.Time) (int64, error) {
	f.execCalls++
	f.execCutoff = before
	return f.execs, f.execErr
}

type fakePruner struct {
	n      int64
	err    error
	calls  int
	cutoff time.Time
}

func (f *fakePruner) DeleteTerminalBefore(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.cutoff = before
	return f.n, f.err
}

func (f *fakePruner) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	f.calls++
	f.cutoff = before
	return f.n, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunArchivesThenPrunes(t *testing.T) {
	blob := &fakeBlob{opps: 3, execs: 2}
	oppPruner := &fakePruner{n: 3}
	execPruner := &fakePruner{n: 2}
	a := NewArchiver(blob, oppPruner, execPruner, 90, testLogger())

	res, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), res.OpportunitiesArchived)
	assert.Equal(t, int64(2), res.ExecutionsArchived)
	assert.Equal(t, int64(3), res.OpportunitiesPruned)
	assert.Equal(t, int64(2), res.ExecutionsPruned)

	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, wantCutoff, res.Cutoff, 5*time.Second)

	// Every phase sees the same cutoff.
	assert.Equal(t, blob.oppCutoff, blob.execCutoff)
	assert.Equal(t, blob.oppCutoff, oppPruner.cutoff)
	assert.Equal(t, blob.oppCutoff, execPruner.cutoff)
}

func TestRunSkipsPruneOnArchiveError(t *testing.T) {
	blob := &fakeBlob{opps: 5, execErr: errors.New("bucket unavailable")}
	oppPruner := &fakePruner{}
	execPruner := &fakePruner{}
	a := NewArchiver(blob, oppPruner, execPruner, 30, testLogger())

	res, err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "bucket unavailable")

	// The completed phase is still reported, but nothing was pruned.
	assert.Equal(t, int64(5), res.OpportunitiesArchived)
	assert.Zero(t, oppPruner.calls)
	assert.Zero(t, execPruner.calls)
}

func TestRunSurfacesPruneError(t *testing.T) {
	blob := &fakeBlob{opps: 1, execs: 1}
	oppPruner := &fakePruner{err: errors.New("deadlock detected")}
	execPruner := &fakePruner{}
	a := NewArchiver(blob, oppPruner, execPruner, 30, testLogger())

	_, err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "deadlock detected")
	assert.Zero(t, execPruner.calls)
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	blob := &fakeBlob{}
	a := NewArchiver(blob, &fakePruner{}, &fakePruner{}, 30, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.RunLoop(ctx, time.Hour)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunLoop did not stop after cancel")
	}
	assert.Zero(t, blob.execCalls)
}
