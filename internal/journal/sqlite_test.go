package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/idcs-tools/scimctl/internal/submit"
	"github.com/idcs-tools/scimctl/pkg/logger"
)

func openTestJournal(t *testing.T) *SQLite {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"), time.Second, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestPrepareDSN(t *testing.T) {
	dsn, err := PrepareDSN("/var/lib/scimctl/journal.db")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/scimctl/journal.db?_pragma=journal_mode%28WAL%29&_pragma=busy_timeout%281000%29&_pragma=foreign_keys%281%29", dsn)

	dsn, err = PrepareDSN("journal.db?_pragma=journal_mode(DELETE)")
	require.NoError(t, err)
	require.Contains(t, dsn, "journal_mode%28DELETE%29")
	require.NotContains(t, dsn, "WAL")
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.StartRun(ctx, Run{ID: "run-1", Command: "clean-idle-users", ClientID: "client", StartedAt: started}))

	require.NoError(t, j.RecordBatch(ctx, "run-1", submit.Outcome{Task: 2, Operations: 5, Err: errors.New("POST /Bulk: unexpected status 500"), Duration: 30 * time.Millisecond}))
	require.NoError(t, j.RecordBatch(ctx, "run-1", submit.Outcome{Task: 1, Operations: 20, Duration: 2 * time.Second, OperationFailures: 3}))

	require.NoError(t, j.FinishRun(ctx, "run-1", Result{Discovered: 25, Batches: 2, Succeeded: 1, Failed: 1, OperationFailures: 3}))

	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, "clean-idle-users", run.Command)
	require.Equal(t, "client", run.ClientID)
	require.True(t, started.Equal(run.StartedAt))
	require.NotNil(t, run.FinishedAt)
	require.Equal(t, 25, run.Discovered)
	require.Equal(t, 1, run.Failed)
	require.Empty(t, run.Error)

	batches, err := j.Batches(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, []BatchRecord{
		{RunID: "run-1", Task: 1, Operations: 20, Outcome: OutcomeSucceeded, OperationFailures: 3, Duration: 2 * time.Second},
		{RunID: "run-1", Task: 2, Operations: 5, Outcome: OutcomeFailed, Error: "POST /Bulk: unexpected status 500", Duration: 30 * time.Millisecond},
	}, batches)
}

func TestFinishRunRecordsError(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	require.NoError(t, j.StartRun(ctx, Run{ID: "run-1", Command: "clean-users", StartedAt: time.Now()}))
	require.NoError(t, j.FinishRun(ctx, "run-1", Result{Err: errors.New("search users: boom")}))

	runs, err := j.Runs(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "search users: boom", runs[0].Error)
}

func TestFinishUnknownRun(t *testing.T) {
	j := openTestJournal(t)
	err := j.FinishRun(context.Background(), "ghost", Result{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateRun(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	run := Run{ID: "run-1", Command: "fake-users", StartedAt: time.Now()}
	require.NoError(t, j.StartRun(ctx, run))
	require.ErrorIs(t, j.StartRun(ctx, run), ErrCollision)
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.StartRun(ctx, Run{ID: id, Command: "clean-users", StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	runs, err := j.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "c", runs[0].ID)
	require.Equal(t, "b", runs[1].ID)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(ctx, path, time.Second, logger.NewNoopLogger())
	require.NoError(t, err)
	require.NoError(t, j.StartRun(ctx, Run{ID: "run-1", Command: "clean-users", StartedAt: time.Now()}))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path, time.Second, logger.NewNoopLogger())
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestNoop(t *testing.T) {
	var j Journal = Noop{}
	ctx := context.Background()

	require.NoError(t, j.StartRun(ctx, Run{ID: "x"}))
	require.NoError(t, j.RecordBatch(ctx, "x", submit.Outcome{Task: 1}))
	require.NoError(t, j.FinishRun(ctx, "x", Result{}))
	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, runs)
	require.NoError(t, j.Close())
}
