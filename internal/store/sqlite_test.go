package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaCuaBan77/Portfolio-generator/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "subdir", "test.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSyncRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.SyncRun{Trigger: "manual"}
	require.NoError(t, s.CreateSyncRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.SyncStatusRunning, run.Status)
	assert.False(t, run.StartedAt.IsZero())

	got, err := s.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "manual", got.Trigger)
	assert.Equal(t, models.SyncStatusRunning, got.Status)
	assert.Nil(t, got.FinishedAt)

	run.Status = models.SyncStatusSucceeded
	run.ReposTotal = 3
	run.Added = 1
	run.Updated = 1
	run.Skipped = 1
	run.Professional = 2
	run.Personal = 2
	outcomes := []models.RepoOutcome{
		{RepoID: 10, RepoName: "alpha", Outcome: models.OutcomeAdded},
		{RepoID: 11, RepoName: "beta", Outcome: models.OutcomeUpdated},
		{RepoID: 12, RepoName: "gamma", Outcome: models.OutcomeSkipped, Reason: "no readme"},
	}
	require.NoError(t, s.FinishSyncRun(ctx, run, outcomes))
	require.NotNil(t, run.FinishedAt)

	got, err = s.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSucceeded, got.Status)
	assert.Equal(t, 3, got.ReposTotal)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, 2, got.Personal)
	require.NotNil(t, got.FinishedAt)

	list, err := s.ListRepoOutcomes(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].RepoName)
	assert.Equal(t, run.ID, list[0].RunID)
	assert.Equal(t, models.OutcomeSkipped, list[2].Outcome)
	assert.Equal(t, "no readme", list[2].Reason)
	assert.Equal(t, int64(12), list[2].RepoID)
}

func TestFinishSyncRun_UnknownRun(t *testing.T) {
	s := newTestStore(t)
	err := s.FinishSyncRun(context.Background(), &models.SyncRun{ID: "missing", Status: models.SyncStatusFailed}, nil)
	assert.Error(t, err)
}

func TestLastSyncRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LastSyncRun(ctx)
	assert.ErrorIs(t, err, ErrNoRuns)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, trigger := range []string{"startup", "schedule", "manual"} {
		run := &models.SyncRun{Trigger: trigger, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		require.NoError(t, s.CreateSyncRun(ctx, run))
	}

	last, err := s.LastSyncRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "manual", last.Trigger)

	runs, err := s.ListSyncRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "manual", runs[0].Trigger)
	assert.Equal(t, "schedule", runs[1].Trigger)

	all, err := s.ListSyncRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListRepoOutcomes_Empty(t *testing.T) {
	s := newTestStore(t)
	outcomes, err := s.ListRepoOutcomes(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}
