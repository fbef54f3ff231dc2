package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

func TestMemoryStoreJobLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	job := &models.TimetableJob{SessionID: "session-1"}
	require.NoError(t, store.Create(ctx, job))

	active, err := store.FindActiveBySession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, active.ID)

	assert.ErrorIs(t, store.UpdateProgress(ctx, job.ID, models.PhasePhase1, 20), ErrStaleJob)

	started := time.Now().UTC()
	require.NoError(t, store.Transition(ctx, job.ID, models.JobStatusRunning, JobUpdate{StartedAt: &started}))
	require.NoError(t, store.UpdateProgress(ctx, job.ID, models.PhasePhase1, 40))
	require.NoError(t, store.UpdateProgress(ctx, job.ID, models.PhasePhase1, 20))

	fetched, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, fetched.Progress)
	assert.NotNil(t, fetched.StartedAt)

	version := &models.TimetableVersion{Solution: testSolution()}
	require.NoError(t, store.CompleteJob(ctx, job.ID, version, models.JobResult{}))

	fetched, err = store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, fetched.Status)
	assert.Equal(t, version.ID, fetched.Result.VersionID)
	assert.Equal(t, "session-1", version.SessionID)

	_, err = store.FindActiveBySession(ctx, "session-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.ErrorIs(t, store.Transition(ctx, job.ID, models.JobStatusCancelled, JobUpdate{}), ErrStaleJob)
}

func TestMemoryStoreEditVersions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	versions := store.Versions()

	job := &models.TimetableJob{SessionID: "session-1", Status: models.JobStatusRunning}
	require.NoError(t, store.Create(ctx, job))
	first := &models.TimetableVersion{Solution: testSolution()}
	require.NoError(t, store.CompleteJob(ctx, job.ID, first, models.JobResult{}))

	parent := first.ID
	edit := &models.TimetableVersion{JobID: job.ID, ParentVersionID: &parent, Solution: testSolution()}
	require.NoError(t, versions.PublishEdit(ctx, edit))
	assert.Equal(t, 2, edit.Version)

	stale := &models.TimetableVersion{JobID: job.ID, ParentVersionID: &parent, Solution: testSolution()}
	assert.ErrorIs(t, versions.PublishEdit(ctx, stale), ErrStaleVersion)

	active, err := versions.GetActiveByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, edit.ID, active.ID)
	assert.Equal(t, models.VersionSourceManualEdit, active.Source)

	history, err := versions.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].Version)
	assert.False(t, history[1].Active)

	_, err = versions.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
