package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/jobs"
)

type queueStub struct {
	mu        sync.Mutex
	enqueued  []jobs.Job
	cancelled []string
	err       error
	running   bool
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *queueStub) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, id)
	return q.running
}

func newTestJobService(store *repository.MemoryStore, queue *queueStub, single bool) *TimetableJobService {
	return NewTimetableJobService(store, queue, NewProgressHub(8, nil), nil, TimetableJobServiceConfig{SingleActivePerSession: single}, nil)
}

func TestTimetableJobServiceStartJob(t *testing.T) {
	store := repository.NewMemoryStore()
	queue := &queueStub{}
	svc := newTestJobService(store, queue, true)

	job, err := svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1", CreatedBy: "admin"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].ID)
	assert.Equal(t, TimetableJobType, queue.enqueued[0].Type)

	_, err = svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-2"})
	require.NoError(t, err)
}

func TestTimetableJobServiceAllowsConcurrentJobsWhenConfigured(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestJobService(store, &queueStub{}, false)

	_, err := svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1"})
	require.NoError(t, err)
	_, err = svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1"})
	require.NoError(t, err)

	list, err := svc.ListJobs(context.Background(), "session-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestTimetableJobServiceStartJobValidation(t *testing.T) {
	svc := newTestJobService(repository.NewMemoryStore(), &queueStub{}, true)

	_, err := svc.StartJob(context.Background(), dto.StartJobRequest{})
	require.Error(t, err)
	assert.True(t, appErrors.IsCode(err, appErrors.CodeValidation))
}

func TestTimetableJobServiceEnqueueFailureFailsJob(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestJobService(store, &queueStub{err: errors.New("queue stopped")}, true)

	_, err := svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1"})
	require.Error(t, err)
	assert.True(t, appErrors.IsTransient(err))

	list, err := store.ListBySession(context.Background(), "session-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.JobStatusFailed, list[0].Status)
}

func TestTimetableJobServiceCancelQueuedJob(t *testing.T) {
	store := repository.NewMemoryStore()
	queue := &queueStub{}
	svc := newTestJobService(store, queue, true)
	job, err := svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1"})
	require.NoError(t, err)

	cancelled, err := svc.CancelJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	assert.True(t, cancelled.CancelRequested)
	assert.Equal(t, []string{job.ID}, queue.cancelled)

	_, err = svc.CancelJob(context.Background(), job.ID)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	// a cancelled job frees the session
	_, err = svc.StartJob(context.Background(), dto.StartJobRequest{SessionID: "session-1"})
	assert.NoError(t, err)
}

func TestTimetableJobServiceCancelRunningJobOnlyFlagsIt(t *testing.T) {
	store := repository.NewMemoryStore()
	queue := &queueStub{running: true}
	svc := newTestJobService(store, queue, true)
	job := queuedJob(t, store)
	require.NoError(t, store.Transition(context.Background(), job.ID, models.JobStatusRunning, repository.JobUpdate{}))

	got, err := svc.CancelJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status)
	assert.True(t, got.CancelRequested)
	assert.Equal(t, []string{job.ID}, queue.cancelled)
}

func TestTimetableJobServiceGetJobNotFound(t *testing.T) {
	svc := newTestJobService(repository.NewMemoryStore(), &queueStub{}, true)
	_, err := svc.GetJob(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableJobServiceRecoverPendingJobs(t *testing.T) {
	store := repository.NewMemoryStore()
	queue := &queueStub{}
	svc := newTestJobService(store, queue, true)

	queued := queuedJob(t, store)
	orphan := &models.TimetableJob{SessionID: "session-2"}
	require.NoError(t, store.Create(context.Background(), orphan))
	require.NoError(t, store.Transition(context.Background(), orphan.ID, models.JobStatusRunning, repository.JobUpdate{}))

	svc.RecoverPendingJobs(context.Background())

	ids := []string{}
	for _, j := range queue.enqueued {
		ids = append(ids, j.ID)
	}
	assert.ElementsMatch(t, []string{queued.ID, orphan.ID}, ids)
	stored, _ := store.GetByID(context.Background(), orphan.ID)
	assert.Equal(t, models.JobStatusQueued, stored.Status)
}

func TestTimetableJobServiceSubscribeSeedsFromRecord(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestJobService(store, &queueStub{}, true)
	job := queuedJob(t, store)
	phase := models.PhaseFailed
	code := appErrors.CodeSolverInfeasible
	msg := "no feasible timetable"
	require.NoError(t, store.Transition(context.Background(), job.ID, models.JobStatusFailed, repository.JobUpdate{
		Phase: &phase, FailureCode: &code, ErrorMessage: &msg,
	}))

	ch, stop, err := svc.Subscribe(context.Background(), job.ID)
	require.NoError(t, err)
	defer stop()

	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, models.JobStatusFailed, ev.Status)
	assert.Equal(t, msg, ev.Message)
	_, open := <-ch
	assert.False(t, open)

	_, _, err = svc.Subscribe(context.Background(), "missing")
	assert.Error(t, err)
}
