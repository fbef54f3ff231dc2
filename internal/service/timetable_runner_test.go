package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem/problemtest"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/jobs"
)

type problemSourceStub struct {
	instance problem.Instance
	err      error
	calls    int
}

func (s *problemSourceStub) Get(ctx context.Context, sessionID string) (*problem.Problem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return problem.Build(s.instance, problem.Options{})
}

type optimizerStub struct {
	run  func(ctx context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error)
	plan *ConstraintPlan
}

func (o *optimizerStub) Optimize(ctx context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error) {
	return o.run(ctx, p, hooks)
}

func (o *optimizerStub) OptimizeWithPlan(ctx context.Context, p *problem.Problem, constraints ConstraintPlan, hooks OptimizeHooks) (*OptimizeResult, error) {
	o.plan = &constraints
	return o.run(ctx, p, hooks)
}

func failingOptimizer(err error) *optimizerStub {
	return &optimizerStub{run: func(ctx context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error) {
		if enterErr := hooks.enter(ctx, models.PhasePhase1, progressPhase1Start); enterErr != nil {
			return nil, enterErr
		}
		return nil, err
	}}
}

func queuedJob(t *testing.T, store *repository.MemoryStore) *models.TimetableJob {
	t.Helper()
	job := &models.TimetableJob{SessionID: problemtest.SessionID, CreatedBy: "tester"}
	require.NoError(t, store.Create(context.Background(), job))
	return job
}

func newTestRunner(store *repository.MemoryStore, source problemSource, opt timetableOptimizer, hub *ProgressHub) *TimetableRunner {
	return NewTimetableRunner(store, store, source, opt, hub, NewMetricsService(), 2, nil)
}

func TestTimetableRunnerCompletesScenarioA(t *testing.T) {
	store := repository.NewMemoryStore()
	hub := NewProgressHub(64, nil)
	job := queuedJob(t, store)
	events, stop := hub.Subscribe(job.ID)
	defer stop()

	source := &problemSourceStub{instance: problemtest.ScenarioA()}
	runner := newTestRunner(store, source, testOptimizer(t, solver.NewSearchSolver(nil), false), hub)

	require.NoError(t, runner.Handle(context.Background(), jobs.Job{ID: job.ID}))

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, models.PhaseCompleted, stored.Phase)
	assert.Equal(t, 100, stored.Progress)
	require.NotEmpty(t, stored.Result.VersionID)
	require.NotNil(t, stored.Result.Phase1)

	version, err := store.GetActiveByJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Result.VersionID, version.ID)
	assert.Equal(t, 1, version.Version)
	assert.Len(t, version.Solution.Assignments, 3)

	var phases []models.JobPhase
	last := -1
	for ev := range events {
		assert.GreaterOrEqual(t, ev.Progress, last)
		last = ev.Progress
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, 100, last)
	assert.Contains(t, phases, models.PhasePhase1)
	assert.Contains(t, phases, models.PhaseValidating)
	assert.Equal(t, models.PhaseCompleted, phases[len(phases)-1])
}

func TestTimetableRunnerMarksInfeasibleJobFailed(t *testing.T) {
	store := repository.NewMemoryStore()
	hub := NewProgressHub(8, nil)
	job := queuedJob(t, store)
	source := &problemSourceStub{instance: problemtest.ScenarioB()}
	runner := newTestRunner(store, source, testOptimizer(t, solver.NewSearchSolver(nil), false), hub)

	err := runner.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.Error(t, err)
	assert.False(t, appErrors.IsTransient(err))

	stored, getErr := store.GetByID(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureCode)
	assert.Equal(t, appErrors.CodeSolverInfeasible, *stored.FailureCode)
	_, err = store.GetActiveByJob(context.Background(), job.ID)
	assert.Error(t, err)

	last, ok := hub.Last(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusFailed, last.Status)
}

type configurationPlansStub struct {
	plan ConstraintPlan
	err  error
	ids  []string
}

func (s *configurationPlansStub) PlanFor(ctx context.Context, id string) (ConstraintPlan, error) {
	s.ids = append(s.ids, id)
	return s.plan, s.err
}

func TestTimetableRunnerUsesStoredConfiguration(t *testing.T) {
	store := repository.NewMemoryStore()
	job := &models.TimetableJob{SessionID: problemtest.SessionID, ConfigurationID: "strict", CreatedBy: "tester"}
	require.NoError(t, store.Create(context.Background(), job))

	plan := testConstraintPlan(t)
	plan.Profile = "strict"
	plans := &configurationPlansStub{plan: plan}
	runner := newTestRunner(store, &problemSourceStub{instance: problemtest.ScenarioA()}, testOptimizer(t, solver.NewSearchSolver(nil), false), NewProgressHub(8, nil))
	runner.SetConfigurations(plans)

	require.NoError(t, runner.Handle(context.Background(), jobs.Job{ID: job.ID}))

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, []string{"strict"}, plans.ids)
	assert.Equal(t, "strict", stored.Result.Extras["constraint_profile"])
}

func TestTimetableRunnerFailsUnknownConfiguration(t *testing.T) {
	store := repository.NewMemoryStore()
	job := &models.TimetableJob{SessionID: problemtest.SessionID, ConfigurationID: "ghost", CreatedBy: "tester"}
	require.NoError(t, store.Create(context.Background(), job))

	opt := failingOptimizer(errors.New("must not run"))
	runner := newTestRunner(store, &problemSourceStub{instance: problemtest.ScenarioA()}, opt, NewProgressHub(8, nil))
	runner.SetConfigurations(&configurationPlansStub{err: appErrors.Clone(appErrors.ErrValidation, `unknown configuration "ghost"`)})

	err := runner.Handle(context.Background(), jobs.Job{ID: job.ID})
	require.Error(t, err)
	assert.Nil(t, opt.plan)

	stored, getErr := store.GetByID(context.Background(), job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureCode)
	assert.Equal(t, appErrors.CodeValidation, *stored.FailureCode)
}

func TestTimetableRunnerRequeuesTransientFailure(t *testing.T) {
	store := repository.NewMemoryStore()
	job := queuedJob(t, store)
	source := &problemSourceStub{err: appErrors.WrapAs(appErrors.ErrPersistence, errors.New("connection reset"), "load failed")}
	runner := newTestRunner(store, source, failingOptimizer(nil), NewProgressHub(8, nil))

	err := runner.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 0})
	require.Error(t, err)
	assert.True(t, appErrors.IsTransient(err))

	stored, _ := store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusQueued, stored.Status)

	// the last allowed attempt fails the job for good
	err = runner.Handle(context.Background(), jobs.Job{ID: job.ID, Attempt: 2})
	require.Error(t, err)
	stored, _ = store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, appErrors.CodePersistence, *stored.FailureCode)
	assert.Equal(t, 2, source.calls)
}

func TestTimetableRunnerHonoursCancelRequestAtPhaseBoundary(t *testing.T) {
	store := repository.NewMemoryStore()
	hub := NewProgressHub(8, nil)
	job := queuedJob(t, store)
	opt := &optimizerStub{run: func(ctx context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error) {
		require.NoError(t, store.RequestCancel(ctx, job.ID))
		return nil, hooks.enter(ctx, models.PhasePhase1, progressPhase1Start)
	}}
	runner := newTestRunner(store, &problemSourceStub{instance: problemtest.ScenarioA()}, opt, hub)

	require.NoError(t, runner.Handle(context.Background(), jobs.Job{ID: job.ID}))

	stored, _ := store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)
	assert.Equal(t, models.PhaseCancelled, stored.Phase)
	last, _ := hub.Last(job.ID)
	assert.True(t, last.Terminal())
}

func TestTimetableRunnerRequeuesOnShutdown(t *testing.T) {
	store := repository.NewMemoryStore()
	job := queuedJob(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	opt := &optimizerStub{run: func(_ context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error) {
		cancel()
		return nil, ctx.Err()
	}}
	runner := newTestRunner(store, &problemSourceStub{instance: problemtest.ScenarioA()}, opt, NewProgressHub(8, nil))

	err := runner.Handle(ctx, jobs.Job{ID: job.ID})
	assert.ErrorIs(t, err, context.Canceled)
	stored, _ := store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusQueued, stored.Status)
}

func TestTimetableRunnerTaskTimeLimitIsSolverTimeout(t *testing.T) {
	store := repository.NewMemoryStore()
	job := queuedJob(t, store)
	runner := newTestRunner(store, &problemSourceStub{instance: problemtest.ScenarioA()}, failingOptimizer(context.DeadlineExceeded), NewProgressHub(8, nil))

	require.Error(t, runner.Handle(context.Background(), jobs.Job{ID: job.ID}))
	stored, _ := store.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, appErrors.CodeSolverTimeout, *stored.FailureCode)
}

func TestTimetableRunnerSkipsFinishedAndCancelledJobs(t *testing.T) {
	store := repository.NewMemoryStore()
	source := &problemSourceStub{instance: problemtest.ScenarioA()}
	runner := newTestRunner(store, source, failingOptimizer(nil), NewProgressHub(8, nil))

	cancelled := queuedJob(t, store)
	require.NoError(t, store.RequestCancel(context.Background(), cancelled.ID))
	require.NoError(t, runner.Handle(context.Background(), jobs.Job{ID: cancelled.ID}))
	stored, _ := store.GetByID(context.Background(), cancelled.ID)
	assert.Equal(t, models.JobStatusCancelled, stored.Status)

	require.NoError(t, runner.Handle(context.Background(), jobs.Job{ID: cancelled.ID}))
	require.NoError(t, runner.Handle(context.Background(), jobs.Job{ID: "missing"}))
	assert.Zero(t, source.calls)
}

func TestTimetableRunnerWithQueue(t *testing.T) {
	store := repository.NewMemoryStore()
	job := queuedJob(t, store)
	runner := newTestRunner(store, &problemSourceStub{instance: problemtest.ScenarioA()},
		testOptimizer(t, solver.NewSearchSolver(nil), false), NewProgressHub(8, nil))

	queue := jobs.NewQueue("timetable-test", runner.Handle, jobs.QueueConfig{Workers: 1, Retryable: appErrors.IsTransient})
	queue.Start(context.Background())
	defer queue.Stop()
	require.NoError(t, queue.Enqueue(jobs.Job{ID: job.ID, Type: TimetableJobType}))

	require.Eventually(t, func() bool {
		stored, err := store.GetByID(context.Background(), job.ID)
		return err == nil && stored.Status == models.JobStatusCompleted
	}, 20*time.Second, 20*time.Millisecond)
}
