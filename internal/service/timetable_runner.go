package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/jobs"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/tracing"
)

type timetableJobStore interface {
	Create(ctx context.Context, job *models.TimetableJob) error
	GetByID(ctx context.Context, id string) (*models.TimetableJob, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.TimetableJob, error)
	ListByStatus(ctx context.Context, statuses []models.JobStatus, limit int) ([]models.TimetableJob, error)
	FindActiveBySession(ctx context.Context, sessionID string) (*models.TimetableJob, error)
	Transition(ctx context.Context, id string, to models.JobStatus, update repository.JobUpdate) error
	UpdateProgress(ctx context.Context, id string, phase models.JobPhase, progress int) error
	RequestCancel(ctx context.Context, id string) error
}

type jobCompleter interface {
	CompleteJob(ctx context.Context, jobID string, version *models.TimetableVersion, result models.JobResult) error
}

type problemSource interface {
	Get(ctx context.Context, sessionID string) (*problem.Problem, error)
}

type timetableOptimizer interface {
	Optimize(ctx context.Context, p *problem.Problem, hooks OptimizeHooks) (*OptimizeResult, error)
	OptimizeWithPlan(ctx context.Context, p *problem.Problem, constraints ConstraintPlan, hooks OptimizeHooks) (*OptimizeResult, error)
}

// configurationPlans resolves the constraint plan of a stored configuration.
type configurationPlans interface {
	PlanFor(ctx context.Context, configurationID string) (ConstraintPlan, error)
}

// errJobMoved signals that another actor moved the job out of running.
var errJobMoved = errors.New("timetable job left the running state")

// TimetableRunner executes queued optimization jobs.
type TimetableRunner struct {
	jobs           timetableJobStore
	completer      jobCompleter
	problems       problemSource
	optimizer      timetableOptimizer
	configurations configurationPlans
	hub            *ProgressHub
	metrics        *MetricsService
	maxRetries     int
	logger         *zap.Logger
	now            func() time.Time
}

// NewTimetableRunner constructs the runner. maxRetries should match the queue's.
func NewTimetableRunner(store timetableJobStore, completer jobCompleter, problems problemSource, optimizer timetableOptimizer, hub *ProgressHub, metrics *MetricsService, maxRetries int, logger *zap.Logger) *TimetableRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TimetableRunner{
		jobs:       store,
		completer:  completer,
		problems:   problems,
		optimizer:  optimizer,
		hub:        hub,
		metrics:    metrics,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// SetConfigurations enables jobs that name a stored constraint configuration.
func (r *TimetableRunner) SetConfigurations(plans configurationPlans) {
	r.configurations = plans
}

// Handle processes one queue delivery of a timetable job.
func (r *TimetableRunner) Handle(ctx context.Context, job jobs.Job) error {
	log := r.logger.Sugar().With("job_id", job.ID, "attempt", job.Attempt)

	record, err := r.jobs.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warnw("dropping delivery for unknown job")
			return nil
		}
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load timetable job")
	}
	log = log.With("session_id", record.SessionID)

	switch {
	case record.Status.Terminal():
		log.Infow("job already finished", "status", record.Status)
		return nil
	case record.Status == models.JobStatusRunning:
		log.Warnw("job is already running, skipping duplicate delivery")
		return nil
	case record.CancelRequested:
		r.finishCancelled(ctx, record, "cancelled before start", false)
		return nil
	}

	started := r.now().UTC()
	phase := models.PhasePreparing
	progress := progressPreparing
	attempt := job.Attempt
	if err := r.jobs.Transition(ctx, job.ID, models.JobStatusRunning, repository.JobUpdate{
		Phase:     &phase,
		Progress:  &progress,
		Attempt:   &attempt,
		StartedAt: &started,
	}); err != nil {
		if errors.Is(err, repository.ErrStaleJob) {
			log.Infow("job moved before start")
			return nil
		}
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to start timetable job")
	}
	r.metrics.JobStarted()
	r.publish(job.ID, models.JobStatusRunning, phase, progress, "job started")
	log.Infow("timetable job started", "phase", phase)

	ctx, span := tracing.StartSpan(ctx, "timetable.job", "job.id", job.ID, "session.id", record.SessionID)
	defer span.End()

	result, err := r.run(ctx, record)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return r.handleFailure(ctx, record, job, err)
	}

	version := &models.TimetableVersion{
		SessionID: record.SessionID,
		Source:    models.VersionSourceSolver,
		Solution:  result.Solution,
		CreatedBy: record.CreatedBy,
	}
	if err := r.completer.CompleteJob(context.WithoutCancel(ctx), job.ID, version, result.Stats); err != nil {
		if errors.Is(err, repository.ErrStaleJob) {
			log.Warnw("job moved while completing, result discarded")
			return nil
		}
		return r.handleFailure(ctx, record, job, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to persist timetable"))
	}

	r.metrics.JobFinished(models.JobStatusCompleted, "")
	r.publish(job.ID, models.JobStatusCompleted, models.PhaseCompleted, 100, "timetable published as version "+version.ID)
	log.Infow("timetable job completed", "status", models.JobStatusCompleted, "version_id", version.ID,
		"hard_violations", result.Evaluation.Hard, "refined", result.Solution.Refined)
	return nil
}

func (r *TimetableRunner) run(ctx context.Context, record *models.TimetableJob) (*OptimizeResult, error) {
	p, err := r.problems.Get(ctx, record.SessionID)
	if err != nil {
		return nil, err
	}
	hooks := r.hooks(record.ID)
	if record.ConfigurationID == "" {
		return r.optimizer.Optimize(ctx, p, hooks)
	}
	if r.configurations == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stored configurations are not available")
	}
	plan, err := r.configurations.PlanFor(ctx, record.ConfigurationID)
	if err != nil {
		return nil, err
	}
	return r.optimizer.OptimizeWithPlan(ctx, p, plan, hooks)
}

func (r *TimetableRunner) hooks(jobID string) OptimizeHooks {
	return OptimizeHooks{
		Enter: func(ctx context.Context, phase models.JobPhase, progress int) error {
			current, err := r.jobs.GetByID(ctx, jobID)
			if err == nil && current.CancelRequested {
				return context.Canceled
			}
			if err := r.jobs.UpdateProgress(ctx, jobID, phase, progress); err != nil {
				if errors.Is(err, repository.ErrStaleJob) {
					return errJobMoved
				}
				r.logger.Warn("failed to record job progress", zap.String("job_id", jobID), zap.Error(err))
			}
			r.publish(jobID, models.JobStatusRunning, phase, progress, "")
			return nil
		},
		Progress: func(phase models.JobPhase, progress int, objective *float64, solutions int) {
			r.hub.Publish(jobID, models.ProgressEvent{
				Status:    models.JobStatusRunning,
				Phase:     phase,
				Progress:  progress,
				Objective: objective,
				Solutions: solutions,
			})
		},
	}
}

// handleFailure settles the job after err and decides what the queue sees.
func (r *TimetableRunner) handleFailure(ctx context.Context, record *models.TimetableJob, job jobs.Job, err error) error {
	wctx := context.WithoutCancel(ctx)
	log := r.logger.Sugar().With("job_id", record.ID, "session_id", record.SessionID, "attempt", job.Attempt)

	switch {
	case errors.Is(err, errJobMoved):
		log.Infow("job left running state during optimization")
		return nil
	case errors.Is(err, context.Canceled):
		current, getErr := r.jobs.GetByID(wctx, record.ID)
		if getErr == nil && !current.CancelRequested {
			// Shutdown rather than a user request: hand the job back for recovery.
			r.requeue(wctx, record, "interrupted by shutdown")
			return err
		}
		r.finishCancelled(wctx, record, "cancelled by request", true)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		err = appErrors.WrapAs(appErrors.ErrSolverTimeout, err, "job exceeded its time limit")
	case appErrors.IsTransient(err) && job.Attempt < r.maxRetries:
		log.Warnw("transient failure, job will be retried", "error", err)
		r.requeue(wctx, record, err.Error())
		return err
	}

	appErr := appErrors.FromError(err)
	r.finishFailed(wctx, record, appErr)
	log.Errorw("timetable job failed", "status", models.JobStatusFailed, "code", appErr.Code, "error", err)
	return err
}

func (r *TimetableRunner) requeue(ctx context.Context, record *models.TimetableJob, reason string) {
	phase := models.PhasePreparing
	progress := 0
	if err := r.jobs.Transition(ctx, record.ID, models.JobStatusQueued, repository.JobUpdate{
		Phase:        &phase,
		Progress:     &progress,
		ErrorMessage: &reason,
	}); err != nil {
		r.logger.Warn("failed to requeue timetable job", zap.String("job_id", record.ID), zap.Error(err))
		return
	}
	r.metrics.JobFinished(models.JobStatusQueued, "")
}

func (r *TimetableRunner) finishFailed(ctx context.Context, record *models.TimetableJob, appErr *appErrors.Error) {
	phase := models.PhaseFailed
	code := appErr.Code
	message := appErr.Message
	now := r.now().UTC()
	if err := r.jobs.Transition(ctx, record.ID, models.JobStatusFailed, repository.JobUpdate{
		Phase:        &phase,
		FailureCode:  &code,
		ErrorMessage: &message,
		CompletedAt:  &now,
	}); err != nil {
		r.logger.Warn("failed to mark timetable job failed", zap.String("job_id", record.ID), zap.Error(err))
	}
	r.metrics.JobFinished(models.JobStatusFailed, code)
	r.publish(record.ID, models.JobStatusFailed, phase, 100, fmt.Sprintf("%s: %s", code, message))
}

// finishCancelled marks the job cancelled. running tells whether this runner
// had started it, which decides whether the active gauge moves.
func (r *TimetableRunner) finishCancelled(ctx context.Context, record *models.TimetableJob, reason string, running bool) {
	phase := models.PhaseCancelled
	now := r.now().UTC()
	if err := r.jobs.Transition(ctx, record.ID, models.JobStatusCancelled, repository.JobUpdate{
		Phase:        &phase,
		ErrorMessage: &reason,
		CompletedAt:  &now,
	}); err != nil && !errors.Is(err, repository.ErrStaleJob) {
		r.logger.Warn("failed to mark timetable job cancelled", zap.String("job_id", record.ID), zap.Error(err))
	}
	if running {
		r.metrics.JobFinished(models.JobStatusCancelled, "")
	}
	r.publish(record.ID, models.JobStatusCancelled, phase, 100, reason)
	r.logger.Sugar().Infow("timetable job cancelled", "job_id", record.ID, "status", models.JobStatusCancelled)
}

func (r *TimetableRunner) publish(jobID string, status models.JobStatus, phase models.JobPhase, progress int, message string) {
	r.hub.Publish(jobID, models.ProgressEvent{Status: status, Phase: phase, Progress: progress, Message: message})
}
