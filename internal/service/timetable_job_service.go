package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/jobs"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/logger"
)

// TimetableJobType labels optimization jobs on the task runner.
const TimetableJobType = "timetable.optimize"

type jobQueue interface {
	Enqueue(job jobs.Job) error
	Cancel(id string) bool
}

// TimetableJobServiceConfig governs job admission and recovery.
type TimetableJobServiceConfig struct {
	SingleActivePerSession bool
	RecoveryLimit          int
}

// TimetableJobService admits, inspects and cancels optimization jobs.
type TimetableJobService struct {
	store     timetableJobStore
	queue     jobQueue
	hub       *ProgressHub
	validator *validator.Validate
	cfg       TimetableJobServiceConfig
	logger    *zap.Logger

	admit sync.Mutex
}

// NewTimetableJobService constructs the service.
func NewTimetableJobService(store timetableJobStore, queue jobQueue, hub *ProgressHub, validate *validator.Validate, cfg TimetableJobServiceConfig, logger *zap.Logger) *TimetableJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.RecoveryLimit <= 0 {
		cfg.RecoveryLimit = 100
	}
	return &TimetableJobService{
		store:     store,
		queue:     queue,
		hub:       hub,
		validator: validate,
		cfg:       cfg,
		logger:    logger,
	}
}

// StartJob persists a queued job for the session and hands it to the runner.
func (s *TimetableJobService) StartJob(ctx context.Context, req dto.StartJobRequest) (*models.TimetableJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start job payload")
	}

	s.admit.Lock()
	defer s.admit.Unlock()

	if s.cfg.SingleActivePerSession {
		active, err := s.store.FindActiveBySession(ctx, req.SessionID)
		switch {
		case err == nil:
			return nil, appErrors.Clone(appErrors.ErrConflict, "session already has an active job "+active.ID)
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to check active jobs")
		}
	}

	job := &models.TimetableJob{
		SessionID:       req.SessionID,
		ConfigurationID: req.ConfigurationID,
		Status:          models.JobStatusQueued,
		CreatedBy:       req.CreatedBy,
	}
	if err := s.store.Create(ctx, job); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to create timetable job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: TimetableJobType}); err != nil {
		phase := models.PhaseFailed
		code := appErrors.CodePersistence
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		if updateErr := s.store.Transition(ctx, job.ID, models.JobStatusFailed, repository.JobUpdate{
			Phase:        &phase,
			FailureCode:  &code,
			ErrorMessage: &msg,
			CompletedAt:  &now,
		}); updateErr != nil {
			s.logger.Sugar().Warnw("failed to mark unqueued job failed", "job_id", job.ID, "error", updateErr)
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to enqueue timetable job")
	}

	s.hub.Publish(job.ID, models.ProgressEvent{Status: models.JobStatusQueued, Message: "job queued"})
	s.logger.With(logger.Correlation(ctx)...).Sugar().Infow("timetable job queued", "job_id", job.ID, "session_id", job.SessionID, "status", job.Status)
	return job, nil
}

// GetJob returns a job by id.
func (s *TimetableJobService) GetJob(ctx context.Context, id string) (*models.TimetableJob, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable job not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load timetable job")
	}
	return job, nil
}

// ListJobs returns the jobs of a session, newest first.
func (s *TimetableJobService) ListJobs(ctx context.Context, sessionID string) ([]models.TimetableJob, error) {
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session id is required")
	}
	list, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list timetable jobs")
	}
	return list, nil
}

// CancelJob requests cancellation. Queued jobs are cancelled at once; running
// jobs stop at their next phase boundary or GA generation.
func (s *TimetableJobService) CancelJob(ctx context.Context, id string) (*models.TimetableJob, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "job already "+string(job.Status))
	}
	if err := s.store.RequestCancel(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStaleJob) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "job already finished")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to request cancellation")
	}

	if job.Status == models.JobStatusQueued {
		phase := models.PhaseCancelled
		reason := "cancelled by request"
		now := time.Now().UTC()
		err := s.store.Transition(ctx, id, models.JobStatusCancelled, repository.JobUpdate{
			Phase:        &phase,
			ErrorMessage: &reason,
			CompletedAt:  &now,
		})
		switch {
		case err == nil:
			s.hub.Publish(id, models.ProgressEvent{Status: models.JobStatusCancelled, Phase: phase, Progress: 100, Message: reason})
		case !errors.Is(err, repository.ErrStaleJob):
			return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to cancel queued job")
		}
	}
	running := s.queue.Cancel(id)
	s.logger.With(logger.Correlation(ctx)...).Sugar().Infow("timetable job cancellation requested", "job_id", id, "session_id", job.SessionID, "status", job.Status, "running", running)
	return s.GetJob(ctx, id)
}

// RecoverPendingJobs re-enqueues jobs left behind by a previous process.
// Jobs still marked running are handed back to the queue first.
func (s *TimetableJobService) RecoverPendingJobs(ctx context.Context) {
	orphans, err := s.store.ListByStatus(ctx, []models.JobStatus{models.JobStatusRunning}, s.cfg.RecoveryLimit)
	if err != nil {
		s.logger.Sugar().Warnw("failed to list running timetable jobs", "error", err)
	}
	for _, job := range orphans {
		phase := models.PhasePreparing
		progress := 0
		reason := "recovered after restart"
		if err := s.store.Transition(ctx, job.ID, models.JobStatusQueued, repository.JobUpdate{
			Phase:        &phase,
			Progress:     &progress,
			ErrorMessage: &reason,
		}); err != nil {
			s.logger.Sugar().Warnw("failed to reset orphaned job", "job_id", job.ID, "error", err)
		}
	}

	pending, err := s.store.ListByStatus(ctx, []models.JobStatus{models.JobStatusQueued}, s.cfg.RecoveryLimit)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued timetable jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: TimetableJobType, Attempt: job.Attempt}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
	if len(pending) > 0 {
		s.logger.Sugar().Infow("recovered timetable jobs", "count", len(pending))
	}
}

// Subscribe streams progress of a job. The stream starts with the job's
// current state even when this process never saw an event for it.
func (s *TimetableJobService) Subscribe(ctx context.Context, jobID string) (<-chan models.ProgressEvent, func(), error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := s.hub.Last(jobID); !ok {
		ev := models.ProgressEvent{
			JobID:    job.ID,
			Status:   job.Status,
			Phase:    job.Phase,
			Progress: job.Progress,
			At:       job.UpdatedAt,
		}
		if job.ErrorMessage != nil {
			ev.Message = *job.ErrorMessage
		}
		s.hub.deliver(ev)
	}
	ch, cancel := s.hub.Subscribe(jobID)
	return ch, cancel, nil
}
