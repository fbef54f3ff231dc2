package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/dto"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/incremental"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/repository"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/logger"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/tracing"
)

type timetableVersionStore interface {
	GetByID(ctx context.Context, id string) (*models.TimetableVersion, error)
	GetActiveByJob(ctx context.Context, jobID string) (*models.TimetableVersion, error)
	ListByJob(ctx context.Context, jobID string) ([]models.TimetableVersionMeta, error)
	PublishEdit(ctx context.Context, version *models.TimetableVersion) error
}

// TimetableEditService applies manual edits to published timetables.
type TimetableEditService struct {
	versions  timetableVersionStore
	problems  problemSource
	validator *validator.Validate
	opts      incremental.Options
	metrics   *MetricsService
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTimetableEditService constructs the service.
func NewTimetableEditService(versions timetableVersionStore, problems problemSource, validate *validator.Validate, opts incremental.Options, metrics *MetricsService, logger *zap.Logger) *TimetableEditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TimetableEditService{
		versions:  versions,
		problems:  problems,
		validator: validate,
		opts:      opts,
		metrics:   metrics,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// jobLock serializes edits within one job lineage.
func (s *TimetableEditService) jobLock(jobID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[jobID] = l
	}
	return l
}

// GetVersion returns a version with its solution.
func (s *TimetableEditService) GetVersion(ctx context.Context, id string) (*models.TimetableVersion, error) {
	version, err := s.versions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable version not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load timetable version")
	}
	return version, nil
}

// ListVersions lists the versions of a job, newest first.
func (s *TimetableEditService) ListVersions(ctx context.Context, jobID string) ([]models.TimetableVersionMeta, error) {
	list, err := s.versions.ListByJob(ctx, jobID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list timetable versions")
	}
	return list, nil
}

// ApplyEdit applies req to the version identified by versionID, which must be
// the active version of its job, and publishes the result as a new version.
func (s *TimetableEditService) ApplyEdit(ctx context.Context, versionID string, req dto.ManualEditRequest, actorID string) (*dto.ManualEditResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit payload")
	}
	ctx, span := tracing.StartSpan(ctx, "timetable.edit", "version.id", versionID, "exam.id", req.ExamID)
	defer span.End()

	version, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	lock := s.jobLock(version.JobID)
	lock.Lock()
	defer lock.Unlock()

	active, err := s.versions.GetActiveByJob(ctx, version.JobID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load active version")
	}
	if active == nil || active.ID != version.ID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only the active version of a job can be edited")
	}

	p, err := s.problems.Get(ctx, version.SessionID)
	if err != nil {
		return nil, err
	}

	outcome := incremental.New(p, s.opts, s.logger).Apply(version.Solution, incremental.Edit{
		Kind:      incremental.EditKind(req.Kind),
		ExamID:    req.ExamID,
		SlotID:    req.SlotID,
		RoomIDs:   req.RoomIDs,
		RoomSeats: req.RoomSeats,
		StaffIDs:  req.StaffIDs,
		Reason:    req.Reason,
	})

	switch outcome.Status {
	case incremental.OutcomeInvalid:
		rejected := &models.EditRejectedError{
			Type:             "validation",
			Message:          strings.Join(outcome.ValidationErrors, "; "),
			ValidationErrors: outcome.ValidationErrors,
		}
		return nil, appErrors.WrapAs(appErrors.ErrValidation, rejected, "edit failed validation")
	case incremental.OutcomeRejected:
		s.metrics.RecordEdit(false)
		unresolved := lo.Reject(outcome.Conflicts, func(c models.Conflict, _ int) bool { return c.Resolved })
		rejected := &models.EditRejectedError{
			Type:        "conflict_unresolvable",
			Message:     fmt.Sprintf("%d conflict(s) could not be resolved", len(unresolved)),
			Conflicts:   outcome.Conflicts,
			Suggestions: outcome.Suggestions,
		}
		s.logger.With(logger.Correlation(ctx)...).Sugar().Infow("manual edit rejected", "version_id", versionID, "exam_id", req.ExamID, "conflicts", len(unresolved))
		return nil, appErrors.WrapAs(appErrors.ErrConflictUnresolvable, rejected, rejected.Message)
	}

	parent := version.ID
	next := &models.TimetableVersion{
		JobID:           version.JobID,
		SessionID:       version.SessionID,
		Source:          models.VersionSourceManualEdit,
		ParentVersionID: &parent,
		Solution:        outcome.Solution,
		CreatedBy:       actorID,
	}
	if err := s.versions.PublishEdit(ctx, next); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "version was superseded by a concurrent edit")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to publish edited version")
	}
	s.metrics.RecordEdit(true)
	s.logger.With(logger.Correlation(ctx)...).Sugar().Infow("manual edit applied", "job_id", next.JobID, "version_id", next.ID, "parent_version_id", parent,
		"exam_id", req.ExamID, "impact", outcome.Impact.Total)

	return &dto.ManualEditResponse{
		Version: models.TimetableVersionMeta{
			ID:        next.ID,
			JobID:     next.JobID,
			Version:   next.Version,
			Active:    next.Active,
			Source:    next.Source,
			CreatedAt: next.CreatedAt,
		},
		ResolvedConflicts: outcome.Conflicts,
		Impact:            outcome.Impact,
		Diffs:             outcome.Diffs,
	}, nil
}
