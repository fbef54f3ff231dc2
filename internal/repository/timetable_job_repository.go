package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// ErrStaleJob is returned when a conditional job update matched no row because
// the job moved to another status first.
var ErrStaleJob = errors.New("job status changed concurrently")

const timetableJobColumns = `id, session_id, configuration_id, status, phase, progress, failure_code, error_message,
cancel_requested, attempt, result, created_by, created_at, started_at, completed_at, updated_at`

// TimetableJobRepository persists optimization jobs.
type TimetableJobRepository struct {
	db *sqlx.DB
}

// NewTimetableJobRepository constructs the repository.
func NewTimetableJobRepository(db *sqlx.DB) *TimetableJobRepository {
	return &TimetableJobRepository{db: db}
}

func (r *TimetableJobRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a queued job with generated defaults.
func (r *TimetableJobRepository) Create(ctx context.Context, job *models.TimetableJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	const query = `INSERT INTO timetable_jobs (id, session_id, configuration_id, status, phase, progress, failure_code, error_message, cancel_requested, attempt, result, created_by, created_at, started_at, completed_at, updated_at)
VALUES (:id, :session_id, :configuration_id, :status, :phase, :progress, :failure_code, :error_message, :cancel_requested, :attempt, :result, :created_by, :created_at, :started_at, :completed_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create timetable job: %w", err)
	}
	return nil
}

// GetByID returns a job row by its identifier.
func (r *TimetableJobRepository) GetByID(ctx context.Context, id string) (*models.TimetableJob, error) {
	query := `SELECT ` + timetableJobColumns + ` FROM timetable_jobs WHERE id = $1`
	var job models.TimetableJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListBySession returns the jobs of a session, newest first.
func (r *TimetableJobRepository) ListBySession(ctx context.Context, sessionID string) ([]models.TimetableJob, error) {
	query := `SELECT ` + timetableJobColumns + ` FROM timetable_jobs WHERE session_id = $1 ORDER BY created_at DESC`
	var jobs []models.TimetableJob
	if err := r.db.SelectContext(ctx, &jobs, query, sessionID); err != nil {
		return nil, fmt.Errorf("list timetable jobs: %w", err)
	}
	return jobs, nil
}

// ListByStatus fetches jobs in any of statuses, oldest first. Used for cold
// start recovery.
func (r *TimetableJobRepository) ListByStatus(ctx context.Context, statuses []models.JobStatus, limit int) ([]models.TimetableJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + timetableJobColumns + ` FROM timetable_jobs WHERE status = ANY($1) ORDER BY created_at ASC LIMIT $2`
	var jobs []models.TimetableJob
	if err := r.db.SelectContext(ctx, &jobs, query, statusArray(statuses), limit); err != nil {
		return nil, fmt.Errorf("list timetable jobs by status: %w", err)
	}
	return jobs, nil
}

// FindActiveBySession returns the newest queued or running job of a session.
func (r *TimetableJobRepository) FindActiveBySession(ctx context.Context, sessionID string) (*models.TimetableJob, error) {
	query := `SELECT ` + timetableJobColumns + ` FROM timetable_jobs WHERE session_id = $1 AND status = ANY($2) ORDER BY created_at DESC LIMIT 1`
	var job models.TimetableJob
	active := []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning}
	if err := r.db.GetContext(ctx, &job, query, sessionID, statusArray(active)); err != nil {
		return nil, err
	}
	return &job, nil
}

// JobUpdate carries the optional fields written with a status transition.
type JobUpdate struct {
	Phase        *models.JobPhase
	Progress     *int
	FailureCode  *string
	ErrorMessage *string
	Result       *models.JobResult
	Attempt      *int
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Transition moves a job to status to, but only from a status allowed to
// reach it. ErrStaleJob is returned when no row matched.
func (r *TimetableJobRepository) Transition(ctx context.Context, id string, to models.JobStatus, update JobUpdate) error {
	return r.TransitionTx(ctx, nil, id, to, update)
}

// TransitionTx is Transition running on exec, usually a transaction.
func (r *TimetableJobRepository) TransitionTx(ctx context.Context, exec sqlx.ExtContext, id string, to models.JobStatus, update JobUpdate) error {
	from := models.SourceStatuses(to)
	if len(from) == 0 {
		return fmt.Errorf("no transition leads to %s", to)
	}

	set := []string{"status = $1", "updated_at = $2"}
	args := []interface{}{to, time.Now().UTC()}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Phase != nil {
		add("phase", *update.Phase)
	}
	if update.Progress != nil {
		add("progress", *update.Progress)
	}
	if update.FailureCode != nil {
		add("failure_code", *update.FailureCode)
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.Result != nil {
		add("result", *update.Result)
	}
	if update.Attempt != nil {
		add("attempt", *update.Attempt)
	}
	if update.StartedAt != nil {
		add("started_at", *update.StartedAt)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}

	query := fmt.Sprintf("UPDATE timetable_jobs SET %s WHERE id = $%d AND status = ANY($%d)",
		strings.Join(set, ", "), len(args)+1, len(args)+2)
	args = append(args, id, statusArray(from))

	result, err := r.exec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition timetable job: %w", err)
	}
	return requireAffected(result, "transition timetable job", ErrStaleJob)
}

// UpdateProgress records the phase and progress of a running job. Progress
// never moves backwards.
func (r *TimetableJobRepository) UpdateProgress(ctx context.Context, id string, phase models.JobPhase, progress int) error {
	const query = `UPDATE timetable_jobs SET phase = $1, progress = GREATEST(progress, $2), updated_at = $3 WHERE id = $4 AND status = 'running'`
	result, err := r.db.ExecContext(ctx, query, phase, progress, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update timetable job progress: %w", err)
	}
	return requireAffected(result, "update timetable job progress", ErrStaleJob)
}

// RequestCancel flags a queued or running job for cancellation.
func (r *TimetableJobRepository) RequestCancel(ctx context.Context, id string) error {
	const query = `UPDATE timetable_jobs SET cancel_requested = TRUE, updated_at = $1 WHERE id = $2 AND status = ANY($3)`
	active := []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning}
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, statusArray(active))
	if err != nil {
		return fmt.Errorf("request timetable job cancel: %w", err)
	}
	return requireAffected(result, "request timetable job cancel", ErrStaleJob)
}

func statusArray(statuses []models.JobStatus) interface{} {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	return pq.Array(values)
}

func requireAffected(result sql.Result, op string, stale error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return stale
	}
	return nil
}
