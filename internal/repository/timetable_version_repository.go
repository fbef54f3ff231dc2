package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// ErrStaleVersion is returned when the version an edit was based on is no
// longer the active one.
var ErrStaleVersion = errors.New("active version changed concurrently")

const timetableVersionColumns = `id, job_id, session_id, version, active, source, parent_version_id, solution, created_by, created_at`

// TimetableVersionRepository persists versioned timetable solutions.
type TimetableVersionRepository struct {
	db *sqlx.DB
}

// NewTimetableVersionRepository constructs the repository.
func NewTimetableVersionRepository(db *sqlx.DB) *TimetableVersionRepository {
	return &TimetableVersionRepository{db: db}
}

func (r *TimetableVersionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Publish inserts version as the active version of its job, assigning the next
// version number and deactivating the previous active row. When replaces is
// set, that version must still be active or ErrStaleVersion is returned.
func (r *TimetableVersionRepository) Publish(ctx context.Context, exec sqlx.ExtContext, version *models.TimetableVersion, replaces string) error {
	if version == nil {
		return fmt.Errorf("version payload is nil")
	}
	if version.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	if version.Source == "" {
		version.Source = models.VersionSourceSolver
	}
	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}
	version.Active = true

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_versions WHERE job_id = $1`
	if err := sqlx.GetContext(ctx, target, &version.Version, nextVersionQuery, version.JobID); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	if replaces != "" {
		const query = `UPDATE timetable_versions SET active = FALSE WHERE id = $1 AND job_id = $2 AND active = TRUE`
		result, err := target.ExecContext(ctx, query, replaces, version.JobID)
		if err != nil {
			return fmt.Errorf("deactivate timetable version: %w", err)
		}
		if err := requireAffected(result, "deactivate timetable version", ErrStaleVersion); err != nil {
			return err
		}
	} else {
		const query = `UPDATE timetable_versions SET active = FALSE WHERE job_id = $1 AND active = TRUE`
		if _, err := target.ExecContext(ctx, query, version.JobID); err != nil {
			return fmt.Errorf("deactivate timetable versions: %w", err)
		}
	}

	const insertQuery = `
INSERT INTO timetable_versions (id, job_id, session_id, version, active, source, parent_version_id, solution, created_by, created_at)
VALUES (:id, :job_id, :session_id, :version, :active, :source, :parent_version_id, :solution, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, version); err != nil {
		return fmt.Errorf("insert timetable version: %w", err)
	}
	return nil
}

// PublishEdit stores a manual edit as the new active version in one
// transaction, replacing its parent.
func (r *TimetableVersionRepository) PublishEdit(ctx context.Context, version *models.TimetableVersion) (err error) {
	if version == nil || version.ParentVersionID == nil {
		return fmt.Errorf("edit version needs a parent")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin timetable version tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	version.Source = models.VersionSourceManualEdit
	if err = r.Publish(ctx, tx, version, *version.ParentVersionID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit timetable version: %w", err)
	}
	return nil
}

// GetByID loads a version with its solution.
func (r *TimetableVersionRepository) GetByID(ctx context.Context, id string) (*models.TimetableVersion, error) {
	query := `SELECT ` + timetableVersionColumns + ` FROM timetable_versions WHERE id = $1`
	var version models.TimetableVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// GetActiveByJob loads the active version of a job.
func (r *TimetableVersionRepository) GetActiveByJob(ctx context.Context, jobID string) (*models.TimetableVersion, error) {
	query := `SELECT ` + timetableVersionColumns + ` FROM timetable_versions WHERE job_id = $1 AND active = TRUE`
	var version models.TimetableVersion
	if err := r.db.GetContext(ctx, &version, query, jobID); err != nil {
		return nil, err
	}
	return &version, nil
}

// ListByJob returns the version history of a job without solutions, newest first.
func (r *TimetableVersionRepository) ListByJob(ctx context.Context, jobID string) ([]models.TimetableVersionMeta, error) {
	const query = `SELECT id, job_id, version, active, source, created_at FROM timetable_versions WHERE job_id = $1 ORDER BY version DESC`
	var versions []models.TimetableVersionMeta
	if err := r.db.SelectContext(ctx, &versions, query, jobID); err != nil {
		return nil, fmt.Errorf("list timetable versions: %w", err)
	}
	return versions, nil
}
