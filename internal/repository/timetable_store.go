package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// TimetableStore groups writes that span jobs and versions.
type TimetableStore struct {
	db       *sqlx.DB
	jobs     *TimetableJobRepository
	versions *TimetableVersionRepository
}

// NewTimetableStore constructs the store over the shared repositories.
func NewTimetableStore(db *sqlx.DB, jobs *TimetableJobRepository, versions *TimetableVersionRepository) *TimetableStore {
	return &TimetableStore{db: db, jobs: jobs, versions: versions}
}

// CompleteJob publishes version as the job's active version and marks the job
// completed with result, in one transaction.
func (s *TimetableStore) CompleteJob(ctx context.Context, jobID string, version *models.TimetableVersion, result models.JobResult) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin complete job tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	version.JobID = jobID
	if err = s.versions.Publish(ctx, tx, version, ""); err != nil {
		return err
	}

	result.VersionID = version.ID
	phase := models.PhaseCompleted
	progress := 100
	now := time.Now().UTC()
	if err = s.jobs.TransitionTx(ctx, tx, jobID, models.JobStatusCompleted, JobUpdate{
		Phase:       &phase,
		Progress:    &progress,
		Result:      &result,
		CompletedAt: &now,
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit complete job: %w", err)
	}
	return nil
}
