package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

func testSolution() models.Solution {
	sol := models.NewSolution(models.SolverOptimal)
	sol.Assignments["exam-a"] = models.ExamAssignment{
		ExamID:      "exam-a",
		StartSlotID: "day1-slot1",
		SlotIDs:     []string{"day1-slot1"},
		RoomIDs:     []string{"room-1"},
		RoomSeats:   map[string]int{"room-1": 30},
	}
	return sol
}

func TestTimetableVersionRepositoryPublish(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableVersionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_versions WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_versions SET active = FALSE WHERE job_id = $1 AND active = TRUE")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_versions")).
		WithArgs(sqlmock.AnyArg(), "job-1", "session-1", 1, true, "solver", nil, sqlmock.AnyArg(), "system", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	version := &models.TimetableVersion{JobID: "job-1", SessionID: "session-1", Solution: testSolution(), CreatedBy: "system"}
	require.NoError(t, repo.Publish(context.Background(), nil, version, ""))
	assert.Equal(t, 1, version.Version)
	assert.True(t, version.Active)
	assert.NotEmpty(t, version.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableVersionRepositoryPublishEdit(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_versions WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_versions SET active = FALSE WHERE id = $1 AND job_id = $2 AND active = TRUE")).
		WithArgs("ver-2", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_versions")).
		WithArgs(sqlmock.AnyArg(), "job-1", "session-1", 3, true, "manual_edit", "ver-2", sqlmock.AnyArg(), "editor", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	parent := "ver-2"
	version := &models.TimetableVersion{JobID: "job-1", SessionID: "session-1", ParentVersionID: &parent, Solution: testSolution(), CreatedBy: "editor"}
	require.NoError(t, repo.PublishEdit(context.Background(), version))
	assert.Equal(t, 3, version.Version)
	assert.Equal(t, models.VersionSourceManualEdit, version.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableVersionRepositoryPublishEditStaleParent(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableVersionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_versions SET active = FALSE WHERE id = $1")).
		WithArgs("ver-1", "job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	parent := "ver-1"
	version := &models.TimetableVersion{JobID: "job-1", ParentVersionID: &parent, Solution: testSolution()}
	err := repo.PublishEdit(context.Background(), version)
	assert.ErrorIs(t, err, ErrStaleVersion)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableVersionRepositoryGetActiveByJob(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableVersionRepository(db)

	raw, err := testSolution().Value()
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"id", "job_id", "session_id", "version", "active", "source", "parent_version_id", "solution", "created_by", "created_at"}).
		AddRow("ver-1", "job-1", "session-1", 1, true, "solver", nil, raw, "system", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_versions WHERE job_id = $1 AND active = TRUE")).
		WithArgs("job-1").
		WillReturnRows(rows)

	version, err := repo.GetActiveByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "day1-slot1", version.Solution.Assignments["exam-a"].StartSlotID)
	assert.Nil(t, version.ParentVersionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableStoreCompleteJob(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	store := NewTimetableStore(db, NewTimetableJobRepository(db), NewTimetableVersionRepository(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_versions SET active = FALSE WHERE job_id = $1")).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_jobs SET status = $1, updated_at = $2, phase = $3, progress = $4, result = $5, completed_at = $6 WHERE id = $7 AND status = ANY($8)")).
		WithArgs("completed", sqlmock.AnyArg(), "completed", 100, sqlmock.AnyArg(), sqlmock.AnyArg(), "job-1", pq.Array([]string{"running"})).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	version := &models.TimetableVersion{SessionID: "session-1", Solution: testSolution()}
	require.NoError(t, store.CompleteJob(context.Background(), "job-1", version, models.JobResult{}))
	assert.Equal(t, "job-1", version.JobID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableStoreCompleteJobRollsBackWhenJobMoved(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	store := NewTimetableStore(db, NewTimetableJobRepository(db), NewTimetableVersionRepository(db))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_versions SET active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_versions")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_jobs SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.CompleteJob(context.Background(), "job-1", &models.TimetableVersion{Solution: testSolution()}, models.JobResult{})
	assert.ErrorIs(t, err, ErrStaleJob)
	require.NoError(t, mock.ExpectationsWereMet())
}
