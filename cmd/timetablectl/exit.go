package main

import (
	"context"
	"errors"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	appErrors "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/errors"
)

// Process exit codes. They mirror the job status taxonomy.
const (
	exitOK        = 0
	exitOther     = 1
	exitFailed    = 2
	exitCancelled = 3
	exitRejected  = 4
	exitTimeout   = 5
)

// exitForJob maps a job to an exit code. Non-terminal jobs exit 0.
func exitForJob(job *models.TimetableJob) int {
	switch job.Status {
	case models.JobStatusFailed:
		if job.FailureCode != nil && *job.FailureCode == appErrors.CodeSolverTimeout {
			return exitTimeout
		}
		return exitFailed
	case models.JobStatusCancelled:
		return exitCancelled
	default:
		return exitOK
	}
}

func exitForError(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.Is(err, context.DeadlineExceeded), appErrors.IsCode(err, appErrors.CodeSolverTimeout):
		return exitTimeout
	case appErrors.IsCode(err, appErrors.CodeValidation),
		appErrors.IsCode(err, appErrors.ErrConflict.Code),
		appErrors.IsCode(err, appErrors.CodeConflictUnresolvable):
		return exitRejected
	default:
		return exitOther
	}
}
