package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus captures the lifecycle of an optimization run.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// jobTransitions lists legal status moves. Running jobs may be requeued when a
// transient failure hands them back to the task runner.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusQueued},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SourceStatuses returns the statuses from which target can be reached.
func SourceStatuses(target JobStatus) []JobStatus {
	var from []JobStatus
	for _, status := range []JobStatus{JobStatusQueued, JobStatusRunning} {
		if CanTransition(status, target) {
			from = append(from, status)
		}
	}
	return from
}

// JobPhase is the coordinator state machine label.
type JobPhase string

const (
	PhasePreparing  JobPhase = "preparing"
	PhasePhase1     JobPhase = "phase1_solving"
	PhasePhase2     JobPhase = "phase2_solving"
	PhaseGARefining JobPhase = "ga_refining"
	PhaseValidating JobPhase = "validating"
	PhaseCompleted  JobPhase = "completed"
	PhaseFailed     JobPhase = "failed"
	PhaseCancelled  JobPhase = "cancelled"
)

// TimetableJob is one optimization attempt for a session.
type TimetableJob struct {
	ID              string     `db:"id" json:"id"`
	SessionID       string     `db:"session_id" json:"session_id"`
	ConfigurationID string     `db:"configuration_id" json:"configuration_id"`
	Status          JobStatus  `db:"status" json:"status"`
	Phase           JobPhase   `db:"phase" json:"phase"`
	Progress        int        `db:"progress" json:"progress"`
	FailureCode     *string    `db:"failure_code" json:"failure_code,omitempty"`
	ErrorMessage    *string    `db:"error_message" json:"error_message,omitempty"`
	CancelRequested bool       `db:"cancel_requested" json:"cancel_requested"`
	Attempt         int        `db:"attempt" json:"attempt"`
	Result          JobResult  `db:"result" json:"result"`
	CreatedBy       string     `db:"created_by" json:"created_by"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	StartedAt       *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// SolveStats summarises one solver call.
type SolveStats struct {
	Status      SolverStatus `json:"status"`
	Objective   float64      `json:"objective"`
	WallTimeMs  int64        `json:"wall_time_ms"`
	Branches    int64        `json:"branches"`
	Conflicts   int64        `json:"conflicts"`
	Variables   int          `json:"variables"`
	Constraints int          `json:"constraints"`
}

// GeneticStats summarises the refinement pass.
type GeneticStats struct {
	Ran            bool    `json:"ran"`
	Generations    int     `json:"generations"`
	InitialFitness float64 `json:"initial_fitness"`
	BestFitness    float64 `json:"best_fitness"`
	Applied        bool    `json:"applied"`
	Error          string  `json:"error,omitempty"`
}

// JobResult is the opaque structured blob stored with a job.
type JobResult struct {
	VersionID    string            `json:"version_id,omitempty"`
	Metrics      *SolutionMetrics  `json:"metrics,omitempty"`
	Phase1       *SolveStats       `json:"phase1,omitempty"`
	Phase2       []SolveStats      `json:"phase2,omitempty"`
	Genetic      *GeneticStats     `json:"genetic,omitempty"`
	RuleCounts   map[string]int    `json:"rule_counts,omitempty"`
	TrimmedRules map[string]int    `json:"trimmed_rules,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// Value marshals the result to JSON for persistence.
func (r JobResult) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal job result: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the result.
func (r *JobResult) Scan(value interface{}) error {
	if value == nil {
		*r = JobResult{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for JobResult", value)
	}
	if len(data) == 0 {
		*r = JobResult{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal job result: %w", err)
	}
	return nil
}
