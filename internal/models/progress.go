package models

import "time"

// ProgressEvent is one update on the progress channel of a job.
type ProgressEvent struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Phase     JobPhase  `json:"phase"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Objective *float64  `json:"objective,omitempty"`
	Solutions int       `json:"solutions,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	At        time.Time `json:"at"`
}

// Terminal reports whether the event closes the job's stream.
func (e ProgressEvent) Terminal() bool { return e.Status.Terminal() }
