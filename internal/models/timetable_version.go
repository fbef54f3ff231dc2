package models

import "time"

// VersionSource records what produced a timetable version.
type VersionSource string

const (
	VersionSourceSolver     VersionSource = "solver"
	VersionSourceManualEdit VersionSource = "manual_edit"
)

// TimetableVersion is an immutable snapshot of a solution tied to a job.
type TimetableVersion struct {
	ID              string        `db:"id" json:"id"`
	JobID           string        `db:"job_id" json:"job_id"`
	SessionID       string        `db:"session_id" json:"session_id"`
	Version         int           `db:"version" json:"version"`
	Active          bool          `db:"active" json:"active"`
	Source          VersionSource `db:"source" json:"source"`
	ParentVersionID *string       `db:"parent_version_id" json:"parent_version_id,omitempty"`
	Solution        Solution      `db:"solution" json:"solution"`
	CreatedBy       string        `db:"created_by" json:"created_by"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

// TimetableVersionMeta is the list-view projection without the solution blob.
type TimetableVersionMeta struct {
	ID        string        `db:"id" json:"id"`
	JobID     string        `db:"job_id" json:"job_id"`
	Version   int           `db:"version" json:"version"`
	Active    bool          `db:"active" json:"active"`
	Source    VersionSource `db:"source" json:"source"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
