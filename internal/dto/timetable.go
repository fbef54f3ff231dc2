package dto

import "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"

// StartJobRequest starts an optimization run for a session.
type StartJobRequest struct {
	SessionID       string `json:"session_id" validate:"required"`
	ConfigurationID string `json:"configuration_id" validate:"omitempty,max=128"`
	CreatedBy       string `json:"-"`
}

// ManualEditRequest changes the assignment of one exam in a published version.
type ManualEditRequest struct {
	Kind      string         `json:"kind" validate:"required,oneof=time room staff combined"`
	ExamID    string         `json:"exam_id" validate:"required"`
	SlotID    string         `json:"slot_id" validate:"omitempty"`
	RoomIDs   []string       `json:"room_ids" validate:"omitempty,dive,required"`
	RoomSeats map[string]int `json:"room_seats" validate:"omitempty,dive,min=0"`
	StaffIDs  []string       `json:"staff_ids" validate:"omitempty,dive,required"`
	Reason    string         `json:"reason" validate:"omitempty,max=500"`
}

// JobResponse is the API projection of a job.
type JobResponse struct {
	models.TimetableJob
	Terminal bool `json:"terminal"`
}

// ManualEditResponse reports an applied edit.
type ManualEditResponse struct {
	Version           models.TimetableVersionMeta `json:"version"`
	ResolvedConflicts []models.Conflict           `json:"resolved_conflicts"`
	Impact            models.ImpactSummary        `json:"impact"`
	Diffs             []models.AssignmentDiff     `json:"diffs"`
}

// InvalidateResponse confirms a cache invalidation.
type InvalidateResponse struct {
	SessionID   string `json:"session_id"`
	Invalidated bool   `json:"invalidated"`
}
