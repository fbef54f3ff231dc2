package models

// ConflictType names a rule broken by a proposed timetable state.
type ConflictType string

const (
	ConflictStudent           ConflictType = "student_conflict"
	ConflictRoomDoubleBooking ConflictType = "room_double_booking"
	ConflictStaffDoubleBooked ConflictType = "invigilator_double_booking"
	ConflictCapacity          ConflictType = "capacity_violation"
)

// Conflict describes one collision between the edited exam and the rest of the timetable.
type Conflict struct {
	Type        ConflictType `json:"type"`
	ExamID      string       `json:"exam_id"`
	OtherExamID string       `json:"other_exam_id,omitempty"`
	SlotID      string       `json:"slot_id,omitempty"`
	RoomID      string       `json:"room_id,omitempty"`
	StaffID     string       `json:"staff_id,omitempty"`
	StudentIDs  []string     `json:"student_ids,omitempty"`
	Message     string       `json:"message"`
	Resolved    bool         `json:"resolved"`
	Resolution  string       `json:"resolution,omitempty"`
}

// SuggestionAction enumerates the remedies offered for rejected edits.
type SuggestionAction string

const (
	SuggestReschedule       SuggestionAction = "reschedule_one_exam"
	SuggestDifferentRoom    SuggestionAction = "choose_different_room"
	SuggestLargerRoom       SuggestionAction = "use_larger_room"
	SuggestDifferentInvigil SuggestionAction = "choose_different_invigilator"
)

// Suggestion is an actionable remedy for an unresolved conflict.
type Suggestion struct {
	Action   SuggestionAction `json:"action"`
	ExamID   string           `json:"exam_id"`
	SlotIDs  []string         `json:"slot_ids,omitempty"`
	RoomIDs  []string         `json:"room_ids,omitempty"`
	StaffIDs []string         `json:"staff_ids,omitempty"`
	Reason   string           `json:"reason"`
}

// AssignmentDiff records one field changed between two timetable states.
type AssignmentDiff struct {
	ExamID string `json:"exam_id"`
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// ImpactSummary counts the exams touched by an edit.
type ImpactSummary struct {
	Direct       int      `json:"direct"`
	Indirect     int      `json:"indirect"`
	Total        int      `json:"total"`
	MovedExamIDs []string `json:"moved_exam_ids,omitempty"`
}

// EditRejectedError is returned when an edit is invalid or leaves conflicts
// that could not be repaired.
type EditRejectedError struct {
	Type             string       `json:"type"`
	Message          string       `json:"message"`
	Conflicts        []Conflict   `json:"conflicts,omitempty"`
	Suggestions      []Suggestion `json:"suggestions,omitempty"`
	ValidationErrors []string     `json:"validation_errors,omitempty"`
}

// Error implements the error interface for rejected edits.
func (e *EditRejectedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
