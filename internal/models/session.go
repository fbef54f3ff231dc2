package models

import (
	"time"
)

// SessionStatus tracks the lifecycle of an exam period.
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "DRAFT"
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusPublished SessionStatus = "PUBLISHED"
	SessionStatusArchived  SessionStatus = "ARCHIVED"
)

// Session is an exam period owning its exams.
type Session struct {
	ID        string        `db:"id" json:"id" csv:"id"`
	Name      string        `db:"name" json:"name" csv:"name"`
	StartDate time.Time     `db:"start_date" json:"start_date" csv:"-"`
	EndDate   time.Time     `db:"end_date" json:"end_date" csv:"-"`
	Status    SessionStatus `db:"status" json:"status" csv:"status"`
}

// RegistrationKind distinguishes first attempts from carry-over registrations.
type RegistrationKind string

const (
	RegistrationNormal    RegistrationKind = "normal"
	RegistrationCarryover RegistrationKind = "carryover"
)

// Registration links a student to an exam.
type Registration struct {
	ExamID    string           `db:"exam_id" json:"exam_id" csv:"exam_id"`
	StudentID string           `db:"student_id" json:"student_id" csv:"student_id"`
	Kind      RegistrationKind `db:"kind" json:"kind" csv:"kind"`
}

// Exam is a single sitting of a course within a session.
type Exam struct {
	ID                    string                      `db:"id" json:"id"`
	SessionID             string                      `db:"session_id" json:"session_id"`
	CourseID              string                      `db:"course_id" json:"course_id"`
	CourseCode            string                      `db:"course_code" json:"course_code"`
	DurationMinutes       int                         `db:"duration_minutes" json:"duration_minutes"`
	ExpectedCount         int                         `db:"expected_count" json:"expected_count"`
	MorningOnly           bool                        `db:"morning_only" json:"morning_only"`
	RequiresComputers     bool                        `db:"requires_computers" json:"requires_computers"`
	RequiresProjector     bool                        `db:"requires_projector" json:"requires_projector"`
	RequiresAccessibility bool                        `db:"requires_accessibility" json:"requires_accessibility"`
	AllowSplit            bool                        `db:"allow_split" json:"allow_split"`
	InstructorIDs         []string                    `db:"-" json:"instructor_ids,omitempty"`
	FallbackRoomIDs       []string                    `db:"-" json:"fallback_room_ids,omitempty"`
	PreferredSlotIDs      []string                    `db:"-" json:"preferred_slot_ids,omitempty"`
	Registrations         map[string]RegistrationKind `db:"-" json:"registrations,omitempty"`
}

// Room is an examination venue.
type Room struct {
	ID           string `db:"id" json:"id" csv:"id"`
	Code         string `db:"code" json:"code" csv:"code"`
	Capacity     int    `db:"capacity" json:"capacity" csv:"capacity"`
	ExamCapacity int    `db:"exam_capacity" json:"exam_capacity" csv:"exam_capacity"`
	HasComputers bool   `db:"has_computers" json:"has_computers" csv:"has_computers"`
	HasProjector bool   `db:"has_projector" json:"has_projector" csv:"has_projector"`
	Accessible   bool   `db:"accessible" json:"accessible" csv:"accessible"`
	Building     string `db:"building" json:"building" csv:"building"`
	Floor        int    `db:"floor" json:"floor" csv:"floor"`
	Active       bool   `db:"active" json:"active" csv:"active"`
}

// EffectiveCapacity returns the usable exam seats after reserving bufferPercent.
func (r Room) EffectiveCapacity(bufferPercent int) int {
	seats := r.ExamCapacity
	if seats <= 0 {
		seats = r.Capacity
	}
	if bufferPercent > 0 {
		seats -= seats * bufferPercent / 100
	}
	if seats < 0 {
		return 0
	}
	return seats
}

// TimeSlot is one period within an exam day.
type TimeSlot struct {
	ID              string    `db:"id" json:"id"`
	Date            time.Time `db:"date" json:"date"`
	Index           int       `db:"slot_index" json:"index"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Active          bool      `db:"active" json:"active"`
}

// Morning reports whether the slot starts before noon.
func (s TimeSlot) Morning() bool {
	return s.StartTime != "" && s.StartTime < "12:00"
}

// Day owns an ordered sequence of time slots.
type Day struct {
	Date  time.Time  `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

// Student is a candidate sitting exams.
type Student struct {
	ID           string `db:"id" json:"id" csv:"id"`
	MatricNumber string `db:"matric_number" json:"matric_number" csv:"matric_number"`
	Level        int    `db:"level" json:"level" csv:"level"`
}

// StaffUnavailability blocks a staff member for one slot of one date.
type StaffUnavailability struct {
	StaffID string    `db:"staff_id" json:"staff_id"`
	Date    time.Time `db:"date" json:"date"`
	SlotID  string    `db:"slot_id" json:"slot_id"`
}

// Staff is a potential invigilator.
type Staff struct {
	ID                string                `db:"id" json:"id"`
	Name              string                `db:"name" json:"name"`
	Department        string                `db:"department" json:"department"`
	MaxSessionsPerDay int                   `db:"max_sessions_per_day" json:"max_sessions_per_day"`
	MaxConsecutive    int                   `db:"max_consecutive" json:"max_consecutive"`
	CanInvigilate     bool                  `db:"can_invigilate" json:"can_invigilate"`
	CanBeChief        bool                  `db:"can_be_chief" json:"can_be_chief"`
	Unavailable       []StaffUnavailability `db:"-" json:"unavailable,omitempty"`
}
