package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

// ExamDataRepository reads the scheduling inputs of a session from Postgres.
type ExamDataRepository struct {
	db *sqlx.DB
}

// NewExamDataRepository constructs the repository.
func NewExamDataRepository(db *sqlx.DB) *ExamDataRepository {
	return &ExamDataRepository{db: db}
}

type examLink struct {
	ExamID string `db:"exam_id" csv:"exam_id"`
	Ref    string `db:"ref" csv:"ref"`
}

// LoadInstance assembles every entity the engine needs for sessionID.
func (r *ExamDataRepository) LoadInstance(ctx context.Context, sessionID string) (*problem.Instance, error) {
	in := &problem.Instance{}

	const sessionQuery = `SELECT id, name, start_date, end_date, status FROM exam_sessions WHERE id = $1`
	if err := r.db.GetContext(ctx, &in.Session, sessionQuery, sessionID); err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	const examQuery = `SELECT id, session_id, course_id, course_code, duration_minutes, expected_count, morning_only,
requires_computers, requires_projector, requires_accessibility, allow_split
FROM exams WHERE session_id = $1 ORDER BY course_code, id`
	if err := r.db.SelectContext(ctx, &in.Exams, examQuery, sessionID); err != nil {
		return nil, fmt.Errorf("load exams: %w", err)
	}

	var registrations []models.Registration
	const registrationQuery = `SELECT r.exam_id, r.student_id, r.kind FROM exam_registrations r
JOIN exams e ON e.id = r.exam_id WHERE e.session_id = $1`
	if err := r.db.SelectContext(ctx, &registrations, registrationQuery, sessionID); err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}

	instructors, err := r.links(ctx, `SELECT i.exam_id, i.staff_id AS ref FROM exam_instructors i
JOIN exams e ON e.id = i.exam_id WHERE e.session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load instructors: %w", err)
	}
	fallbacks, err := r.links(ctx, `SELECT f.exam_id, f.room_id AS ref FROM exam_fallback_rooms f
JOIN exams e ON e.id = f.exam_id WHERE e.session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load fallback rooms: %w", err)
	}
	preferred, err := r.links(ctx, `SELECT p.exam_id, p.slot_id AS ref FROM exam_preferred_slots p
JOIN exams e ON e.id = p.exam_id WHERE e.session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load preferred slots: %w", err)
	}
	attachExamLinks(in.Exams, registrations, instructors, fallbacks, preferred)

	const roomQuery = `SELECT id, code, capacity, exam_capacity, has_computers, has_projector, accessible, building, floor, active
FROM rooms ORDER BY code, id`
	if err := r.db.SelectContext(ctx, &in.Rooms, roomQuery); err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}

	var slots []models.TimeSlot
	const slotQuery = `SELECT id, date, slot_index, start_time, end_time, duration_minutes, active
FROM time_slots WHERE session_id = $1 ORDER BY date, slot_index`
	if err := r.db.SelectContext(ctx, &slots, slotQuery, sessionID); err != nil {
		return nil, fmt.Errorf("load time slots: %w", err)
	}
	in.Days = groupDays(slots)

	const studentQuery = `SELECT DISTINCT s.id, s.matric_number, s.level FROM students s
JOIN exam_registrations r ON r.student_id = s.id
JOIN exams e ON e.id = r.exam_id WHERE e.session_id = $1 ORDER BY s.id`
	if err := r.db.SelectContext(ctx, &in.Students, studentQuery, sessionID); err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}

	const staffQuery = `SELECT id, name, department, max_sessions_per_day, max_consecutive, can_invigilate, can_be_chief
FROM staff ORDER BY id`
	if err := r.db.SelectContext(ctx, &in.Staff, staffQuery); err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	var blocked []models.StaffUnavailability
	const unavailableQuery = `SELECT staff_id, date, COALESCE(slot_id, '') AS slot_id FROM staff_unavailability WHERE session_id = $1`
	if err := r.db.SelectContext(ctx, &blocked, unavailableQuery, sessionID); err != nil {
		return nil, fmt.Errorf("load staff unavailability: %w", err)
	}
	attachUnavailability(in.Staff, blocked)

	return in, nil
}

func (r *ExamDataRepository) links(ctx context.Context, query, sessionID string) ([]examLink, error) {
	var rows []examLink
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, err
	}
	return rows, nil
}

// attachExamLinks fills the relation fields of exams from flat link rows.
func attachExamLinks(exams []models.Exam, registrations []models.Registration, instructors, fallbacks, preferred []examLink) {
	byExam := lo.GroupBy(registrations, func(r models.Registration) string { return r.ExamID })
	refs := func(links []examLink) map[string][]string {
		out := make(map[string][]string)
		for _, l := range links {
			out[l.ExamID] = append(out[l.ExamID], l.Ref)
		}
		return out
	}
	inst, fall, pref := refs(instructors), refs(fallbacks), refs(preferred)

	for i := range exams {
		e := &exams[i]
		e.Registrations = make(map[string]models.RegistrationKind, len(byExam[e.ID]))
		for _, reg := range byExam[e.ID] {
			kind := reg.Kind
			if kind == "" {
				kind = models.RegistrationNormal
			}
			e.Registrations[reg.StudentID] = kind
		}
		e.InstructorIDs = inst[e.ID]
		e.FallbackRoomIDs = fall[e.ID]
		e.PreferredSlotIDs = pref[e.ID]
	}
}

// groupDays orders slots into days by date then index.
func groupDays(slots []models.TimeSlot) []models.Day {
	byDate := lo.GroupBy(slots, func(s models.TimeSlot) string { return s.Date.Format("2006-01-02") })
	dates := lo.Keys(byDate)
	sort.Strings(dates)

	days := make([]models.Day, 0, len(dates))
	for _, date := range dates {
		daySlots := byDate[date]
		sort.SliceStable(daySlots, func(i, j int) bool { return daySlots[i].Index < daySlots[j].Index })
		days = append(days, models.Day{Date: daySlots[0].Date, Slots: daySlots})
	}
	return days
}

func attachUnavailability(staff []models.Staff, blocked []models.StaffUnavailability) {
	byStaff := lo.GroupBy(blocked, func(b models.StaffUnavailability) string { return b.StaffID })
	for i := range staff {
		staff[i].Unavailable = byStaff[staff[i].ID]
	}
}
