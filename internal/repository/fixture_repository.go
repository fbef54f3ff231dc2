package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

const fixtureDateLayout = "2006-01-02"

// FixtureRepository reads session data from a directory of CSV files laid out
// as <root>/<session id>/<table>.csv. It backs offline CLI runs.
type FixtureRepository struct {
	root string
}

// NewFixtureRepository constructs the repository rooted at dir.
func NewFixtureRepository(dir string) *FixtureRepository {
	return &FixtureRepository{root: dir}
}

type sessionRow struct {
	ID        string `csv:"id"`
	Name      string `csv:"name"`
	Status    string `csv:"status"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

type examRow struct {
	ID                    string `csv:"id"`
	CourseID              string `csv:"course_id"`
	CourseCode            string `csv:"course_code"`
	DurationMinutes       int    `csv:"duration_minutes"`
	ExpectedCount         int    `csv:"expected_count"`
	MorningOnly           bool   `csv:"morning_only"`
	RequiresComputers     bool   `csv:"requires_computers"`
	RequiresProjector     bool   `csv:"requires_projector"`
	RequiresAccessibility bool   `csv:"requires_accessibility"`
	AllowSplit            bool   `csv:"allow_split"`
}

type slotRow struct {
	ID              string `csv:"id"`
	Date            string `csv:"date"`
	Index           int    `csv:"slot_index"`
	StartTime       string `csv:"start_time"`
	EndTime         string `csv:"end_time"`
	DurationMinutes int    `csv:"duration_minutes"`
	Active          bool   `csv:"active"`
}

type staffRow struct {
	ID                string `csv:"id"`
	Name              string `csv:"name"`
	Department        string `csv:"department"`
	MaxSessionsPerDay int    `csv:"max_sessions_per_day"`
	MaxConsecutive    int    `csv:"max_consecutive"`
	CanInvigilate     bool   `csv:"can_invigilate"`
	CanBeChief        bool   `csv:"can_be_chief"`
}

type unavailabilityRow struct {
	StaffID string `csv:"staff_id"`
	Date    string `csv:"date"`
	SlotID  string `csv:"slot_id"`
}

// LoadInstance parses every table of the session directory.
func (r *FixtureRepository) LoadInstance(ctx context.Context, sessionID string) (*problem.Instance, error) {
	dir := filepath.Join(r.root, sessionID)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("open fixture session %s: %w", sessionID, err)
	}
	in := &problem.Instance{}

	var sessions []sessionRow
	if err := readTable(ctx, dir, "session", true, &sessions); err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("fixture session %s: %w", sessionID, fs.ErrNotExist)
	}
	session, err := sessions[0].toModel(sessionID)
	if err != nil {
		return nil, err
	}
	in.Session = session

	var exams []examRow
	if err := readTable(ctx, dir, "exams", true, &exams); err != nil {
		return nil, err
	}
	in.Exams = make([]models.Exam, 0, len(exams))
	for _, e := range exams {
		in.Exams = append(in.Exams, e.toModel(sessionID))
	}

	var registrations []models.Registration
	if err := readTable(ctx, dir, "registrations", true, &registrations); err != nil {
		return nil, err
	}
	var instructors, fallbacks, preferred []examLink
	for table, dst := range map[string]*[]examLink{
		"instructors":     &instructors,
		"fallback_rooms":  &fallbacks,
		"preferred_slots": &preferred,
	} {
		if err := readTable(ctx, dir, table, false, dst); err != nil {
			return nil, err
		}
	}
	attachExamLinks(in.Exams, registrations, instructors, fallbacks, preferred)

	if err := readTable(ctx, dir, "rooms", true, &in.Rooms); err != nil {
		return nil, err
	}

	var slots []slotRow
	if err := readTable(ctx, dir, "slots", true, &slots); err != nil {
		return nil, err
	}
	timeSlots := make([]models.TimeSlot, 0, len(slots))
	for _, s := range slots {
		slot, err := s.toModel()
		if err != nil {
			return nil, err
		}
		timeSlots = append(timeSlots, slot)
	}
	in.Days = groupDays(timeSlots)

	if err := readTable(ctx, dir, "students", false, &in.Students); err != nil {
		return nil, err
	}

	var staff []staffRow
	if err := readTable(ctx, dir, "staff", false, &staff); err != nil {
		return nil, err
	}
	for _, s := range staff {
		in.Staff = append(in.Staff, models.Staff{
			ID:                s.ID,
			Name:              s.Name,
			Department:        s.Department,
			MaxSessionsPerDay: s.MaxSessionsPerDay,
			MaxConsecutive:    s.MaxConsecutive,
			CanInvigilate:     s.CanInvigilate,
			CanBeChief:        s.CanBeChief,
		})
	}
	var blocked []unavailabilityRow
	if err := readTable(ctx, dir, "staff_unavailability", false, &blocked); err != nil {
		return nil, err
	}
	unavailable := make([]models.StaffUnavailability, 0, len(blocked))
	for _, b := range blocked {
		date, err := time.Parse(fixtureDateLayout, b.Date)
		if err != nil {
			return nil, fmt.Errorf("staff_unavailability.csv: parse date %q: %w", b.Date, err)
		}
		unavailable = append(unavailable, models.StaffUnavailability{StaffID: b.StaffID, Date: date, SlotID: b.SlotID})
	}
	attachUnavailability(in.Staff, unavailable)

	return in, nil
}

// readTable unmarshals <dir>/<table>.csv into out. Optional tables that do not
// exist leave out untouched.
func readTable(ctx context.Context, dir, table string, required bool, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(dir, table+".csv")
	file, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open %s.csv: %w", table, err)
	}
	defer file.Close() //nolint:errcheck

	if err := gocsv.UnmarshalFile(file, out); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return nil
		}
		return fmt.Errorf("parse %s.csv: %w", table, err)
	}
	return nil
}

func (s sessionRow) toModel(sessionID string) (models.Session, error) {
	out := models.Session{ID: s.ID, Name: s.Name, Status: models.SessionStatus(s.Status)}
	if out.ID == "" {
		out.ID = sessionID
	}
	if out.Status == "" {
		out.Status = models.SessionStatusActive
	}
	var err error
	if s.StartDate != "" {
		if out.StartDate, err = time.Parse(fixtureDateLayout, s.StartDate); err != nil {
			return out, fmt.Errorf("session.csv: parse start_date %q: %w", s.StartDate, err)
		}
	}
	if s.EndDate != "" {
		if out.EndDate, err = time.Parse(fixtureDateLayout, s.EndDate); err != nil {
			return out, fmt.Errorf("session.csv: parse end_date %q: %w", s.EndDate, err)
		}
	}
	return out, nil
}

func (e examRow) toModel(sessionID string) models.Exam {
	return models.Exam{
		ID:                    e.ID,
		SessionID:             sessionID,
		CourseID:              e.CourseID,
		CourseCode:            e.CourseCode,
		DurationMinutes:       e.DurationMinutes,
		ExpectedCount:         e.ExpectedCount,
		MorningOnly:           e.MorningOnly,
		RequiresComputers:     e.RequiresComputers,
		RequiresProjector:     e.RequiresProjector,
		RequiresAccessibility: e.RequiresAccessibility,
		AllowSplit:            e.AllowSplit,
	}
}

func (s slotRow) toModel() (models.TimeSlot, error) {
	date, err := time.Parse(fixtureDateLayout, s.Date)
	if err != nil {
		return models.TimeSlot{}, fmt.Errorf("slots.csv: parse date %q for %s: %w", s.Date, s.ID, err)
	}
	return models.TimeSlot{
		ID:              s.ID,
		Date:            date,
		Index:           s.Index,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.DurationMinutes,
		Active:          s.Active,
	}, nil
}
