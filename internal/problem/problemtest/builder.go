// Package problemtest builds small timetabling instances for tests.
package problemtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

// SessionID is the session every fixture belongs to.
const SessionID = "session-1"

var firstDay = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)

// Day returns the index-th exam day with count three-hour slots starting at 09:00.
func Day(index, count int) models.Day {
	date := firstDay.AddDate(0, 0, index)
	day := models.Day{Date: date}
	for k := 0; k < count; k++ {
		start := 9 + 3*k
		day.Slots = append(day.Slots, models.TimeSlot{
			ID:              SlotID(index, k),
			Date:            date,
			Index:           k,
			StartTime:       fmt.Sprintf("%02d:00", start),
			EndTime:         fmt.Sprintf("%02d:00", start+3),
			DurationMinutes: 180,
			Active:          true,
		})
	}
	return day
}

// SlotID names the k-th slot of the index-th day.
func SlotID(index, k int) string { return fmt.Sprintf("day%d-slot%d", index+1, k+1) }

// Room returns an active room without special features.
func Room(id string, capacity int) models.Room {
	return models.Room{ID: id, Code: id, Capacity: capacity, Active: true}
}

// Exam returns a two-hour exam whose students are all normally registered.
func Exam(id string, expected int, students ...string) models.Exam {
	exam := models.Exam{
		ID:              id,
		SessionID:       SessionID,
		CourseID:        "course-" + id,
		CourseCode:      id,
		DurationMinutes: 120,
		ExpectedCount:   expected,
		AllowSplit:      true,
		Registrations:   make(map[string]models.RegistrationKind, len(students)),
	}
	for _, s := range students {
		exam.Registrations[s] = models.RegistrationNormal
	}
	return exam
}

// Students returns n student ids prefixed by prefix.
func Students(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%03d", prefix, i+1)
	}
	return ids
}

// Staff returns an invigilator without limits.
func Staff(id string) models.Staff {
	return models.Staff{ID: id, Name: id, CanInvigilate: true}
}

// Instance assembles a problem instance.
func Instance(exams []models.Exam, rooms []models.Room, days []models.Day, staff ...models.Staff) problem.Instance {
	return problem.Instance{
		Session: models.Session{ID: SessionID, Name: "Test session", Status: models.SessionStatusActive},
		Exams:   exams,
		Rooms:   rooms,
		Days:    days,
		Staff:   staff,
	}
}

// MustBuild builds in or fails the test.
func MustBuild(t testing.TB, in problem.Instance) *problem.Problem {
	t.Helper()
	p, err := problem.Build(in, problem.Options{})
	require.NoError(t, err)
	return p
}

// ScenarioA has three independent exams, two rooms of 50 and two slots.
func ScenarioA() problem.Instance {
	return Instance(
		[]models.Exam{
			Exam("exam-a", 30, Students("a", 30)...),
			Exam("exam-b", 30, Students("b", 30)...),
			Exam("exam-c", 30, Students("c", 30)...),
		},
		[]models.Room{Room("room-1", 50), Room("room-2", 50)},
		[]models.Day{Day(0, 2)},
	)
}

// ScenarioB has two exams sharing every student and a single slot.
func ScenarioB() problem.Instance {
	shared := Students("s", 20)
	return Instance(
		[]models.Exam{Exam("exam-a", 20, shared...), Exam("exam-b", 20, shared...)},
		[]models.Room{Room("room-1", 50), Room("room-2", 50)},
		[]models.Day{Day(0, 1)},
	)
}

// ScenarioC has one exam of 80 students and rooms of 50 and 40.
func ScenarioC() problem.Instance {
	return Instance(
		[]models.Exam{Exam("exam-big", 80, Students("s", 80)...)},
		[]models.Room{Room("room-50", 50), Room("room-40", 40)},
		[]models.Day{Day(0, 1)},
	)
}

// ScenarioD has exams A and B sharing one student and exam C sharing another
// student with B. Two slots are used; spareSlot adds a free third one.
func ScenarioD(spareSlot bool) problem.Instance {
	slots := 2
	if spareSlot {
		slots = 3
	}
	a := Exam("exam-a", 10, append(Students("a", 9), "shared-ab")...)
	b := Exam("exam-b", 10, append(Students("b", 8), "shared-ab", "shared-bc")...)
	c := Exam("exam-c", 10, append(Students("c", 9), "shared-bc")...)
	return Instance(
		[]models.Exam{a, b, c},
		[]models.Room{Room("room-1", 40), Room("room-2", 40)},
		[]models.Day{Day(0, slots)},
		Staff("staff-1"), Staff("staff-2"), Staff("staff-3"),
	)
}

// ScenarioGap has two exams of 40 that share half their students, rooms of
// 100 and 50 and one day of three slots.
func ScenarioGap() problem.Instance {
	shared := Students("s", 20)
	return Instance(
		[]models.Exam{
			Exam("exam-a", 40, append(Students("a", 20), shared...)...),
			Exam("exam-b", 40, append(Students("b", 20), shared...)...),
		},
		[]models.Room{Room("room-100", 100), Room("room-50", 50)},
		[]models.Day{Day(0, 3)},
	)
}
