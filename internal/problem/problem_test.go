package problem_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	pt "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem/problemtest"
)

func TestBuildFailsFastOnEmptyCollections(t *testing.T) {
	base := pt.ScenarioA()

	noRooms := base
	noRooms.Rooms = nil
	_, err := problem.Build(noRooms, problem.Options{})
	assert.ErrorIs(t, err, problem.ErrEmptyRooms)

	noExams := base
	noExams.Exams = nil
	_, err = problem.Build(noExams, problem.Options{})
	assert.ErrorIs(t, err, problem.ErrEmptyExams)

	noSlots := base
	noSlots.Days = []models.Day{{Date: base.Days[0].Date}}
	_, err = problem.Build(noSlots, problem.Options{})
	assert.ErrorIs(t, err, problem.ErrEmptySlots)
}

func TestBuildRejectsInvalidFields(t *testing.T) {
	cases := map[string]func(in *problem.Instance){
		"zero duration": func(in *problem.Instance) { in.Exams[0].DurationMinutes = 0 },
		"negative count": func(in *problem.Instance) {
			in.Exams[0].ExpectedCount = -1
		},
		"duplicate exam":   func(in *problem.Instance) { in.Exams[1].ID = in.Exams[0].ID },
		"unknown fallback": func(in *problem.Instance) { in.Exams[0].FallbackRoomIDs = []string{"ghost"} },
		"duplicate room":   func(in *problem.Instance) { in.Rooms[1].ID = in.Rooms[0].ID },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := pt.ScenarioA()
			mutate(&in)
			_, err := problem.Build(in, problem.Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, problem.ErrInvalidInstance))
		})
	}
}

func TestConflictPairsOrderedByOverlap(t *testing.T) {
	in := pt.Instance(
		[]models.Exam{
			pt.Exam("e1", 3, "s1", "s2", "s3"),
			pt.Exam("e2", 2, "s1", "s2"),
			pt.Exam("e3", 2, "s3", "s9"),
			pt.Exam("e4", 1, "s7"),
		},
		[]models.Room{pt.Room("r1", 10)},
		[]models.Day{pt.Day(0, 2)},
	)
	in.Exams[3].Registrations["s1"] = models.RegistrationCarryover
	p := pt.MustBuild(t, in)

	pairs := p.Conflicts()
	require.Len(t, pairs, 2)
	assert.Equal(t, problem.ConflictPair{A: 0, B: 1, Overlap: 2}, pairs[0])
	assert.Equal(t, problem.ConflictPair{A: 0, B: 2, Overlap: 1}, pairs[1])
	assert.Equal(t, 0, p.Overlap(0, 3), "carry-over registrations never conflict")
	assert.Equal(t, []string{"s1", "s2"}, p.SharedStudents(0, 1))
	assert.Equal(t, []int{1, 2}, p.Neighbours(0))
}

func TestAllowedRoomsFallsBackToSplitThenList(t *testing.T) {
	in := pt.ScenarioC()
	in.Rooms = append(in.Rooms, pt.Room("room-lab", 100))
	in.Rooms[2].Active = true
	in.Rooms[2].HasComputers = true
	in.Exams = append(in.Exams, pt.Exam("exam-lab", 20, "x1"), pt.Exam("exam-fixed", 120, "y1"))
	in.Exams[1].RequiresComputers = true
	in.Exams[2].AllowSplit = false
	in.Exams[2].FallbackRoomIDs = []string{"room-50"}
	p := pt.MustBuild(t, in)

	big, _ := p.ExamIndex("exam-big")
	lab, _ := p.ExamIndex("exam-lab")
	fixed, _ := p.ExamIndex("exam-fixed")
	labRoom, _ := p.RoomIndex("room-lab")
	room50, _ := p.RoomIndex("room-50")

	assert.Equal(t, []int{labRoom}, p.AllowedRooms(big), "only the lab seats 80 in one room")
	assert.False(t, p.NeedsSplit(big))
	assert.Equal(t, []int{labRoom}, p.AllowedRooms(lab))
	assert.Equal(t, []int{room50}, p.AllowedRooms(fixed))
	assert.False(t, p.NeedsSplit(fixed))

	plain := pt.MustBuild(t, pt.ScenarioC())
	assert.True(t, plain.NeedsSplit(0))
	assert.Len(t, plain.AllowedRooms(0), 2)
}

func TestFeasibleStartsRespectDurationAndMorning(t *testing.T) {
	long := pt.Exam("long", 10, "s1")
	long.DurationMinutes = 300
	morning := pt.Exam("morning", 10, "s2")
	morning.MorningOnly = true
	in := pt.Instance(
		[]models.Exam{long, morning},
		[]models.Room{pt.Room("r1", 50)},
		[]models.Day{pt.Day(0, 3), pt.Day(1, 3)},
	)
	in.Days[1].Slots[1].Active = false
	p := pt.MustBuild(t, in)

	d1s1, _ := p.SlotIndex(pt.SlotID(0, 0))
	d1s2, _ := p.SlotIndex(pt.SlotID(0, 1))
	d1s3, _ := p.SlotIndex(pt.SlotID(0, 2))
	d2s1, _ := p.SlotIndex(pt.SlotID(1, 0))

	assert.Equal(t, []int{d1s1, d1s2}, p.FeasibleStarts(0), "a start must leave room for the second slot and skip inactive slots")
	assert.Equal(t, []int{d1s1, d1s2}, p.Coverage(0, d1s1))
	assert.Equal(t, []int{d1s2, d1s3}, p.Coverage(0, d1s2))
	assert.Nil(t, p.Coverage(0, d1s3))
	assert.Equal(t, []int{d1s1, d2s1}, p.FeasibleStarts(1))
	assert.Equal(t, 1, p.SlotDay(d2s1))
	assert.Equal(t, d1s2, p.NextSlot(d1s1))
	assert.Equal(t, -1, p.NextSlot(d1s3))
}

func TestStaffAvailabilityHonoursUnavailability(t *testing.T) {
	in := pt.ScenarioD(true)
	in.Staff[0].Unavailable = []models.StaffUnavailability{{StaffID: "staff-1", SlotID: pt.SlotID(0, 1)}}
	in.Staff[1].Unavailable = []models.StaffUnavailability{{StaffID: "staff-2", Date: in.Days[0].Date}}
	in.Staff[2].CanInvigilate = false
	in.Exams[0].InstructorIDs = []string{"staff-1", "unknown"}
	p := pt.MustBuild(t, in)

	s1, _ := p.SlotIndex(pt.SlotID(0, 0))
	s2, _ := p.SlotIndex(pt.SlotID(0, 1))
	assert.True(t, p.StaffAvailable(0, s1))
	assert.False(t, p.StaffAvailable(0, s2))
	assert.False(t, p.StaffAvailable(1, s1))
	assert.False(t, p.StaffAvailable(2, s1))
	assert.Equal(t, []int{0, 1}, p.EligibleStaff())
	assert.Equal(t, []int{0}, p.Instructors(0))
	assert.Equal(t, []int{0}, p.InstructedExams(0))
}

func TestEffectiveCapacityUsesBuffer(t *testing.T) {
	p, err := problem.Build(pt.ScenarioA(), problem.Options{CapacityBufferPercent: 10})
	require.NoError(t, err)
	assert.Equal(t, 45, p.Capacity(0))
	assert.Equal(t, 90, p.TotalCapacity())
	assert.Equal(t, 2, p.ActiveRoomCount())
}

func TestInvigilatorsNeeded(t *testing.T) {
	assert.Equal(t, 0, problem.InvigilatorsNeeded(0, 30))
	assert.Equal(t, 1, problem.InvigilatorsNeeded(30, 30))
	assert.Equal(t, 2, problem.InvigilatorsNeeded(31, 30))
	assert.Equal(t, 0, problem.InvigilatorsNeeded(31, 0))
}
