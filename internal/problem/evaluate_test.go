package problem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	pt "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem/problemtest"
)

func assignment(exam, slot string, seats map[string]int, staff ...string) models.ExamAssignment {
	a := models.ExamAssignment{ExamID: exam, StartSlotID: slot, RoomSeats: seats, InvigilatorIDs: staff}
	for room := range seats {
		a.RoomIDs = append(a.RoomIDs, room)
	}
	return a
}

func TestEvaluateCleanSolution(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioD(true))
	sol := models.NewSolution(models.SolverOptimal)
	sol.Assignments["exam-a"] = assignment("exam-a", pt.SlotID(0, 0), map[string]int{"room-1": 10}, "staff-1")
	sol.Assignments["exam-c"] = assignment("exam-c", pt.SlotID(0, 0), map[string]int{"room-2": 10}, "staff-2")
	sol.Assignments["exam-b"] = assignment("exam-b", pt.SlotID(0, 1), map[string]int{"room-1": 10}, "staff-1")

	ev := problem.Evaluate(p, sol, problem.Rules{})
	assert.True(t, ev.Feasible())
	assert.Empty(t, ev.Violations)
	assert.Equal(t, 1.0, ev.Metrics.AssignmentRate)
	assert.Equal(t, 3, ev.Metrics.ScheduledExams)
	assert.InDelta(t, 0.25, ev.Metrics.RoomUtilization, 1e-9)
	assert.Equal(t, 0.0, ev.Metrics.UtilizationInBand)
}

func TestEvaluateReportsHardViolations(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioD(true))
	sol := models.NewSolution(models.SolverFeasible)
	sol.Assignments["exam-a"] = assignment("exam-a", pt.SlotID(0, 1), map[string]int{"room-1": 10}, "staff-1")
	sol.Assignments["exam-b"] = assignment("exam-b", pt.SlotID(0, 1), map[string]int{"room-2": 35}, "staff-1")
	sol.Assignments["exam-c"] = assignment("exam-c", pt.SlotID(0, 1), map[string]int{"room-2": 10})

	ev := problem.Evaluate(p, sol, problem.Rules{})
	assert.True(t, ev.Valid())
	assert.False(t, ev.Feasible())
	assert.Equal(t, 2, ev.Metrics.ViolationsByType[problem.ViolationStudentConflict])
	assert.Equal(t, 1, ev.Metrics.ViolationsByType[problem.ViolationRoomOverCapacity])
	assert.Equal(t, 1, ev.Metrics.ViolationsByType[problem.ViolationStaffDoubleBooked])
	assert.Equal(t, ev.Hard, ev.Metrics.HardViolations)
}

func TestEvaluateFlagsUnknownReferencesAndGaps(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioA())
	sol := models.NewSolution(models.SolverFeasible)
	sol.Assignments["exam-a"] = assignment("exam-a", pt.SlotID(0, 0), map[string]int{"room-9": 30})
	sol.Assignments["ghost"] = assignment("ghost", pt.SlotID(0, 0), map[string]int{"room-1": 5})
	sol.Assignments["exam-b"] = assignment("exam-b", "nowhere", map[string]int{"room-1": 30})

	ev := problem.Evaluate(p, sol, problem.Rules{})
	assert.False(t, ev.Valid())
	assert.Equal(t, 3, ev.Unknown)
	assert.Equal(t, 2, ev.Metrics.ViolationsByType[problem.ViolationUnassigned])
	assert.Equal(t, 1, ev.Metrics.ViolationsByType[problem.ViolationUnderSeated])
}

func TestPlanRoundTripThroughSolution(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioC())
	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0, 1}, Seats: []int{45, 35}}

	sol := p.ToSolution(plan, models.SolverOptimal)
	back, unknown := p.PlanFromSolution(sol)
	require.Empty(t, unknown)
	assert.Equal(t, plan[0].Start, back[0].Start)
	assert.ElementsMatch(t, plan[0].Rooms, back[0].Rooms)
	assert.Equal(t, 80, back[0].Seats[0]+back[0].Seats[1])
	assert.True(t, p.Check(back, problem.Rules{}).Feasible())
}

func TestOccupancyPlacementHelpers(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioD(true))
	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{10}, Staff: []int{0}}
	plan[2] = problem.Placement{Start: 0, Rooms: []int{1}, Seats: []int{10}, Staff: []int{1}}
	occ := p.NewOccupancy(plan.Clone())

	assert.Equal(t, 30, occ.FreeSeats(0, 0))
	assert.Equal(t, []int{0, 2}, occ.StudentClashes(1, []int{0}))
	assert.Empty(t, occ.StudentClashes(1, []int{1}))

	rooms, seats, ok := occ.PlaceRooms(1, []int{0}, nil)
	require.True(t, ok)
	assert.Len(t, rooms, 1)
	assert.Equal(t, []int{10}, seats)

	staff, ok := occ.PickStaff(1, []int{0}, []int{0}, 1)
	require.True(t, ok)
	assert.Equal(t, []int{2}, staff, "the least loaded invigilator wins")

	occ.Remove(0)
	assert.Equal(t, 40, occ.FreeSeats(0, 0))
	assert.Equal(t, 0, occ.StaffLoad(0))
}
