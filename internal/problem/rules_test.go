package problem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	pt "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem/problemtest"
)

func TestCheckCountsMinimumGap(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioGap())
	rules := problem.Rules{GapSlots: 1}

	adjacent := p.NewPlan()
	adjacent[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{40}}
	adjacent[1] = problem.Placement{Start: 1, Rooms: []int{1}, Seats: []int{40}}
	assert.True(t, p.Check(adjacent, problem.Rules{}).Feasible())

	ev := p.Check(adjacent, rules)
	assert.False(t, ev.Feasible())
	assert.Equal(t, 1, ev.Metrics.ViolationsByType[problem.ViolationMinimumGap])
	assert.Equal(t, 1, ev.Metrics.HardViolations)
	require.Len(t, ev.Violations, 1)
	assert.Equal(t, []string{"exam-a", "exam-b"}, ev.Violations[0].Exams)

	spaced := adjacent.Clone()
	spaced[1].Start = 2
	assert.True(t, p.Check(spaced, rules).Feasible())
}

func TestCheckCountsMaxExamsPerDay(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioD(true))
	plan := p.NewPlan()
	for e := range plan {
		plan[e] = problem.Placement{Start: e, Rooms: []int{0}, Seats: []int{10}}
	}

	assert.True(t, p.Check(plan, problem.Rules{MaxExamsPerDay: 2}).Feasible())

	ev := p.Check(plan, problem.Rules{MaxExamsPerDay: 1})
	assert.Equal(t, 2, ev.Metrics.ViolationsByType[problem.ViolationMaxExamsPerDay], "one per distinct exam set")
	assert.Equal(t, ev.Hard, ev.Metrics.HardViolations)
}

func TestCheckCountsInstructorExclusion(t *testing.T) {
	in := pt.ScenarioD(true)
	in.Exams[0].InstructorIDs = []string{"staff-1"}
	p := pt.MustBuild(t, in)
	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{10}, Staff: []int{0}}
	plan[1] = problem.Placement{Start: 1, Rooms: []int{0}, Seats: []int{10}, Staff: []int{1}}
	plan[2] = problem.Placement{Start: 0, Rooms: []int{1}, Seats: []int{10}, Staff: []int{2}}

	assert.True(t, p.Check(plan, problem.Rules{}).Feasible())

	ev := p.Check(plan, problem.Rules{InstructorExclusion: true})
	require.Len(t, ev.Violations, 1)
	assert.Equal(t, problem.ViolationInstructorExclusion, ev.Violations[0].Type)
	assert.Equal(t, "staff-1", ev.Violations[0].StaffID)
}

func TestCheckCountsInvigilatorRoomSwitch(t *testing.T) {
	in := pt.ScenarioA()
	in.Staff = []models.Staff{pt.Staff("staff-1")}
	p := pt.MustBuild(t, in)
	rules := problem.Rules{BackToBack: true}

	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{30}, Staff: []int{0}}
	plan[1] = problem.Placement{Start: 1, Rooms: []int{1}, Seats: []int{30}, Staff: []int{0}}
	plan[2] = problem.Placement{Start: 1, Rooms: []int{0}, Seats: []int{30}}

	ev := p.Check(plan, rules)
	assert.Equal(t, 1, ev.Metrics.ViolationsByType[problem.ViolationBackToBack])
	assert.Equal(t, []string{"exam-a", "exam-b"}, ev.Violations[0].Exams)

	sameRoom := plan.Clone()
	sameRoom[1].Rooms, sameRoom[2].Rooms = []int{0}, []int{1}
	assert.True(t, p.Check(sameRoom, rules).Feasible(), "a different exam in the same room is not a switch")
}

func TestCheckCountsInvigilatorDailyLimit(t *testing.T) {
	in := pt.ScenarioA()
	staff := pt.Staff("staff-1")
	staff.MaxConsecutive = 1
	in.Staff = []models.Staff{staff}
	p := pt.MustBuild(t, in)

	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{30}, Staff: []int{0}}
	plan[1] = problem.Placement{Start: 1, Rooms: []int{0}, Seats: []int{30}, Staff: []int{0}}
	plan[2] = problem.Placement{Start: 1, Rooms: []int{1}, Seats: []int{30}}

	assert.True(t, p.Check(plan, problem.Rules{}).Feasible())
	ev := p.Check(plan, problem.Rules{StaffDailyLimit: true})
	assert.Equal(t, 1, ev.Metrics.ViolationsByType[problem.ViolationStaffDailyLimit])
	assert.Equal(t, "staff-1", ev.Violations[0].StaffID)
}

func TestOccupancyEnforcesStudentRules(t *testing.T) {
	p := pt.MustBuild(t, pt.ScenarioGap())
	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{40}}
	occ := p.NewOccupancy(plan.Clone()).Enforce(problem.Rules{GapSlots: 1, MaxExamsPerDay: 1})

	assert.Equal(t, []int{0}, occ.GapClashes(1, 1))
	assert.Empty(t, occ.GapClashes(1, 2))
	assert.Equal(t, 1, occ.DailyLoad(1, 0))
	assert.True(t, occ.DayFull(1, 0))

	adjacent := problem.Placement{Start: 1, Rooms: []int{1}, Seats: []int{40}}
	assert.False(t, occ.Clean(1, adjacent))
	assert.True(t, p.NewOccupancy(plan.Clone()).Clean(1, adjacent), "nothing is enforced by default")
}

func TestPickStaffSkipsInvigilatorsThatWouldSwitchRooms(t *testing.T) {
	in := pt.ScenarioA()
	in.Staff = []models.Staff{pt.Staff("staff-1"), pt.Staff("staff-2")}
	p := pt.MustBuild(t, in)
	plan := p.NewPlan()
	plan[0] = problem.Placement{Start: 0, Rooms: []int{0}, Seats: []int{30}, Staff: []int{0}}
	plan[2] = problem.Placement{Start: 0, Rooms: []int{1}, Seats: []int{30}, Staff: []int{1}}
	occ := p.NewOccupancy(plan.Clone()).Enforce(problem.Rules{BackToBack: true})

	staff, ok := occ.PickStaff(1, []int{1}, []int{0}, 1)
	require.True(t, ok)
	assert.Equal(t, []int{0}, staff, "staff-2 would leave room-2 for room-1")

	_, ok = occ.PickStaff(1, []int{1}, []int{0}, 2)
	assert.False(t, ok)
}
