package incremental

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem/problemtest"
)

func state(p *problem.Problem, placements ...problem.Placement) models.Solution {
	plan := p.NewPlan()
	copy(plan, placements)
	return p.ToSolution(plan, models.SolverFeasible)
}

func at(start, room, staff int) problem.Placement {
	return problem.Placement{Start: start, Rooms: []int{room}, Seats: []int{10}, Staff: []int{staff}}
}

func TestMoveIntoConflictingSlotRelocatesOtherExam(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(true))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(2, 0, 2))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditTime, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 1)})

	require.Equal(t, OutcomeApplied, out.Status, "conflicts: %+v", out.Conflicts)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, models.ConflictStudent, out.Conflicts[0].Type)
	assert.Equal(t, "exam-b", out.Conflicts[0].OtherExamID)
	assert.Equal(t, []string{"shared-ab"}, out.Conflicts[0].StudentIDs)
	assert.True(t, out.Conflicts[0].Resolved)
	assert.Contains(t, out.Conflicts[0].Resolution, "exam-b")

	assert.Equal(t, problemtest.SlotID(0, 1), out.Solution.Assignments["exam-a"].StartSlotID)
	assert.Equal(t, problemtest.SlotID(0, 0), out.Solution.Assignments["exam-b"].StartSlotID)
	assert.Equal(t, 1, out.Impact.Direct)
	assert.Equal(t, 1, out.Impact.Indirect)
	assert.Equal(t, []string{"exam-a", "exam-b"}, out.Impact.MovedExamIDs)
	assert.True(t, problem.Evaluate(p, out.Solution, problem.Rules{}).Feasible())

	// the input state is left alone
	assert.Equal(t, problemtest.SlotID(0, 0), current.Assignments["exam-a"].StartSlotID)
}

func TestMoveRejectedWithoutAlternativeSlot(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(false))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(0, 1, 2))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditTime, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 1)})

	require.Equal(t, OutcomeRejected, out.Status)
	require.Len(t, out.Conflicts, 1)
	assert.False(t, out.Conflicts[0].Resolved)
	require.NotEmpty(t, out.Suggestions)
	assert.Equal(t, models.SuggestReschedule, out.Suggestions[0].Action)
	assert.Equal(t, "exam-a", out.Suggestions[0].ExamID)
	assert.Equal(t, []string{problemtest.SlotID(0, 0)}, out.Suggestions[0].SlotIDs)
	assert.Empty(t, out.Diffs)
	assert.Empty(t, out.Solution.Assignments)
}

func TestIdempotentEditHasNoEffect(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(true))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(2, 0, 2))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditTime, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 0)})

	require.True(t, out.Applied())
	assert.Empty(t, out.Conflicts)
	assert.Empty(t, out.Diffs)
	assert.Zero(t, out.Impact.Total)
	assert.Equal(t, current.Assignments, out.Solution.Assignments)
}

func TestDerivedInvigilatorIsReplaced(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(true))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(2, 1, 0))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditTime, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 2)})

	require.True(t, out.Applied(), "conflicts: %+v", out.Conflicts)
	require.Len(t, out.Conflicts, 1)
	assert.Equal(t, models.ConflictStaffDoubleBooked, out.Conflicts[0].Type)
	assert.True(t, out.Conflicts[0].Resolved)
	assert.Equal(t, []string{"staff-3"}, out.Solution.Assignments["exam-a"].InvigilatorIDs)
	assert.Equal(t, 0, out.Impact.Indirect)
	assert.True(t, problem.Evaluate(p, out.Solution, problem.Rules{}).Feasible())
}

func TestExplicitInvigilatorClashIsRejected(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(false))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(0, 1, 2))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditStaff, ExamID: "exam-a", StaffIDs: []string{"staff-3"}})

	require.Equal(t, OutcomeRejected, out.Status)
	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, models.SuggestDifferentInvigil, out.Suggestions[0].Action)
	assert.ElementsMatch(t, []string{"staff-1", "staff-2"}, out.Suggestions[0].StaffIDs)
}

func TestExplicitRoomTooSmallSuggestsRooms(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioC())
	current := state(p, problem.Placement{Start: 0, Rooms: []int{0, 1}, Seats: []int{50, 30}})

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditRoom, ExamID: "exam-big", RoomIDs: []string{"room-40"}})

	require.Equal(t, OutcomeRejected, out.Status)
	require.NotEmpty(t, out.Conflicts)
	assert.Equal(t, models.ConflictCapacity, out.Conflicts[0].Type)
	assert.Equal(t, "room-40", out.Conflicts[0].RoomID)
	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, models.SuggestDifferentRoom, out.Suggestions[0].Action)
	assert.ElementsMatch(t, []string{"room-50", "room-40"}, out.Suggestions[0].RoomIDs)
}

func TestRoomEditRecordsDiff(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(true))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(2, 0, 2))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditRoom, ExamID: "exam-a", RoomIDs: []string{"room-2"}})

	require.True(t, out.Applied())
	require.Len(t, out.Diffs, 1)
	assert.Equal(t, models.AssignmentDiff{ExamID: "exam-a", Field: "rooms", Before: "room-1:10", After: "room-2:10"}, out.Diffs[0])
	assert.Equal(t, 1, out.Impact.Direct)
}

func TestInvalidEdits(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(true))
	current := state(p, at(0, 0, 0), at(1, 0, 1), at(2, 0, 2))
	opt := New(p, Options{}, nil)

	cases := []struct {
		name string
		edit Edit
		want string
	}{
		{"unknown exam", Edit{Kind: EditTime, ExamID: "ghost", SlotID: problemtest.SlotID(0, 0)}, "unknown exam ghost"},
		{"time edit with rooms", Edit{Kind: EditTime, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 0), RoomIDs: []string{"room-1"}}, "a time edit only changes slot_id"},
		{"unknown slot", Edit{Kind: EditTime, ExamID: "exam-a", SlotID: "day9-slot9"}, "unknown slot day9-slot9"},
		{"combined with one field", Edit{Kind: EditCombined, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 0)}, "a combined edit changes at least two"},
		{"duplicate rooms", Edit{Kind: EditRoom, ExamID: "exam-a", RoomIDs: []string{"room-1", "room-1"}}, "duplicate rooms room-1"},
		{"unknown kind", Edit{Kind: "swap", ExamID: "exam-a"}, `unknown edit kind "swap"`},
		{"partial seats", Edit{Kind: EditRoom, ExamID: "exam-a", RoomIDs: []string{"room-1", "room-2"}, RoomSeats: map[string]int{"room-1": 6}}, "room_seats is missing room room-2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := opt.Apply(current, tc.edit)
			assert.Equal(t, OutcomeInvalid, out.Status)
			require.NotEmpty(t, out.ValidationErrors)
			assert.Contains(t, out.ValidationErrors[0], tc.want)
		})
	}
}

func TestUnscheduledExamNeedsSlot(t *testing.T) {
	p := problemtest.MustBuild(t, problemtest.ScenarioD(true))
	current := state(p, problem.Placement{Start: -1}, at(1, 0, 1), at(2, 0, 2))

	out := New(p, Options{}, nil).Apply(current, Edit{Kind: EditRoom, ExamID: "exam-a", RoomIDs: []string{"room-1"}})
	assert.Equal(t, OutcomeInvalid, out.Status)

	out = New(p, Options{}, nil).Apply(current, Edit{Kind: EditTime, ExamID: "exam-a", SlotID: problemtest.SlotID(0, 0)})
	require.True(t, out.Applied(), "conflicts: %+v", out.Conflicts)
	a := out.Solution.Assignments["exam-a"]
	assert.Len(t, a.RoomIDs, 1)
	assert.Len(t, a.InvigilatorIDs, 1)
}
