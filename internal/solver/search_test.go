package solver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

func solve(t *testing.T, m *Model, workers int) *Result {
	t.Helper()
	res, err := NewSearchSolver(nil).Solve(context.Background(), m, Params{TimeLimit: 5 * time.Second, Workers: workers})
	require.NoError(t, err)
	return res
}

func TestSolveFindsOptimum(t *testing.T) {
	m := NewModel("tiny")
	x := m.NewBool("x")
	y := m.NewBool("y")
	m.AddEquality("pick_one", Sum(x, y), 1)
	m.Minimize(T(x, 2), T(y, 1))

	res := solve(t, m, 1)
	assert.Equal(t, models.SolverOptimal, res.Status)
	assert.Equal(t, int64(1), res.Objective)
	assert.False(t, res.Bool(x))
	assert.True(t, res.Bool(y))
	assert.GreaterOrEqual(t, res.Stats.Solutions, 1)
}

func TestSolveWithoutObjectiveStopsAtFirstSolution(t *testing.T) {
	m := NewModel("feasibility")
	vars := make([]VarID, 5)
	for i := range vars {
		vars[i] = m.NewBool(fmt.Sprintf("v%d", i))
	}
	m.AddEquality("exactly_two", Sum(vars...), 2)

	res := solve(t, m, 2)
	assert.Equal(t, models.SolverOptimal, res.Status)
	total := int64(0)
	for _, v := range vars {
		total += res.Value(v)
	}
	assert.Equal(t, int64(2), total)
	assert.Equal(t, 1, res.Stats.Solutions)
}

func TestSolveProvesInfeasibility(t *testing.T) {
	m := NewModel("pigeonhole")
	const pigeons, holes = 4, 3
	var at [pigeons][holes]VarID
	for p := 0; p < pigeons; p++ {
		for h := 0; h < holes; h++ {
			at[p][h] = m.NewBool(fmt.Sprintf("p%d_h%d", p, h))
		}
		m.AddEquality("one_hole", Sum(at[p][:]...), 1)
	}
	for h := 0; h < holes; h++ {
		var col []VarID
		for p := 0; p < pigeons; p++ {
			col = append(col, at[p][h])
		}
		m.AddAtMost("one_pigeon", Sum(col...), 1)
	}

	res := solve(t, m, 1)
	assert.Equal(t, models.SolverInfeasible, res.Status)
	assert.Nil(t, res.Values)
	assert.False(t, res.HasSolution())
	assert.Greater(t, res.Stats.Conflicts, int64(0))
}

func TestSolveEmptyConstraintIsInfeasible(t *testing.T) {
	m := NewModel("empty")
	m.NewBool("unused")
	m.AddEquality("required", nil, 1)
	assert.Equal(t, models.SolverInfeasible, solve(t, m, 1).Status)
}

func TestSolveIntegerSplit(t *testing.T) {
	m := NewModel("split")
	useA := m.NewBool("use_a")
	useB := m.NewBool("use_b")
	seatA := m.NewInt("seat_a", 0, 50)
	seatB := m.NewInt("seat_b", 0, 40)
	m.AddAtMost("cap_a", []Term{T(seatA, 1), T(useA, -50)}, 0)
	m.AddAtMost("cap_b", []Term{T(seatB, 1), T(useB, -40)}, 0)
	m.AddEquality("demand", Sum(seatA, seatB), 80)
	m.Minimize(T(useA, 50), T(useB, 40), T(seatA, -1), T(seatB, -1))

	res := solve(t, m, 3)
	require.True(t, res.HasSolution())
	assert.Equal(t, models.SolverOptimal, res.Status)
	assert.True(t, res.Bool(useA))
	assert.True(t, res.Bool(useB))
	assert.Equal(t, int64(80), res.Value(seatA)+res.Value(seatB))
}

func TestSolveHonoursHints(t *testing.T) {
	m := NewModel("hinted")
	vars := []VarID{m.NewBool("a"), m.NewBool("b"), m.NewBool("c")}
	m.AddEquality("one", Sum(vars...), 1)
	m.Hint(vars[2], 1)

	res := solve(t, m, 1)
	assert.True(t, res.Bool(vars[2]))
}

func TestSolveReportsProgress(t *testing.T) {
	m := NewModel("progress")
	x := m.NewInt("x", 0, 10)
	y := m.NewInt("y", 0, 10)
	m.AddAtLeast("sum", Sum(x, y), 7)
	m.Minimize(T(x, 3), T(y, 2))

	var seen []Progress
	res, err := NewSearchSolver(nil).Solve(context.Background(), m, Params{
		OnSolution: func(p Progress) { seen = append(seen, p) },
	})
	require.NoError(t, err)
	assert.Equal(t, models.SolverOptimal, res.Status)
	assert.Equal(t, int64(14), res.Objective)
	require.NotEmpty(t, seen)
	assert.Equal(t, res.Objective, seen[len(seen)-1].Objective)
}

func TestValidateRejectsBrokenModels(t *testing.T) {
	m := NewModel("broken")
	m.NewInt("bad", 3, 1)
	_, err := NewSearchSolver(nil).Solve(context.Background(), m, Params{})
	assert.ErrorIs(t, err, ErrInvalidModel)

	m = NewModel("dangling")
	m.AddAtMost("ghost", []Term{T(VarID(7), 1)}, 1)
	assert.ErrorIs(t, m.Validate(), ErrInvalidModel)
}

func TestModelMergesTermsAndCountsRules(t *testing.T) {
	m := NewModel("merge")
	x := m.NewBool("x")
	y := m.NewBool("y")
	m.AddLinear("r1", []Term{T(x, 1), T(y, 2), T(x, -1)}, 0, 2)
	m.AddAtMost("r1", Sum(x), 1)
	m.AddAtLeast("r2", Sum(y), 0)

	assert.Equal(t, []Term{T(y, 2)}, m.Constraints()[0].Terms)
	assert.Equal(t, map[string]int{"r1": 2, "r2": 1}, m.CountByRule())
}

type panickingSolver struct{}

func (panickingSolver) Solve(context.Context, *Model, Params) (*Result, error) {
	panic("boom")
}

func TestRunIsolatedRecoversPanics(t *testing.T) {
	_, err := RunIsolated(context.Background(), panickingSolver{}, NewModel("x"), Params{})
	assert.ErrorIs(t, err, ErrSolverPanic)

	m := NewModel("ok")
	x := m.NewBool("x")
	m.AddEquality("set", Sum(x), 1)
	res, err := RunIsolated(context.Background(), NewSearchSolver(nil), m, Params{})
	require.NoError(t, err)
	assert.True(t, res.Bool(x))
}

func TestFloorCeilDiv(t *testing.T) {
	assert.Equal(t, int64(-2), floorDiv(-3, 2))
	assert.Equal(t, int64(-1), ceilDiv(-3, 2))
	assert.Equal(t, int64(1), floorDiv(3, 2))
	assert.Equal(t, int64(2), ceilDiv(3, 2))
	assert.Equal(t, int64(-2), floorDiv(3, -2))
	assert.Equal(t, int64(-1), ceilDiv(3, -2))
}
