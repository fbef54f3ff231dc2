// Package solver holds the linear model consumed by the combinatorial solver
// and an in-process search solver implementing it.
package solver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// ErrSolverPanic wraps a panic recovered from an isolated solve.
var ErrSolverPanic = errors.New("solver panicked")

// Params is the solving budget.
type Params struct {
	TimeLimit  time.Duration
	Workers    int
	OnSolution func(Progress)
}

// Progress is emitted every time a better solution is found.
type Progress struct {
	Solutions int
	Objective int64
	WallTime  time.Duration
	Worker    int
}

// Stats summarises a search.
type Stats struct {
	WallTime  time.Duration
	Branches  int64
	Conflicts int64
	Solutions int
}

// Result is the outcome of a solve. Values is indexed by VarID and is only
// set when a solution exists.
type Result struct {
	Status    models.SolverStatus
	Values    []int64
	Objective int64
	Stats     Stats
}

// HasSolution reports whether the result carries a valuation.
func (r *Result) HasSolution() bool {
	return r != nil && (r.Status == models.SolverOptimal || r.Status == models.SolverFeasible)
}

// Value returns the value of v.
func (r *Result) Value(v VarID) int64 { return r.Values[v] }

// Bool reports whether a 0/1 variable is set.
func (r *Result) Bool(v VarID) bool { return r.Values[v] == 1 }

// Solver solves linear integer models.
type Solver interface {
	Solve(ctx context.Context, model *Model, params Params) (*Result, error)
}

// RunIsolated runs a solve on its own goroutine and waits for it. Panics raised
// by the solver are returned as errors so a faulty model cannot take the
// calling worker down.
func RunIsolated(ctx context.Context, s Solver, model *Model, params Params) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrSolverPanic, r)}
			}
		}()
		res, err := s.Solve(ctx, model, params)
		done <- outcome{res: res, err: err}
	}()
	out := <-done
	return out.res, out.err
}
