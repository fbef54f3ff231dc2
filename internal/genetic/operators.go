package genetic

import (
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

// crossover takes each exam's placement from a or b with equal odds.
func (e *Engine) crossover(a, b problem.Plan) problem.Plan {
	child := make(problem.Plan, len(a))
	for ex := range a {
		if e.rng.Intn(2) == 0 {
			child[ex] = a[ex].Clone()
		} else {
			child[ex] = b[ex].Clone()
		}
	}
	return child
}

// mutate re-rolls one exam onto a random feasible start with fresh rooms and
// invigilators. The plan is left unchanged when nothing fits.
func (e *Engine) mutate(plan problem.Plan) {
	if len(plan) == 0 {
		return
	}
	ex := e.rng.Intn(len(plan))
	starts := e.p.FeasibleStarts(ex)
	if len(starts) == 0 {
		return
	}
	occ := e.p.NewOccupancy(plan.Clone(), ex).Enforce(e.cfg.Rules)
	start := starts[e.rng.Intn(len(starts))]
	if pl, ok := e.place(occ, ex, start); ok {
		plan[ex] = pl
	}
}

// repair walks exams in random order and moves every exam whose placement
// breaks a hard rule against the others to the first clean start.
func (e *Engine) repair(plan problem.Plan) {
	occ := e.p.NewOccupancy(plan.Clone()).Enforce(e.cfg.Rules)
	for _, ex := range e.rng.Perm(len(plan)) {
		current := occ.Placement(ex)
		occ.Remove(ex)
		if current.Scheduled() && occ.Clean(ex, current) {
			occ.Add(ex, current)
			continue
		}
		moved := false
		for _, start := range e.startOrder(ex, current.Start) {
			if pl, ok := e.place(occ, ex, start); ok {
				occ.Add(ex, pl)
				plan[ex] = pl
				moved = true
				break
			}
		}
		if !moved && current.Scheduled() {
			occ.Add(ex, current)
		}
	}
}

// startOrder tries the current start first, then the rest shuffled.
func (e *Engine) startOrder(ex, current int) []int {
	starts := e.p.FeasibleStarts(ex)
	order := make([]int, 0, len(starts))
	if current >= 0 && e.p.IsFeasibleStart(ex, current) {
		order = append(order, current)
	}
	for _, k := range e.rng.Perm(len(starts)) {
		if starts[k] != current {
			order = append(order, starts[k])
		}
	}
	return order
}

// place builds a conflict-free placement of ex at start against occ. Starts
// that leave too small a gap or overload a student's day are refused.
func (e *Engine) place(occ *problem.Occupancy, ex, start int) (problem.Placement, bool) {
	slots := e.p.Coverage(ex, start)
	if slots == nil || len(occ.StudentClashes(ex, slots)) > 0 {
		return problem.Placement{}, false
	}
	if len(occ.GapClashes(ex, start)) > 0 || occ.DayFull(ex, e.p.SlotDay(start)) {
		return problem.Placement{}, false
	}
	rooms, seats, ok := occ.PlaceRooms(ex, slots, nil)
	if !ok {
		return problem.Placement{}, false
	}
	staff, ok := occ.PickStaff(ex, slots, rooms, e.staffNeeded(seats))
	if !ok {
		return problem.Placement{}, false
	}
	return problem.Placement{Start: start, Rooms: rooms, Seats: seats, Staff: staff}, true
}

func (e *Engine) staffNeeded(seats []int) int {
	if len(e.p.EligibleStaff()) == 0 {
		return 0
	}
	n := 0
	for _, s := range seats {
		n += problem.InvigilatorsNeeded(s, e.cfg.StudentsPerInvigilator)
	}
	return n
}
