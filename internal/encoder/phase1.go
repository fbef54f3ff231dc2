package encoder

import (
	"fmt"
	"sort"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
)

type examSlot struct{ exam, slot int }

type phase1Vars struct {
	x         map[examSlot]solver.VarID
	z         map[examSlot]solver.VarID
	occupied  [][]int
	slotExams [][]int
}

// Encoder builds solver models from the closed module table.
type Encoder struct {
	settings Settings
	table    map[string]Module
}

// New returns an encoder with the built-in modules.
func New(settings Settings) *Encoder {
	return &Encoder{settings: settings, table: modules()}
}

// Phase1Model is the encoded start-slot problem.
type Phase1Model struct {
	Model   *solver.Model
	Report  Report
	problem *problem.Problem
	vars    *phase1Vars
}

// EncodePhase1 creates start and occupancy variables for every exam and runs
// the Phase 1 modules of order.
func (e *Encoder) EncodePhase1(p *problem.Problem, order []models.ConstraintDefinition, budget Budget) (*Phase1Model, error) {
	vars := &phase1Vars{
		x:         make(map[examSlot]solver.VarID),
		z:         make(map[examSlot]solver.VarID),
		occupied:  make([][]int, len(p.Exams)),
		slotExams: make([][]int, len(p.Slots)),
	}
	model := solver.NewModel("phase1")
	for ex, exam := range p.Exams {
		starts := p.FeasibleStarts(ex)
		if len(starts) == 0 {
			return nil, buildErr(constraint.ExactlyOneStart, "exam %s has no feasible start slot", exam.ID)
		}
		for _, s := range starts {
			vars.x[examSlot{ex, s}] = model.NewBool(fmt.Sprintf("x[%s,%s]", exam.ID, p.Slots[s].ID))
			for _, c := range p.Coverage(ex, s) {
				key := examSlot{ex, c}
				if _, ok := vars.z[key]; ok {
					continue
				}
				vars.z[key] = model.NewBool(fmt.Sprintf("z[%s,%s]", exam.ID, p.Slots[c].ID))
				vars.occupied[ex] = append(vars.occupied[ex], c)
				vars.slotExams[c] = append(vars.slotExams[c], ex)
			}
		}
		sort.Ints(vars.occupied[ex])
	}

	b := &Builder{Problem: p, Model: model, Settings: e.settings, p1: vars, budget: budget}
	report := Report{Phase: Phase1, Day: -1}
	if err := b.run(e.table, Phase1, order, &report); err != nil {
		return nil, err
	}
	return &Phase1Model{Model: model, Report: report, problem: p, vars: vars}, nil
}

// X returns the start variable of exam at slot.
func (m *Phase1Model) X(exam, slot int) (solver.VarID, bool) {
	v, ok := m.vars.x[examSlot{exam, slot}]
	return v, ok
}

// Z returns the occupancy variable of exam at slot.
func (m *Phase1Model) Z(exam, slot int) (solver.VarID, bool) {
	v, ok := m.vars.z[examSlot{exam, slot}]
	return v, ok
}

// Decode reads the chosen start of every exam. Exams without a start are
// absent from the map.
func (m *Phase1Model) Decode(res *solver.Result) (map[int]int, error) {
	if !res.HasSolution() {
		return nil, fmt.Errorf("phase 1 result has no solution (status %s)", res.Status)
	}
	starts := make(map[int]int, len(m.problem.Exams))
	for ex := range m.problem.Exams {
		for _, s := range m.problem.FeasibleStarts(ex) {
			if res.Bool(m.vars.x[examSlot{ex, s}]) {
				starts[ex] = s
				break
			}
		}
	}
	return starts, nil
}

// --- Phase 1 modules ---

type exactlyOneStart struct{ phase1Rule }

func (exactlyOneStart) Encode(b *Builder) error {
	p := b.Problem
	b.Demand(len(p.Exams))
	for ex := range p.Exams {
		terms := make([]solver.Term, 0, len(p.FeasibleStarts(ex)))
		for _, s := range p.FeasibleStarts(ex) {
			terms = append(terms, solver.T(b.p1.x[examSlot{ex, s}], 1))
		}
		if err := b.Equal(terms, 1); err != nil {
			return err
		}
	}
	return nil
}

type occupancyConsistency struct{ phase1Rule }

func (occupancyConsistency) Encode(b *Builder) error {
	p := b.Problem
	for ex := range p.Exams {
		b.Demand(len(b.p1.occupied[ex]))
	}
	for ex := range p.Exams {
		covering := make(map[int][]solver.Term)
		for _, s := range p.FeasibleStarts(ex) {
			for _, c := range p.Coverage(ex, s) {
				covering[c] = append(covering[c], solver.T(b.p1.x[examSlot{ex, s}], -1))
			}
		}
		for _, c := range b.p1.occupied[ex] {
			terms := append([]solver.Term{solver.T(b.p1.z[examSlot{ex, c}], 1)}, covering[c]...)
			if err := b.Equal(terms, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

type studentConflict struct{ phase1Rule }

func (studentConflict) Encode(b *Builder) error {
	var cands []candidate
	for _, pair := range b.Problem.Conflicts() {
		for _, s := range b.p1.occupied[pair.A] {
			zb, ok := b.p1.z[examSlot{pair.B, s}]
			if !ok {
				continue
			}
			za := b.p1.z[examSlot{pair.A, s}]
			cands = append(cands, candidate{
				rank:  pair.Overlap,
				terms: solver.Sum(za, zb),
				lo:    solver.MinBound,
				hi:    1,
			})
		}
	}
	return b.emitRanked(cands)
}

type minimumGap struct{ phase1Rule }

// Encode forbids start pairs of conflicting exams on the same day that leave
// fewer than gap_slots free slots between them. Overlapping runs are left to
// student_conflict.
func (minimumGap) Encode(b *Builder) error {
	p := b.Problem
	gap := b.IntParam("gap_slots", 1)
	if gap <= 0 {
		return nil
	}
	var cands []candidate
	for _, pair := range p.Conflicts() {
		for _, sa := range p.FeasibleStarts(pair.A) {
			for _, sb := range p.FeasibleStarts(pair.B) {
				if p.SlotDay(sa) != p.SlotDay(sb) {
					continue
				}
				free, ok := slotsBetween(p, pair.A, sa, pair.B, sb)
				if !ok || free >= gap {
					continue
				}
				cands = append(cands, candidate{
					rank:  pair.Overlap,
					terms: solver.Sum(b.p1.x[examSlot{pair.A, sa}], b.p1.x[examSlot{pair.B, sb}]),
					lo:    solver.MinBound,
					hi:    1,
				})
			}
		}
	}
	return b.emitRanked(cands)
}

// slotsBetween counts the free slots separating two same-day runs. It reports
// false when the runs overlap.
func slotsBetween(p *problem.Problem, a, sa, bx, sb int) (int, bool) {
	runA, runB := p.Coverage(a, sa), p.Coverage(bx, sb)
	firstA, lastA := p.SlotPosition(runA[0]), p.SlotPosition(runA[len(runA)-1])
	firstB, lastB := p.SlotPosition(runB[0]), p.SlotPosition(runB[len(runB)-1])
	switch {
	case lastA < firstB:
		return firstB - lastA - 1, true
	case lastB < firstA:
		return firstA - lastB - 1, true
	default:
		return 0, false
	}
}

type maxExamsPerDay struct{ phase1Rule }

// Encode caps each student's starts per day. Students with identical exam
// sets share one group of constraints.
func (maxExamsPerDay) Encode(b *Builder) error {
	p := b.Problem
	limit := b.IntParam("limit", 2)
	if limit <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var groups [][]int
	students := make([]string, 0, len(p.StudentExams()))
	for id := range p.StudentExams() {
		students = append(students, id)
	}
	sort.Strings(students)
	for _, id := range students {
		exams := append([]int(nil), p.StudentExams()[id]...)
		if len(exams) <= limit {
			continue
		}
		sort.Ints(exams)
		key := fmt.Sprint(exams)
		if seen[key] {
			continue
		}
		seen[key] = true
		groups = append(groups, exams)
	}

	for _, exams := range groups {
		for d, day := range p.Days {
			var terms []solver.Term
			present := 0
			for _, ex := range exams {
				counted := false
				for _, s := range p.FeasibleStarts(ex) {
					if p.SlotDay(s) != d {
						continue
					}
					terms = append(terms, solver.T(b.p1.x[examSlot{ex, s}], 1))
					counted = true
				}
				if counted {
					present++
				}
			}
			if present <= limit {
				continue
			}
			b.Demand(1)
			if err := b.AtMost(terms, int64(limit)); err != nil {
				return fmt.Errorf("day %s: %w", day.Date, err)
			}
		}
	}
	return nil
}

type slotCapacityGuard struct{ phase1Rule }

func (slotCapacityGuard) Encode(b *Builder) error {
	p := b.Problem
	total := int64(p.TotalCapacity())
	rooms := int64(p.ActiveRoomCount())
	for s := range p.Slots {
		exams := b.p1.slotExams[s]
		if len(exams) == 0 {
			continue
		}
		var demand int64
		seats := make([]solver.Term, 0, len(exams))
		count := make([]solver.Term, 0, len(exams))
		for _, ex := range exams {
			expected := int64(p.Exams[ex].ExpectedCount)
			demand += expected
			z := b.p1.z[examSlot{ex, s}]
			seats = append(seats, solver.T(z, expected))
			count = append(count, solver.T(z, 1))
		}
		if demand > total {
			b.Demand(1)
			if err := b.AtMost(seats, total); err != nil {
				return err
			}
		}
		if int64(len(exams)) > rooms {
			b.Demand(1)
			if err := b.AtMost(count, rooms); err != nil {
				return err
			}
		}
	}
	return nil
}

type dailyWorkloadBalance struct{ phase1Rule }

// Encode penalises the starts of each day above an even share.
func (dailyWorkloadBalance) Encode(b *Builder) error {
	p := b.Problem
	if len(p.Days) < 2 || b.Weight() == 0 {
		return nil
	}
	n := len(p.Exams)
	share := (n + len(p.Days) - 1) / len(p.Days)
	perDay := make([][]solver.Term, len(p.Days))
	for ex := range p.Exams {
		for _, s := range p.FeasibleStarts(ex) {
			d := p.SlotDay(s)
			perDay[d] = append(perDay[d], solver.T(b.p1.x[examSlot{ex, s}], 1))
		}
	}
	for d, day := range p.Days {
		if len(perDay[d]) <= share {
			continue
		}
		excess := b.Model.NewInt("excess["+day.Date+"]", 0, int64(n))
		b.Demand(1)
		terms := append(perDay[d], solver.T(excess, -1))
		if err := b.AtMost(terms, int64(share)); err != nil {
			return err
		}
		b.Penalize(solver.T(excess, b.Weight()))
	}
	return nil
}

type preferredSlots struct{ phase1Rule }

func (preferredSlots) Encode(b *Builder) error {
	p := b.Problem
	w := b.Weight()
	if w == 0 {
		return nil
	}
	for ex := range p.Exams {
		if !p.HasPreferences(ex) {
			continue
		}
		for _, s := range p.FeasibleStarts(ex) {
			if !p.Preferred(ex, s) {
				b.Penalize(solver.T(b.p1.x[examSlot{ex, s}], w))
			}
		}
	}
	return nil
}

type earlyLargeExams struct{ phase1Rule }

// Encode charges large exams for every day they are pushed back.
func (earlyLargeExams) Encode(b *Builder) error {
	p := b.Problem
	w := b.Weight()
	threshold := b.IntParam("min_students", 100)
	if w == 0 {
		return nil
	}
	for ex, exam := range p.Exams {
		if exam.ExpectedCount < threshold {
			continue
		}
		for _, s := range p.FeasibleStarts(ex) {
			if d := int64(p.SlotDay(s)); d > 0 {
				b.Penalize(solver.T(b.p1.x[examSlot{ex, s}], w*d))
			}
		}
	}
	return nil
}
