package encoder

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
)

type examRoomSlot struct{ exam, room, slot int }

type staffRoomSlot struct{ staff, room, slot int }

type phase2Vars struct {
	day       int
	exams     []int
	cover     map[int][]int
	slotExams map[int][]int
	roomsAt   map[int][]int
	staffAt   map[int][]int
	staff     []int

	y    map[examRoomSlot]solver.VarID
	o    map[examRoomSlot]solver.VarID
	seat map[examRoomSlot]solver.VarID
	w    map[staffRoomSlot]solver.VarID
}

// Phase2Model is the encoded room and invigilator problem of one day.
type Phase2Model struct {
	Model   *solver.Model
	Report  Report
	Day     int
	problem *problem.Problem
	vars    *phase2Vars
}

// RoomPlan is the decoded Phase 2 outcome of one exam.
type RoomPlan struct {
	Rooms []int
	Seats []int
	Staff []int
}

// DaysWithExams lists the days holding at least one start, ascending.
func DaysWithExams(p *problem.Problem, starts map[int]int) []int {
	days := lo.Uniq(lo.MapToSlice(starts, func(_ int, s int) int { return p.SlotDay(s) }))
	sort.Ints(days)
	return days
}

// EncodePhase2 builds the room, seat and invigilator model for the exams that
// start on day. Every slot of the day is encoded together so an exam keeps
// its rooms across its covered slots.
func (e *Encoder) EncodePhase2(p *problem.Problem, starts map[int]int, day int, order []models.ConstraintDefinition, budget Budget) (*Phase2Model, error) {
	if day < 0 || day >= len(p.Days) {
		return nil, buildErr("", "day %d out of range", day)
	}
	vars := &phase2Vars{
		day:       day,
		cover:     make(map[int][]int),
		slotExams: make(map[int][]int),
		roomsAt:   make(map[int][]int),
		staffAt:   make(map[int][]int),
		y:         make(map[examRoomSlot]solver.VarID),
		o:         make(map[examRoomSlot]solver.VarID),
		seat:      make(map[examRoomSlot]solver.VarID),
		w:         make(map[staffRoomSlot]solver.VarID),
	}
	for ex, s := range starts {
		if p.SlotDay(s) == day {
			vars.exams = append(vars.exams, ex)
		}
	}
	sort.Ints(vars.exams)

	model := solver.NewModel(fmt.Sprintf("phase2[%s]", p.Days[day].Date))
	for _, ex := range vars.exams {
		exam := p.Exams[ex]
		start := starts[ex]
		cover := p.Coverage(ex, start)
		if cover == nil {
			return nil, buildErr(constraint.RoomAssignment, "exam %s cannot start at %s", exam.ID, p.Slots[start].ID)
		}
		rooms := p.AllowedRooms(ex)
		if len(rooms) == 0 {
			return nil, buildErr(constraint.RoomAssignment, "exam %s has no allowed room", exam.ID)
		}
		vars.cover[ex] = cover
		split := p.NeedsSplit(ex)
		for _, s := range cover {
			vars.slotExams[s] = append(vars.slotExams[s], ex)
			vars.roomsAt[s] = append(vars.roomsAt[s], rooms...)
			for _, r := range rooms {
				key := examRoomSlot{ex, r, s}
				name := exam.ID + "," + p.Rooms[r].ID + "," + p.Slots[s].ID
				vars.y[key] = model.NewBool("y[" + name + "]")
				if !split {
					continue
				}
				vars.o[key] = model.NewBool("o[" + name + "]")
				vars.seat[key] = model.NewInt("seat["+name+"]", 0, int64(min(p.Capacity(r), exam.ExpectedCount)))
			}
		}
	}
	for s, rooms := range vars.roomsAt {
		rooms = lo.Uniq(rooms)
		sort.Ints(rooms)
		vars.roomsAt[s] = rooms
	}

	needStaff := lo.SomeBy(order, func(d models.ConstraintDefinition) bool {
		return Phase(d.Phase) == Phase2 && d.Category == models.CategoryInvigilator
	})
	if needStaff {
		staffSeen := make(map[int]bool)
		for _, s := range p.Days[day].Slots {
			if len(vars.slotExams[s]) == 0 {
				continue
			}
			for _, i := range p.EligibleStaff() {
				if !p.StaffAvailable(i, s) {
					continue
				}
				vars.staffAt[s] = append(vars.staffAt[s], i)
				staffSeen[i] = true
				for _, r := range vars.roomsAt[s] {
					name := p.Staff[i].ID + "," + p.Rooms[r].ID + "," + p.Slots[s].ID
					vars.w[staffRoomSlot{i, r, s}] = model.NewBool("w[" + name + "]")
				}
			}
		}
		vars.staff = lo.Keys(staffSeen)
		sort.Ints(vars.staff)
	}

	b := &Builder{Problem: p, Model: model, Settings: e.settings, p2: vars, budget: budget}
	report := Report{Phase: Phase2, Day: day}
	if err := b.run(e.table, Phase2, order, &report); err != nil {
		return nil, err
	}
	return &Phase2Model{Model: model, Report: report, Day: day, problem: p, vars: vars}, nil
}

// Y returns the primary-room variable of exam in room during slot.
func (m *Phase2Model) Y(exam, room, slot int) (solver.VarID, bool) {
	v, ok := m.vars.y[examRoomSlot{exam, room, slot}]
	return v, ok
}

// Exams lists the exams encoded in this model.
func (m *Phase2Model) Exams() []int { return m.vars.exams }

// Decode reads rooms, seats and invigilators per exam. Rooms that ended up
// seating nobody are dropped, primary ones included.
func (m *Phase2Model) Decode(res *solver.Result) (map[int]RoomPlan, error) {
	if !res.HasSolution() {
		return nil, fmt.Errorf("phase 2 result for day %d has no solution (status %s)", m.Day, res.Status)
	}
	p := m.problem
	out := make(map[int]RoomPlan, len(m.vars.exams))
	for _, ex := range m.vars.exams {
		cover := m.vars.cover[ex]
		first := cover[0]
		var plan RoomPlan
		var overflowRooms, overflowSeats []int
		for _, r := range p.AllowedRooms(ex) {
			key := examRoomSlot{ex, r, first}
			primary := res.Bool(m.vars.y[key])
			overflow := false
			if v, ok := m.vars.o[key]; ok {
				overflow = res.Bool(v)
			}
			if !primary && !overflow {
				continue
			}
			seats := p.Exams[ex].ExpectedCount
			if v, ok := m.vars.seat[key]; ok {
				seats = int(res.Value(v))
			}
			if seats <= 0 {
				continue
			}
			if primary {
				plan.Rooms = append(plan.Rooms, r)
				plan.Seats = append(plan.Seats, seats)
			} else {
				overflowRooms = append(overflowRooms, r)
				overflowSeats = append(overflowSeats, seats)
			}
		}
		plan.Rooms = append(plan.Rooms, overflowRooms...)
		plan.Seats = append(plan.Seats, overflowSeats...)

		staff := make(map[int]bool)
		for _, s := range cover {
			for _, r := range plan.Rooms {
				for _, i := range m.vars.staffAt[s] {
					if v, ok := m.vars.w[staffRoomSlot{i, r, s}]; ok && res.Bool(v) {
						staff[i] = true
					}
				}
			}
		}
		plan.Staff = lo.Keys(staff)
		sort.Ints(plan.Staff)
		out[ex] = plan
	}
	return out, nil
}

// Assemble merges Phase 1 starts with decoded Phase 2 placements.
func Assemble(p *problem.Problem, starts map[int]int, rooms map[int]RoomPlan) problem.Plan {
	plan := p.NewPlan()
	for ex, s := range starts {
		rp := rooms[ex]
		plan[ex] = problem.Placement{Start: s, Rooms: rp.Rooms, Seats: rp.Seats, Staff: rp.Staff}
	}
	return plan
}

// seatTerms expresses the seats exam uses in room during slot.
func (b *Builder) seatTerms(ex, r, s int, coef int64) []solver.Term {
	key := examRoomSlot{ex, r, s}
	if v, ok := b.p2.seat[key]; ok {
		return []solver.Term{solver.T(v, coef)}
	}
	return []solver.Term{solver.T(b.p2.y[key], coef*int64(b.Problem.Exams[ex].ExpectedCount))}
}

func (b *Builder) examsUsing(r, s int) []int {
	var out []int
	for _, ex := range b.p2.slotExams[s] {
		if _, ok := b.p2.y[examRoomSlot{ex, r, s}]; ok {
			out = append(out, ex)
		}
	}
	return out
}

// --- Phase 2 hard modules ---

type roomAssignment struct{ phase2Rule }

func (roomAssignment) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	maxRooms := b.Settings.MaxSplitRooms
	for _, ex := range v.exams {
		rooms := p.AllowedRooms(ex)
		split := p.NeedsSplit(ex)
		for k, s := range v.cover[ex] {
			primary := make([]solver.Term, 0, len(rooms))
			used := make([]solver.Term, 0, 2*len(rooms))
			for _, r := range rooms {
				key := examRoomSlot{ex, r, s}
				primary = append(primary, solver.T(v.y[key], 1))
				used = append(used, solver.T(v.y[key], 1))
				if !split {
					continue
				}
				used = append(used, solver.T(v.o[key], 1))
				b.Demand(1)
				if err := b.AtMost(solver.Sum(v.y[key], v.o[key]), 1); err != nil {
					return err
				}
			}
			b.Demand(1)
			if err := b.Equal(primary, 1); err != nil {
				return err
			}
			if split && maxRooms > 0 && k == 0 && len(rooms) > maxRooms {
				b.Demand(1)
				if err := b.AtMost(used, int64(maxRooms)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type roomCapacity struct{ phase2Rule }

func (roomCapacity) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	for _, ex := range v.exams {
		if !p.NeedsSplit(ex) {
			continue
		}
		for _, s := range v.cover[ex] {
			total := make([]solver.Term, 0, len(p.AllowedRooms(ex)))
			for _, r := range p.AllowedRooms(ex) {
				key := examRoomSlot{ex, r, s}
				c := int64(p.Capacity(r))
				b.Demand(1)
				if err := b.AtMost([]solver.Term{solver.T(v.seat[key], 1), solver.T(v.y[key], -c), solver.T(v.o[key], -c)}, 0); err != nil {
					return err
				}
				total = append(total, solver.T(v.seat[key], 1))
			}
			b.Demand(1)
			if err := b.Equal(total, int64(p.Exams[ex].ExpectedCount)); err != nil {
				return err
			}
		}
	}
	for _, s := range p.Days[v.day].Slots {
		for _, r := range v.roomsAt[s] {
			exams := b.examsUsing(r, s)
			worst := 0
			var terms []solver.Term
			for _, ex := range exams {
				if p.NeedsSplit(ex) {
					worst += min(p.Exams[ex].ExpectedCount, p.Capacity(r))
				} else {
					worst += p.Exams[ex].ExpectedCount
				}
				terms = append(terms, b.seatTerms(ex, r, s, 1)...)
			}
			if worst <= p.Capacity(r) {
				continue
			}
			b.Demand(1)
			if err := b.AtMost(terms, int64(p.Capacity(r))); err != nil {
				return err
			}
		}
	}
	return nil
}

type roomContinuity struct{ phase2Rule }

func (roomContinuity) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	for _, ex := range v.exams {
		cover := v.cover[ex]
		for k := 0; k+1 < len(cover); k++ {
			for _, r := range p.AllowedRooms(ex) {
				cur, next := examRoomSlot{ex, r, cover[k]}, examRoomSlot{ex, r, cover[k+1]}
				pairs := [][2]solver.VarID{{v.y[cur], v.y[next]}}
				if p.NeedsSplit(ex) {
					pairs = append(pairs, [2]solver.VarID{v.o[cur], v.o[next]}, [2]solver.VarID{v.seat[cur], v.seat[next]})
				}
				for _, pair := range pairs {
					b.Demand(1)
					if err := b.Equal([]solver.Term{solver.T(pair[0], 1), solver.T(pair[1], -1)}, 0); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

type invigilatorSingleRoom struct{ phase2Rule }

func (invigilatorSingleRoom) Encode(b *Builder) error {
	v := b.p2
	for _, s := range b.Problem.Days[v.day].Slots {
		rooms := v.roomsAt[s]
		if len(rooms) < 2 {
			continue
		}
		for _, i := range v.staffAt[s] {
			terms := make([]solver.Term, 0, len(rooms))
			for _, r := range rooms {
				terms = append(terms, solver.T(v.w[staffRoomSlot{i, r, s}], 1))
			}
			b.Demand(1)
			if err := b.AtMost(terms, 1); err != nil {
				return err
			}
		}
	}
	return nil
}

type minimumInvigilators struct{ phase2Rule }

// Encode requires one invigilator per students_per_invigilator seated
// students in every used room.
func (minimumInvigilators) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	if len(p.EligibleStaff()) == 0 {
		if b.Settings.RequireInvigilators && len(v.exams) > 0 {
			return buildErr(constraint.MinimumInvigilators, "no eligible invigilators")
		}
		return nil
	}
	per := int64(b.IntParam("students_per_invigilator", 50))
	if per <= 0 {
		return nil
	}
	for _, s := range p.Days[v.day].Slots {
		for _, r := range v.roomsAt[s] {
			var terms []solver.Term
			for _, i := range v.staffAt[s] {
				terms = append(terms, solver.T(v.w[staffRoomSlot{i, r, s}], per))
			}
			for _, ex := range b.examsUsing(r, s) {
				terms = append(terms, b.seatTerms(ex, r, s, -1)...)
			}
			b.Demand(1)
			if err := b.AtLeast(terms, 0); err != nil {
				return err
			}
		}
	}
	return nil
}

type instructorExclusion struct{ phase2Rule }

func (instructorExclusion) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	for _, ex := range v.exams {
		for _, i := range p.Instructors(ex) {
			for _, s := range v.cover[ex] {
				for _, r := range p.AllowedRooms(ex) {
					w, ok := v.w[staffRoomSlot{i, r, s}]
					if !ok {
						continue
					}
					key := examRoomSlot{ex, r, s}
					terms := solver.Sum(w, v.y[key])
					if o, split := v.o[key]; split {
						terms = append(terms, solver.T(o, 1))
					}
					b.Demand(1)
					if err := b.AtMost(terms, 1); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

type invigilatorBackToBack struct{ phase2Rule }

// Encode stops an invigilator from moving rooms between adjacent slots. Staying
// in the same room for a different exam in the next slot is allowed. The
// busiest slot pairs are kept first when the budget trims.
func (invigilatorBackToBack) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	var cands []candidate
	for _, s := range p.Days[v.day].Slots {
		next := p.NextSlot(s)
		if next < 0 || len(v.staffAt[s]) == 0 || len(v.staffAt[next]) == 0 {
			continue
		}
		load := 0
		for _, ex := range v.slotExams[s] {
			load += p.Exams[ex].ExpectedCount
		}
		for _, ex := range v.slotExams[next] {
			load += p.Exams[ex].ExpectedCount
		}
		for _, i := range v.staffAt[s] {
			for _, r := range v.roomsAt[s] {
				terms := []solver.Term{solver.T(v.w[staffRoomSlot{i, r, s}], 1)}
				for _, r2 := range v.roomsAt[next] {
					if w2, ok := v.w[staffRoomSlot{i, r2, next}]; ok && r2 != r {
						terms = append(terms, solver.T(w2, 1))
					}
				}
				if len(terms) < 2 {
					continue
				}
				cands = append(cands, candidate{rank: load, terms: terms, lo: solver.MinBound, hi: 1})
			}
		}
	}
	return b.emitRanked(cands)
}

type invigilatorDailyLimit struct{ phase2Rule }

// Encode applies each invigilator's sessions-per-day and consecutive-slot caps.
func (invigilatorDailyLimit) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	slots := p.Days[v.day].Slots
	for _, i := range v.staff {
		st := p.Staff[i]
		perSlot := make([][]solver.Term, len(slots))
		busy := 0
		for k, s := range slots {
			for _, r := range v.roomsAt[s] {
				if w, ok := v.w[staffRoomSlot{i, r, s}]; ok {
					perSlot[k] = append(perSlot[k], solver.T(w, 1))
				}
			}
			if len(perSlot[k]) > 0 {
				busy++
			}
		}
		if st.MaxSessionsPerDay > 0 && busy > st.MaxSessionsPerDay {
			b.Demand(1)
			if err := b.AtMost(lo.Flatten(perSlot), int64(st.MaxSessionsPerDay)); err != nil {
				return err
			}
		}
		window := st.MaxConsecutive + 1
		if st.MaxConsecutive <= 0 || window > len(slots) {
			continue
		}
		for k := 0; k+window <= len(slots); k++ {
			run := perSlot[k : k+window]
			if lo.CountBy(run, func(t []solver.Term) bool { return len(t) > 0 }) < window {
				continue
			}
			b.Demand(1)
			if err := b.AtMost(lo.Flatten(run), int64(st.MaxConsecutive)); err != nil {
				return err
			}
		}
	}
	return nil
}

// --- Phase 2 soft modules ---

type roomWaste struct{ phase2Rule }

func (roomWaste) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	w := b.Weight()
	if w == 0 {
		return nil
	}
	for _, ex := range v.exams {
		expected := p.Exams[ex].ExpectedCount
		for _, s := range v.cover[ex] {
			for _, r := range p.AllowedRooms(ex) {
				key := examRoomSlot{ex, r, s}
				c := int64(p.Capacity(r))
				if seat, ok := v.seat[key]; ok {
					b.Penalize(solver.T(v.y[key], w*c), solver.T(v.o[key], w*c), solver.T(seat, -w))
					continue
				}
				if waste := c - int64(expected); waste > 0 {
					b.Penalize(solver.T(v.y[key], w*waste))
				}
			}
		}
	}
	return nil
}

type instructorAdjacency struct{ phase2Rule }

// Encode discourages instructors from invigilating while their own exam runs.
func (instructorAdjacency) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	weight := b.Weight()
	if weight == 0 {
		return nil
	}
	for _, ex := range v.exams {
		for _, i := range p.Instructors(ex) {
			for _, s := range v.cover[ex] {
				for _, r := range v.roomsAt[s] {
					if w, ok := v.w[staffRoomSlot{i, r, s}]; ok {
						b.Penalize(solver.T(w, weight))
					}
				}
			}
		}
	}
	return nil
}

type invigilatorBalance struct{ phase2Rule }

// Encode minimises the largest number of sessions given to one invigilator.
func (invigilatorBalance) Encode(b *Builder) error {
	p, v := b.Problem, b.p2
	if b.Weight() == 0 || len(v.staff) == 0 {
		return nil
	}
	slots := p.Days[v.day].Slots
	loads := make([][]solver.Term, len(v.staff))
	widest := 0
	for k, i := range v.staff {
		for _, s := range slots {
			for _, r := range v.roomsAt[s] {
				if w, ok := v.w[staffRoomSlot{i, r, s}]; ok {
					loads[k] = append(loads[k], solver.T(w, 1))
				}
			}
		}
		widest = max(widest, len(loads[k]))
	}
	peak := b.Model.NewInt("max_load["+p.Days[v.day].Date+"]", 0, int64(widest))
	for _, terms := range loads {
		b.Demand(1)
		if err := b.AtMost(append(terms, solver.T(peak, -1)), 0); err != nil {
			return err
		}
	}
	b.Penalize(solver.T(peak, b.Weight()))
	return nil
}
