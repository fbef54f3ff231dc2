package problem

import (
	"sort"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// Placement is the index form of an exam assignment. Start is -1 while the
// exam is unscheduled; Seats runs parallel to Rooms.
type Placement struct {
	Start int
	Rooms []int
	Seats []int
	Staff []int
}

// Scheduled reports whether the placement has a start slot.
func (pl Placement) Scheduled() bool { return pl.Start >= 0 }

// Clone returns a deep copy.
func (pl Placement) Clone() Placement {
	return Placement{
		Start: pl.Start,
		Rooms: append([]int(nil), pl.Rooms...),
		Seats: append([]int(nil), pl.Seats...),
		Staff: append([]int(nil), pl.Staff...),
	}
}

// Plan holds one placement per exam, indexed like Problem.Exams.
type Plan []Placement

// NewPlan returns a plan with every exam unscheduled.
func (p *Problem) NewPlan() Plan {
	plan := make(Plan, len(p.Exams))
	for i := range plan {
		plan[i].Start = -1
	}
	return plan
}

// Clone returns a deep copy of the plan.
func (plan Plan) Clone() Plan {
	out := make(Plan, len(plan))
	for i, pl := range plan {
		out[i] = pl.Clone()
	}
	return out
}

// Occupied returns the slots covered by exam when started at start. Starts that
// are not feasible occupy only themselves so they can still be reported.
func (p *Problem) Occupied(exam, start int) []int {
	if start < 0 {
		return nil
	}
	if run := p.Coverage(exam, start); run != nil {
		return run
	}
	return []int{start}
}

// PlanFromSolution converts a persisted solution into its index form. Ids that
// do not resolve are returned as unknown_reference violations.
func (p *Problem) PlanFromSolution(sol models.Solution) (Plan, []Violation) {
	plan := p.NewPlan()
	var unknown []Violation
	for _, examID := range sol.ExamIDs() {
		a := sol.Assignments[examID]
		e, ok := p.examIdx[examID]
		if !ok {
			unknown = append(unknown, Violation{Type: ViolationUnknownReference, Exams: []string{examID}, Detail: "unknown exam"})
			continue
		}
		if a.StartSlotID == "" {
			continue
		}
		start, ok := p.slotIdx[a.StartSlotID]
		if !ok {
			unknown = append(unknown, Violation{Type: ViolationUnknownReference, Exams: []string{examID}, SlotID: a.StartSlotID, Detail: "unknown slot"})
			continue
		}
		pl := Placement{Start: start}
		for _, roomID := range a.RoomIDs {
			r, ok := p.roomIdx[roomID]
			if !ok {
				unknown = append(unknown, Violation{Type: ViolationUnknownReference, Exams: []string{examID}, RoomID: roomID, Detail: "unknown room"})
				continue
			}
			pl.Rooms = append(pl.Rooms, r)
			pl.Seats = append(pl.Seats, a.RoomSeats[roomID])
		}
		p.fillSeats(e, &pl, a.RoomSeats == nil)
		for _, staffID := range a.InvigilatorIDs {
			i, ok := p.staffIdx[staffID]
			if !ok {
				unknown = append(unknown, Violation{Type: ViolationUnknownReference, Exams: []string{examID}, StaffID: staffID, Detail: "unknown invigilator"})
				continue
			}
			pl.Staff = append(pl.Staff, i)
		}
		plan[e] = pl
	}
	return plan, unknown
}

// fillSeats distributes the expected count over rooms when seats were not recorded.
func (p *Problem) fillSeats(exam int, pl *Placement, missing bool) {
	if !missing || len(pl.Rooms) == 0 {
		return
	}
	pl.Seats = p.SeatsFor(exam, pl.Rooms)
}

// SeatsFor spreads the expected count of exam over rooms in order, filling
// each room to capacity. The last room takes whatever remains.
func (p *Problem) SeatsFor(exam int, rooms []int) []int {
	seats := make([]int, len(rooms))
	remaining := p.Exams[exam].ExpectedCount
	for i, r := range rooms {
		take := p.capacity[r]
		if take > remaining || i == len(rooms)-1 {
			take = remaining
		}
		seats[i] = take
		remaining -= take
	}
	return seats
}

// ToSolution converts a plan back into the persisted form.
func (p *Problem) ToSolution(plan Plan, status models.SolverStatus) models.Solution {
	sol := models.NewSolution(status)
	for e, pl := range plan {
		if !pl.Scheduled() {
			continue
		}
		exam := p.Exams[e]
		a := models.ExamAssignment{
			ExamID:      exam.ID,
			StartSlotID: p.Slots[pl.Start].ID,
			RoomSeats:   make(map[string]int, len(pl.Rooms)),
		}
		for _, s := range p.Occupied(e, pl.Start) {
			a.SlotIDs = append(a.SlotIDs, p.Slots[s].ID)
		}
		for i, r := range pl.Rooms {
			id := p.Rooms[r].ID
			a.RoomIDs = append(a.RoomIDs, id)
			a.RoomSeats[id] = pl.Seats[i]
		}
		for _, i := range pl.Staff {
			a.InvigilatorIDs = append(a.InvigilatorIDs, p.Staff[i].ID)
		}
		sol.Assignments[exam.ID] = a
	}
	return sol
}

// --- Occupancy ---

type roomSlot struct{ room, slot int }

type staffSlot struct{ staff, slot int }

// Occupancy tracks who uses which room, slot and invigilator for a plan.
type Occupancy struct {
	p         *Problem
	plan      Plan
	slotExams [][]int
	seats     map[roomSlot]int
	staffAt   map[staffSlot][]int
	staffLoad []int
	rules     Rules
}

// NewOccupancy indexes every scheduled exam of plan except those in skip.
func (p *Problem) NewOccupancy(plan Plan, skip ...int) *Occupancy {
	o := &Occupancy{
		p:         p,
		plan:      plan,
		slotExams: make([][]int, len(p.Slots)),
		seats:     make(map[roomSlot]int),
		staffAt:   make(map[staffSlot][]int),
		staffLoad: make([]int, len(p.Staff)),
	}
	skipped := make(map[int]bool, len(skip))
	for _, e := range skip {
		skipped[e] = true
	}
	for e, pl := range plan {
		if pl.Scheduled() && !skipped[e] {
			o.Add(e, pl)
		}
	}
	return o
}

// Add records a placement for exam.
func (o *Occupancy) Add(exam int, pl Placement) {
	o.plan[exam] = pl
	for _, s := range o.p.Occupied(exam, pl.Start) {
		o.slotExams[s] = append(o.slotExams[s], exam)
		for i, r := range pl.Rooms {
			o.seats[roomSlot{r, s}] += pl.Seats[i]
		}
		for _, st := range pl.Staff {
			key := staffSlot{st, s}
			o.staffAt[key] = append(o.staffAt[key], exam)
			o.staffLoad[st]++
		}
	}
}

// Remove forgets the placement of exam.
func (o *Occupancy) Remove(exam int) {
	pl := o.plan[exam]
	if !pl.Scheduled() {
		return
	}
	for _, s := range o.p.Occupied(exam, pl.Start) {
		o.slotExams[s] = removeOnce(o.slotExams[s], exam)
		for i, r := range pl.Rooms {
			o.seats[roomSlot{r, s}] -= pl.Seats[i]
		}
		for _, st := range pl.Staff {
			key := staffSlot{st, s}
			o.staffAt[key] = removeOnce(o.staffAt[key], exam)
			o.staffLoad[st]--
		}
	}
	o.plan[exam] = Placement{Start: -1}
}

func removeOnce(items []int, v int) []int {
	for i, x := range items {
		if x == v {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}

// ExamsIn returns exams occupying slot.
func (o *Occupancy) ExamsIn(slot int) []int { return o.slotExams[slot] }

// Seated returns students seated in room during slot.
func (o *Occupancy) Seated(room, slot int) int { return o.seats[roomSlot{room, slot}] }

// FreeSeats returns the remaining effective capacity of room during slot.
func (o *Occupancy) FreeSeats(room, slot int) int {
	return o.p.capacity[room] - o.seats[roomSlot{room, slot}]
}

// StaffLoad returns the number of slots staff is assigned to.
func (o *Occupancy) StaffLoad(staff int) int { return o.staffLoad[staff] }

// Placement returns the tracked placement of exam.
func (o *Occupancy) Placement(exam int) Placement { return o.plan[exam] }

// StudentClashes returns exams sharing a normal student with exam that occupy
// any of slots.
func (o *Occupancy) StudentClashes(exam int, slots []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, s := range slots {
		for _, other := range o.slotExams[s] {
			if other == exam || seen[other] {
				continue
			}
			if o.p.Overlap(exam, other) > 0 {
				seen[other] = true
				out = append(out, other)
			}
		}
	}
	sort.Ints(out)
	return out
}

// StaffClash returns an exam already using staff during one of slots in a room
// other than rooms, or -1.
func (o *Occupancy) StaffClash(staff, exam int, slots, rooms []int) int {
	for _, s := range slots {
		for _, other := range o.staffAt[staffSlot{staff, s}] {
			if other == exam {
				continue
			}
			if !sharesRoom(o.plan[other].Rooms, rooms) {
				return other
			}
		}
	}
	return -1
}

func sharesRoom(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// --- Placement helpers shared by refinement and repair ---

// Clean reports whether pl breaks no hard rule against the exams tracked by o:
// a feasible start, no shared students, enough seats in every room and
// invigilators that are available and not watching another room. Enforced
// rules are checked as well.
func (o *Occupancy) Clean(exam int, pl Placement) bool {
	slots := o.p.Coverage(exam, pl.Start)
	if slots == nil || len(o.StudentClashes(exam, slots)) > 0 {
		return false
	}
	if len(o.GapClashes(exam, pl.Start)) > 0 || o.DayFull(exam, o.p.slotDay[pl.Start]) {
		return false
	}
	seated := 0
	for i, r := range pl.Rooms {
		seated += pl.Seats[i]
		for _, s := range slots {
			if o.FreeSeats(r, s) < pl.Seats[i] {
				return false
			}
		}
	}
	if seated < o.p.Exams[exam].ExpectedCount {
		return false
	}
	for _, st := range pl.Staff {
		for _, s := range slots {
			if !o.p.StaffAvailable(st, s) {
				return false
			}
		}
		if o.StaffClash(st, exam, slots, pl.Rooms) >= 0 || !o.staffFits(st, exam, slots, pl.Rooms) {
			return false
		}
	}
	return true
}

// PlaceRooms picks rooms among candidates that seat exam in every slot. A
// single room with the tightest fit wins; split exams fall back to filling the
// largest free rooms first. Candidates default to the allowed rooms.
func (o *Occupancy) PlaceRooms(exam int, slots, candidates []int) ([]int, []int, bool) {
	if candidates == nil {
		candidates = o.p.allowedRooms[exam]
	}
	expected := o.p.Exams[exam].ExpectedCount
	free := make(map[int]int, len(candidates))
	for _, r := range candidates {
		lowest := o.p.capacity[r]
		for _, s := range slots {
			if f := o.FreeSeats(r, s); f < lowest {
				lowest = f
			}
		}
		free[r] = lowest
	}

	best := -1
	for _, r := range candidates {
		if free[r] < expected {
			continue
		}
		if best < 0 || free[r] < free[best] {
			best = r
		}
	}
	if best >= 0 {
		return []int{best}, []int{expected}, true
	}
	if !o.p.Exams[exam].AllowSplit {
		return nil, nil, false
	}

	ordered := append([]int(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool { return free[ordered[i]] > free[ordered[j]] })
	var rooms, seats []int
	remaining := expected
	for _, r := range ordered {
		if remaining <= 0 {
			break
		}
		if free[r] <= 0 {
			continue
		}
		take := free[r]
		if take > remaining {
			take = remaining
		}
		rooms = append(rooms, r)
		seats = append(seats, take)
		remaining -= take
	}
	if remaining > 0 {
		return nil, nil, false
	}
	return rooms, seats, true
}

// PickStaff chooses invigilators for a placement: eligible, available in every
// slot, not teaching the exam and not busy elsewhere. Least loaded staff are
// preferred. It returns false when fewer than needed are free.
func (o *Occupancy) PickStaff(exam int, slots, rooms []int, needed int) ([]int, bool) {
	if needed <= 0 {
		return nil, true
	}
	teaching := make(map[int]bool)
	for _, i := range o.p.instructors[exam] {
		teaching[i] = true
	}
	var candidates []int
	for _, i := range o.p.eligibleStaff {
		if teaching[i] {
			continue
		}
		ok := true
		for _, s := range slots {
			if !o.p.StaffAvailable(i, s) {
				ok = false
				break
			}
		}
		if ok && o.StaffClash(i, exam, slots, rooms) < 0 && o.staffFits(i, exam, slots, rooms) {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return o.staffLoad[candidates[a]] < o.staffLoad[candidates[b]]
	})
	if len(candidates) < needed {
		return candidates, false
	}
	return candidates[:needed], true
}
