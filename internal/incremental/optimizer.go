package incremental

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

// OutcomeStatus classifies the result of an edit.
type OutcomeStatus string

const (
	OutcomeApplied  OutcomeStatus = "applied"
	OutcomeRejected OutcomeStatus = "rejected"
	OutcomeInvalid  OutcomeStatus = "invalid"
)

// Outcome is the explicit result of Apply. Solution is only set when the edit
// was applied.
type Outcome struct {
	Status           OutcomeStatus           `json:"status"`
	Solution         models.Solution         `json:"-"`
	Conflicts        []models.Conflict       `json:"conflicts"`
	Suggestions      []models.Suggestion     `json:"suggestions,omitempty"`
	Impact           models.ImpactSummary    `json:"impact"`
	Diffs            []models.AssignmentDiff `json:"diffs"`
	ValidationErrors []string                `json:"validation_errors,omitempty"`
}

// Applied reports whether the edit produced a new state.
func (o Outcome) Applied() bool { return o.Status == OutcomeApplied }

// Options tune automatic resolution.
type Options struct {
	StudentsPerInvigilator int
	// Rules are reported in the metrics of an applied edit.
	Rules problem.Rules
}

// Optimizer applies edits against one problem.
type Optimizer struct {
	p      *problem.Problem
	opts   Options
	logger *zap.Logger
}

// New constructs an optimizer.
func New(p *problem.Problem, opts Options, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StudentsPerInvigilator <= 0 {
		opts.StudentsPerInvigilator = 50
	}
	return &Optimizer{p: p, opts: opts, logger: logger}
}

// Apply validates edit, applies it to a copy of state and repairs the
// conflicts it causes. state itself is never modified.
func (o *Optimizer) Apply(state models.Solution, edit Edit) Outcome {
	res, errs := validate(o.p, edit)
	if len(errs) > 0 {
		return Outcome{Status: OutcomeInvalid, ValidationErrors: errs}
	}
	before, unknown := o.p.PlanFromSolution(state)
	if len(unknown) > 0 {
		return Outcome{Status: OutcomeInvalid, ValidationErrors: lo.Map(unknown, func(v problem.Violation, _ int) string {
			return fmt.Sprintf("current timetable has %s for %s", v.Detail, strings.Join(v.Exams, ","))
		})}
	}

	ex := res.exam
	pl := before[ex].Clone()
	if res.start >= 0 {
		pl.Start = res.start
	}
	explicitRooms := len(res.rooms) > 0
	if explicitRooms {
		pl.Rooms, pl.Seats = res.rooms, res.seats
	}
	explicitStaff := len(res.staff) > 0
	if explicitStaff {
		pl.Staff = res.staff
	}
	if !pl.Scheduled() {
		return Outcome{Status: OutcomeInvalid, ValidationErrors: []string{
			fmt.Sprintf("exam %s has no slot; include slot_id in the edit", edit.ExamID),
		}}
	}

	after := before.Clone()
	occ := o.p.NewOccupancy(after, ex)
	initial := o.detect(occ, ex, pl)

	if lo.ContainsBy(initial, func(c models.Conflict) bool { return c.Type == models.ConflictStudent }) {
		occ.Add(ex, pl)
		for _, other := range lo.Uniq(lo.FilterMap(initial, func(c models.Conflict, _ int) (int, bool) {
			if c.Type != models.ConflictStudent {
				return 0, false
			}
			idx, _ := o.p.ExamIndex(c.OtherExamID)
			return idx, true
		})) {
			o.relocate(occ, other)
		}
		occ.Remove(ex)
	}
	if !explicitRooms && o.needsRooms(occ, ex, pl) {
		slots := o.p.Coverage(ex, pl.Start)
		if rooms, seats, ok := occ.PlaceRooms(ex, slots, nil); ok {
			pl.Rooms, pl.Seats = rooms, seats
		}
	}
	switch {
	case explicitStaff:
	case !before[ex].Scheduled() && len(pl.Rooms) > 0:
		pl.Staff, _ = occ.PickStaff(ex, o.p.Coverage(ex, pl.Start), pl.Rooms, o.staffNeeded(pl.Seats))
	default:
		pl.Staff = o.repairStaff(occ, ex, pl)
	}

	remaining := o.detect(occ, ex, pl)
	conflicts := markResolved(initial, remaining)
	if len(remaining) > 0 {
		o.logger.Debug("edit rejected",
			zap.String("exam_id", edit.ExamID),
			zap.Int("conflicts", len(remaining)),
		)
		return Outcome{
			Status:      OutcomeRejected,
			Conflicts:   conflicts,
			Suggestions: o.suggest(before, ex, pl, remaining),
			Diffs:       []models.AssignmentDiff{},
		}
	}

	occ.Add(ex, pl)
	diffs, impact := o.compare(before, after, ex)
	for i := range conflicts {
		if conflicts[i].Type == models.ConflictStudent && conflicts[i].Resolved {
			other, _ := o.p.ExamIndex(conflicts[i].OtherExamID)
			conflicts[i].Resolution = fmt.Sprintf("moved %s to %s", conflicts[i].OtherExamID, o.p.Slots[after[other].Start].ID)
		}
	}

	sol := o.p.ToSolution(after, state.Status)
	sol.Objective = state.Objective
	sol.Refined = state.Refined
	sol.Metrics = o.p.Check(after, o.opts.Rules).Metrics
	return Outcome{
		Status:    OutcomeApplied,
		Solution:  sol,
		Conflicts: conflicts,
		Impact:    impact,
		Diffs:     diffs,
	}
}

// --- Detection ---

// detect lists the hard rules pl breaks against the exams tracked by occ,
// which must not contain ex.
func (o *Optimizer) detect(occ *problem.Occupancy, ex int, pl problem.Placement) []models.Conflict {
	p := o.p
	exam := p.Exams[ex]
	slots := p.Coverage(ex, pl.Start)
	var out []models.Conflict

	for _, other := range occ.StudentClashes(ex, slots) {
		shared := p.SharedStudents(ex, other)
		out = append(out, models.Conflict{
			Type:        models.ConflictStudent,
			ExamID:      exam.ID,
			OtherExamID: p.Exams[other].ID,
			SlotID:      p.Slots[firstSharedSlot(occ, other, slots)].ID,
			StudentIDs:  shared,
			Message:     fmt.Sprintf("%s and %s share %d students", exam.ID, p.Exams[other].ID, len(shared)),
		})
	}

	seated := 0
	for i, r := range pl.Rooms {
		seated += pl.Seats[i]
		room := p.Rooms[r]
		if pl.Seats[i] > p.Capacity(r) {
			out = append(out, models.Conflict{
				Type:    models.ConflictCapacity,
				ExamID:  exam.ID,
				RoomID:  room.ID,
				Message: fmt.Sprintf("room %s holds %d but %d students were assigned", room.ID, p.Capacity(r), pl.Seats[i]),
			})
			continue
		}
		for _, s := range slots {
			if occ.Seated(r, s)+pl.Seats[i] <= p.Capacity(r) {
				continue
			}
			out = append(out, models.Conflict{
				Type:        models.ConflictRoomDoubleBooking,
				ExamID:      exam.ID,
				OtherExamID: examUsing(occ, p, r, s),
				RoomID:      room.ID,
				SlotID:      p.Slots[s].ID,
				Message:     fmt.Sprintf("room %s has %d free seats in %s, %d needed", room.ID, occ.FreeSeats(r, s), p.Slots[s].ID, pl.Seats[i]),
			})
			break
		}
	}
	if seated < exam.ExpectedCount {
		out = append(out, models.Conflict{
			Type:    models.ConflictCapacity,
			ExamID:  exam.ID,
			Message: fmt.Sprintf("%d of %d students seated", seated, exam.ExpectedCount),
		})
	}

	for _, st := range pl.Staff {
		staff := p.Staff[st]
		for _, s := range slots {
			if !p.StaffAvailable(st, s) {
				out = append(out, models.Conflict{
					Type:    models.ConflictStaffDoubleBooked,
					ExamID:  exam.ID,
					StaffID: staff.ID,
					SlotID:  p.Slots[s].ID,
					Message: fmt.Sprintf("%s is unavailable in %s", staff.ID, p.Slots[s].ID),
				})
				break
			}
		}
		if other := occ.StaffClash(st, ex, slots, pl.Rooms); other >= 0 {
			out = append(out, models.Conflict{
				Type:        models.ConflictStaffDoubleBooked,
				ExamID:      exam.ID,
				OtherExamID: p.Exams[other].ID,
				StaffID:     staff.ID,
				Message:     fmt.Sprintf("%s already invigilates %s", staff.ID, p.Exams[other].ID),
			})
		}
	}
	return out
}

func firstSharedSlot(occ *problem.Occupancy, other int, slots []int) int {
	for _, s := range slots {
		if lo.Contains(occ.ExamsIn(s), other) {
			return s
		}
	}
	return slots[0]
}

func examUsing(occ *problem.Occupancy, p *problem.Problem, room, slot int) string {
	for _, e := range occ.ExamsIn(slot) {
		if lo.Contains(occ.Placement(e).Rooms, room) {
			return p.Exams[e].ID
		}
	}
	return ""
}

func conflictKey(c models.Conflict) string {
	return strings.Join([]string{string(c.Type), c.OtherExamID, c.RoomID, c.StaffID}, "|")
}

// markResolved flags initial conflicts that no longer hold and appends the
// ones introduced by the repair.
func markResolved(initial, remaining []models.Conflict) []models.Conflict {
	left := lo.SliceToMap(remaining, func(c models.Conflict) (string, bool) { return conflictKey(c), true })
	seen := make(map[string]bool, len(initial))
	out := make([]models.Conflict, 0, len(initial)+len(remaining))
	for _, c := range initial {
		key := conflictKey(c)
		seen[key] = true
		c.Resolved = !left[key]
		out = append(out, c)
	}
	for _, c := range remaining {
		if !seen[conflictKey(c)] {
			out = append(out, c)
		}
	}
	return out
}

// --- Resolution ---

// relocate moves other to the first feasible start where it clashes with
// nobody, keeping its rooms and invigilators when they still fit.
func (o *Optimizer) relocate(occ *problem.Occupancy, other int) bool {
	p := o.p
	current := occ.Placement(other)
	occ.Remove(other)
	for _, start := range p.FeasibleStarts(other) {
		if start == current.Start {
			continue
		}
		slots := p.Coverage(other, start)
		if len(occ.StudentClashes(other, slots)) > 0 {
			continue
		}
		cand := current.Clone()
		cand.Start = start
		if !occ.Clean(other, cand) {
			rooms, seats, ok := occ.PlaceRooms(other, slots, nil)
			if !ok {
				continue
			}
			cand.Rooms, cand.Seats = rooms, seats
			cand.Staff = o.repairStaff(occ, other, cand)
		}
		if occ.Clean(other, cand) {
			occ.Add(other, cand)
			return true
		}
	}
	occ.Add(other, current)
	return false
}

func (o *Optimizer) needsRooms(occ *problem.Occupancy, ex int, pl problem.Placement) bool {
	slots := o.p.Coverage(ex, pl.Start)
	seated := 0
	for i, r := range pl.Rooms {
		seated += pl.Seats[i]
		for _, s := range slots {
			if occ.FreeSeats(r, s) < pl.Seats[i] {
				return true
			}
		}
	}
	return seated < o.p.Exams[ex].ExpectedCount
}

// repairStaff keeps the invigilators of pl that are still free and replaces
// the others with the least loaded free staff. The team size is kept.
func (o *Optimizer) repairStaff(occ *problem.Occupancy, ex int, pl problem.Placement) []int {
	p := o.p
	slots := p.Coverage(ex, pl.Start)
	free := func(st int) bool {
		for _, s := range slots {
			if !p.StaffAvailable(st, s) {
				return false
			}
		}
		return occ.StaffClash(st, ex, slots, pl.Rooms) < 0
	}
	kept := lo.Filter(pl.Staff, func(st int, _ int) bool { return free(st) })
	want := len(pl.Staff)
	if want == 0 {
		return nil
	}
	if len(kept) == want {
		return kept
	}
	candidates, _ := occ.PickStaff(ex, slots, pl.Rooms, len(p.EligibleStaff()))
	for _, st := range candidates {
		if len(kept) == want {
			break
		}
		if !lo.Contains(kept, st) {
			kept = append(kept, st)
		}
	}
	if len(kept) < want {
		// not enough free staff; keep the original team so the clash is reported
		return pl.Staff
	}
	return kept
}

func (o *Optimizer) staffNeeded(seats []int) int {
	if len(o.p.EligibleStaff()) == 0 {
		return 0
	}
	n := 0
	for _, s := range seats {
		n += problem.InvigilatorsNeeded(s, o.opts.StudentsPerInvigilator)
	}
	return n
}

// --- Suggestions ---

func (o *Optimizer) suggest(before problem.Plan, ex int, pl problem.Placement, remaining []models.Conflict) []models.Suggestion {
	p := o.p
	exam := p.Exams[ex]
	occ := p.NewOccupancy(before.Clone(), ex)
	slots := p.Coverage(ex, pl.Start)
	var out []models.Suggestion
	add := func(s models.Suggestion) {
		if lo.ContainsBy(out, func(x models.Suggestion) bool { return x.Action == s.Action && x.ExamID == s.ExamID }) {
			return
		}
		out = append(out, s)
	}

	for _, c := range remaining {
		switch c.Type {
		case models.ConflictStudent:
			var free []string
			for _, s := range p.FeasibleStarts(ex) {
				if s != pl.Start && len(occ.StudentClashes(ex, p.Coverage(ex, s))) == 0 {
					free = append(free, p.Slots[s].ID)
				}
			}
			add(models.Suggestion{
				Action:  models.SuggestReschedule,
				ExamID:  exam.ID,
				SlotIDs: free,
				Reason:  fmt.Sprintf("%s shares students with %s and has no free alternative slot", c.OtherExamID, exam.ID),
			})
		case models.ConflictCapacity:
			if rooms := o.roomsFitting(occ, ex, slots); len(rooms) > 0 {
				add(models.Suggestion{
					Action:  models.SuggestLargerRoom,
					ExamID:  exam.ID,
					RoomIDs: rooms,
					Reason:  fmt.Sprintf("each listed room seats all %d students", exam.ExpectedCount),
				})
				continue
			}
			o.suggestRoomSet(occ, ex, slots, add)
		case models.ConflictRoomDoubleBooking:
			o.suggestRoomSet(occ, ex, slots, add)
		case models.ConflictStaffDoubleBooked:
			candidates, _ := occ.PickStaff(ex, slots, pl.Rooms, len(p.EligibleStaff()))
			ids := lo.FilterMap(candidates, func(st int, _ int) (string, bool) {
				return p.Staff[st].ID, !lo.Contains(pl.Staff, st)
			})
			add(models.Suggestion{
				Action:   models.SuggestDifferentInvigil,
				ExamID:   exam.ID,
				StaffIDs: ids,
				Reason:   "listed invigilators are free for the whole exam",
			})
		}
	}
	return out
}

func (o *Optimizer) roomsFitting(occ *problem.Occupancy, ex int, slots []int) []string {
	need := o.p.Exams[ex].ExpectedCount
	var ids []string
	for _, r := range o.p.AllowedRooms(ex) {
		fits := true
		for _, s := range slots {
			if occ.FreeSeats(r, s) < need {
				fits = false
				break
			}
		}
		if fits {
			ids = append(ids, o.p.Rooms[r].ID)
		}
	}
	return ids
}

func (o *Optimizer) suggestRoomSet(occ *problem.Occupancy, ex int, slots []int, add func(models.Suggestion)) {
	rooms, _, ok := occ.PlaceRooms(ex, slots, nil)
	if !ok {
		add(models.Suggestion{
			Action: models.SuggestReschedule,
			ExamID: o.p.Exams[ex].ID,
			Reason: "no room combination has enough free seats in this slot",
		})
		return
	}
	add(models.Suggestion{
		Action:  models.SuggestDifferentRoom,
		ExamID:  o.p.Exams[ex].ID,
		RoomIDs: lo.Map(rooms, func(r int, _ int) string { return o.p.Rooms[r].ID }),
		Reason:  "listed rooms have enough free seats",
	})
}

// --- Diff and impact ---

func (o *Optimizer) compare(before, after problem.Plan, edited int) ([]models.AssignmentDiff, models.ImpactSummary) {
	diffs := []models.AssignmentDiff{}
	var impact models.ImpactSummary
	for e := range before {
		d := o.diffPlacement(e, before[e], after[e])
		if len(d) == 0 {
			continue
		}
		diffs = append(diffs, d...)
		impact.MovedExamIDs = append(impact.MovedExamIDs, o.p.Exams[e].ID)
		if e == edited {
			impact.Direct++
		} else {
			impact.Indirect++
		}
	}
	sort.Strings(impact.MovedExamIDs)
	impact.Total = impact.Direct + impact.Indirect
	return diffs, impact
}

func (o *Optimizer) diffPlacement(e int, a, b problem.Placement) []models.AssignmentDiff {
	id := o.p.Exams[e].ID
	var out []models.AssignmentDiff
	field := func(name, before, after string) {
		if before != after {
			out = append(out, models.AssignmentDiff{ExamID: id, Field: name, Before: before, After: after})
		}
	}
	field("slot", o.slotID(a.Start), o.slotID(b.Start))
	field("rooms", o.roomSeats(a), o.roomSeats(b))
	field("invigilators", o.staffIDs(a.Staff), o.staffIDs(b.Staff))
	return out
}

func (o *Optimizer) slotID(s int) string {
	if s < 0 {
		return ""
	}
	return o.p.Slots[s].ID
}

func (o *Optimizer) roomSeats(pl problem.Placement) string {
	parts := make([]string, len(pl.Rooms))
	for i, r := range pl.Rooms {
		parts[i] = fmt.Sprintf("%s:%d", o.p.Rooms[r].ID, pl.Seats[i])
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func (o *Optimizer) staffIDs(staff []int) string {
	ids := lo.Map(staff, func(i int, _ int) string { return o.p.Staff[i].ID })
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
