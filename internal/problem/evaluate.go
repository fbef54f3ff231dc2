package problem

import (
	"fmt"
	"sort"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// Violation types reported by Check.
const (
	ViolationStudentConflict   = "student_conflict"
	ViolationRoomOverCapacity  = "room_over_capacity"
	ViolationStaffDoubleBooked = "invigilator_double_booking"
	ViolationUnderSeated       = "under_seated"
	ViolationUnassigned        = "unassigned"
	ViolationInfeasibleStart   = "infeasible_start"
	ViolationUnknownReference  = "unknown_reference"
)

// Violation types of the enforced rules, keyed like the rule ids.
const (
	ViolationMinimumGap          = "minimum_gap"
	ViolationMaxExamsPerDay      = "max_exams_per_day"
	ViolationInstructorExclusion = "instructor_exclusion"
	ViolationBackToBack          = "invigilator_back_to_back"
	ViolationStaffDailyLimit     = "invigilator_daily_limit"
)

// Utilization band considered healthy for a used room.
const (
	UtilizationBandLow  = 0.70
	UtilizationBandHigh = 0.90
)

// Violation is one broken hard rule found in a plan.
type Violation struct {
	Type    string   `json:"type"`
	Exams   []string `json:"exams,omitempty"`
	SlotID  string   `json:"slot_id,omitempty"`
	RoomID  string   `json:"room_id,omitempty"`
	StaffID string   `json:"staff_id,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// Evaluation is the validation outcome of a plan or solution.
type Evaluation struct {
	Violations []Violation
	Hard       int
	Unknown    int
	Metrics    models.SolutionMetrics
}

// Valid reports whether every reference resolved against the problem.
func (ev Evaluation) Valid() bool { return ev.Unknown == 0 }

// Feasible reports whether no hard rule is broken.
func (ev Evaluation) Feasible() bool { return ev.Hard == 0 && ev.Unknown == 0 }

// Evaluate validates a persisted solution against the problem and rules.
func Evaluate(p *Problem, sol models.Solution, rules Rules) Evaluation {
	plan, unknown := p.PlanFromSolution(sol)
	ev := p.Check(plan, rules)
	ev.Unknown = len(unknown)
	ev.Violations = append(unknown, ev.Violations...)
	for _, v := range unknown {
		ev.Metrics.ViolationsByType[v.Type]++
	}
	return ev
}

// Check inspects a plan for hard rule violations and computes quality metrics.
// Placement rules are always checked; rules adds the enforced ones.
func (p *Problem) Check(plan Plan, rules Rules) Evaluation {
	ev := Evaluation{Metrics: models.SolutionMetrics{
		TotalExams:       len(p.Exams),
		ViolationsByType: make(map[string]int),
	}}
	add := func(v Violation) {
		ev.Violations = append(ev.Violations, v)
		ev.Hard++
		ev.Metrics.ViolationsByType[v.Type]++
	}

	occ := p.NewOccupancy(plan.Clone())
	for e, pl := range plan {
		exam := p.Exams[e]
		if !pl.Scheduled() {
			add(Violation{Type: ViolationUnassigned, Exams: []string{exam.ID}})
			continue
		}
		ev.Metrics.ScheduledExams++
		if !p.IsFeasibleStart(e, pl.Start) {
			add(Violation{Type: ViolationInfeasibleStart, Exams: []string{exam.ID}, SlotID: p.Slots[pl.Start].ID})
		}
		seated := 0
		for _, n := range pl.Seats {
			seated += n
		}
		if seated < exam.ExpectedCount {
			add(Violation{
				Type:   ViolationUnderSeated,
				Exams:  []string{exam.ID},
				Detail: fmt.Sprintf("%d of %d students seated", seated, exam.ExpectedCount),
			})
		}
	}

	for s := range p.Slots {
		exams := occ.ExamsIn(s)
		for i := 0; i < len(exams); i++ {
			for j := i + 1; j < len(exams); j++ {
				a, b := exams[i], exams[j]
				if p.Overlap(a, b) == 0 {
					continue
				}
				add(Violation{
					Type:   ViolationStudentConflict,
					Exams:  sortedIDs(p, a, b),
					SlotID: p.Slots[s].ID,
					Detail: fmt.Sprintf("%d shared students", p.Overlap(a, b)),
				})
			}
		}
	}

	used, inBand := 0, 0
	utilization := 0.0
	for r := range p.Rooms {
		for s := range p.Slots {
			seated := occ.Seated(r, s)
			if seated == 0 {
				continue
			}
			capacity := p.capacity[r]
			if seated > capacity {
				add(Violation{
					Type:   ViolationRoomOverCapacity,
					RoomID: p.Rooms[r].ID,
					SlotID: p.Slots[s].ID,
					Detail: fmt.Sprintf("%d seated, capacity %d", seated, capacity),
				})
			}
			used++
			ratio := 1.0
			if capacity > 0 {
				ratio = float64(seated) / float64(capacity)
			}
			utilization += ratio
			if ratio >= UtilizationBandLow && ratio <= UtilizationBandHigh {
				inBand++
			}
		}
	}

	for i := range p.Staff {
		for s := range p.Slots {
			exams := occ.staffAt[staffSlot{i, s}]
			if clash := staffClashIn(occ, exams); clash != nil {
				add(Violation{
					Type:    ViolationStaffDoubleBooked,
					Exams:   clash,
					StaffID: p.Staff[i].ID,
					SlotID:  p.Slots[s].ID,
				})
			}
		}
	}

	for _, v := range p.checkRules(occ, rules) {
		add(v)
	}

	if len(p.Exams) > 0 {
		ev.Metrics.AssignmentRate = float64(ev.Metrics.ScheduledExams) / float64(len(p.Exams))
	}
	if used > 0 {
		ev.Metrics.RoomUtilization = utilization / float64(used)
		ev.Metrics.UtilizationInBand = float64(inBand) / float64(used)
	}
	ev.Metrics.HardViolations = ev.Hard
	return ev
}

func (p *Problem) checkRules(occ *Occupancy, rules Rules) []Violation {
	var out []Violation
	plan := occ.plan
	if rules.GapSlots > 0 {
		for _, c := range p.conflicts {
			free, ok := p.freeBetween(c.A, plan[c.A].Start, c.B, plan[c.B].Start)
			if !ok || free >= rules.GapSlots {
				continue
			}
			out = append(out, Violation{
				Type:   ViolationMinimumGap,
				Exams:  sortedIDs(p, c.A, c.B),
				SlotID: p.Slots[plan[c.A].Start].ID,
				Detail: fmt.Sprintf("%d free slots, %d required", free, rules.GapSlots),
			})
		}
	}

	if rules.MaxExamsPerDay > 0 {
		seen := make(map[string]bool)
		students := make([]string, 0, len(p.studentExams))
		for id := range p.studentExams {
			students = append(students, id)
		}
		sort.Strings(students)
		for _, id := range students {
			byDay := make(map[int][]int)
			for _, e := range p.studentExams[id] {
				if start := plan[e].Start; start >= 0 {
					byDay[p.slotDay[start]] = append(byDay[p.slotDay[start]], e)
				}
			}
			for d := range p.Days {
				exams := byDay[d]
				if len(exams) <= rules.MaxExamsPerDay {
					continue
				}
				ids := sortedIDs(p, exams...)
				key := fmt.Sprint(d, ids)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, Violation{
					Type:   ViolationMaxExamsPerDay,
					Exams:  ids,
					Detail: fmt.Sprintf("%d exams on %s, limit %d", len(exams), p.Days[d].Date, rules.MaxExamsPerDay),
				})
			}
		}
	}

	if rules.InstructorExclusion {
		for e, pl := range plan {
			for _, st := range pl.Staff {
				if pl.Scheduled() && p.teaches(st, e) {
					out = append(out, Violation{
						Type:    ViolationInstructorExclusion,
						Exams:   []string{p.Exams[e].ID},
						StaffID: p.Staff[st].ID,
						SlotID:  p.Slots[pl.Start].ID,
					})
				}
			}
		}
	}

	if rules.BackToBack {
		for i := range p.Staff {
			for s := range p.Slots {
				next := p.NextSlot(s)
				if next < 0 {
					continue
				}
				if clash := roomSwitch(occ, occ.staffAt[staffSlot{i, s}], occ.staffAt[staffSlot{i, next}]); clash != nil {
					out = append(out, Violation{
						Type:    ViolationBackToBack,
						Exams:   clash,
						StaffID: p.Staff[i].ID,
						SlotID:  p.Slots[next].ID,
					})
				}
			}
		}
	}

	if rules.StaffDailyLimit {
		for i := range p.Staff {
			for d := range p.Days {
				if !p.overDailyLimit(i, occ.busySlots(i, d, -1)) {
					continue
				}
				st := p.Staff[i]
				out = append(out, Violation{
					Type:    ViolationStaffDailyLimit,
					StaffID: st.ID,
					Detail:  fmt.Sprintf("over %d per day or %d consecutive on %s", st.MaxSessionsPerDay, st.MaxConsecutive, p.Days[d].Date),
				})
			}
		}
	}
	return out
}

// roomSwitch returns a pair of distinct exams from before and after that share
// no room, or nil.
func roomSwitch(occ *Occupancy, before, after []int) []string {
	for _, a := range before {
		for _, b := range after {
			if a != b && !sharesRoom(occ.plan[a].Rooms, occ.plan[b].Rooms) {
				return sortedIDs(occ.p, a, b)
			}
		}
	}
	return nil
}

func staffClashIn(occ *Occupancy, exams []int) []string {
	for i := 0; i < len(exams); i++ {
		for j := i + 1; j < len(exams); j++ {
			if !sharesRoom(occ.plan[exams[i]].Rooms, occ.plan[exams[j]].Rooms) {
				return sortedIDs(occ.p, exams[i], exams[j])
			}
		}
	}
	return nil
}

func sortedIDs(p *Problem, exams ...int) []string {
	ids := make([]string, 0, len(exams))
	for _, e := range exams {
		ids = append(ids, p.Exams[e].ID)
	}
	sort.Strings(ids)
	return ids
}
