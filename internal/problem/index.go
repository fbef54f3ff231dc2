package problem

import (
	"sort"

	"github.com/samber/lo"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

// --- Conflict pairs ---

func (p *Problem) buildConflicts() {
	p.studentExams = make(map[string][]int)
	p.examStudents = make([][]string, len(p.Exams))
	for e, exam := range p.Exams {
		for studentID, kind := range exam.Registrations {
			if kind != models.RegistrationNormal {
				continue
			}
			p.studentExams[studentID] = append(p.studentExams[studentID], e)
			p.examStudents[e] = append(p.examStudents[e], studentID)
		}
	}

	p.overlap = make(map[pairKey]int)
	for _, exams := range p.studentExams {
		sort.Ints(exams)
		for i := 0; i < len(exams); i++ {
			for j := i + 1; j < len(exams); j++ {
				p.overlap[newPairKey(exams[i], exams[j])]++
			}
		}
	}

	p.neighbours = make([][]int, len(p.Exams))
	p.conflicts = make([]ConflictPair, 0, len(p.overlap))
	for key, count := range p.overlap {
		p.conflicts = append(p.conflicts, ConflictPair{A: key.a, B: key.b, Overlap: count})
		p.neighbours[key.a] = append(p.neighbours[key.a], key.b)
		p.neighbours[key.b] = append(p.neighbours[key.b], key.a)
	}
	sort.Slice(p.conflicts, func(i, j int) bool {
		ci, cj := p.conflicts[i], p.conflicts[j]
		if ci.Overlap != cj.Overlap {
			return ci.Overlap > cj.Overlap
		}
		if ci.A != cj.A {
			return ci.A < cj.A
		}
		return ci.B < cj.B
	})
	for _, n := range p.neighbours {
		sort.Ints(n)
	}
}

// Conflicts returns conflict pairs ordered by overlap descending.
func (p *Problem) Conflicts() []ConflictPair { return p.conflicts }

// Overlap returns the number of normally registered students shared by a and b.
func (p *Problem) Overlap(a, b int) int { return p.overlap[newPairKey(a, b)] }

// Neighbours returns the exams in conflict with exam.
func (p *Problem) Neighbours(exam int) []int { return p.neighbours[exam] }

// StudentExams maps student ids to the exams they sit with a normal registration.
func (p *Problem) StudentExams() map[string][]int { return p.studentExams }

// SharedStudents lists the normally registered students common to a and b.
func (p *Problem) SharedStudents(a, b int) []string {
	first, second := p.Exams[a].Registrations, p.Exams[b].Registrations
	shared := make([]string, 0)
	for id, kind := range first {
		if kind != models.RegistrationNormal {
			continue
		}
		if other, ok := second[id]; ok && other == models.RegistrationNormal {
			shared = append(shared, id)
		}
	}
	sort.Strings(shared)
	return shared
}

// --- Allowed rooms ---

func (p *Problem) buildAllowedRooms() {
	p.allowedRooms = make([][]int, len(p.Exams))
	p.split = make([]bool, len(p.Exams))
	for e, exam := range p.Exams {
		var featured, fitting []int
		for r, room := range p.Rooms {
			if !room.Active || !satisfiesFeatures(exam, room) {
				continue
			}
			featured = append(featured, r)
			if p.capacity[r] >= exam.ExpectedCount {
				fitting = append(fitting, r)
			}
		}
		switch {
		case len(fitting) > 0:
			p.allowedRooms[e] = fitting
		case exam.AllowSplit && len(featured) > 0:
			p.allowedRooms[e] = featured
			p.split[e] = true
		default:
			fallback := lo.Map(exam.FallbackRoomIDs, func(id string, _ int) int { return p.roomIdx[id] })
			p.allowedRooms[e] = lo.Uniq(fallback)
			p.split[e] = exam.AllowSplit && len(fallback) > 1 && !anyFits(p, fallback, exam.ExpectedCount)
		}
		sort.Ints(p.allowedRooms[e])
	}
}

func satisfiesFeatures(exam models.Exam, room models.Room) bool {
	if exam.RequiresComputers && !room.HasComputers {
		return false
	}
	if exam.RequiresProjector && !room.HasProjector {
		return false
	}
	if exam.RequiresAccessibility && !room.Accessible {
		return false
	}
	return true
}

func anyFits(p *Problem, rooms []int, expected int) bool {
	return lo.SomeBy(rooms, func(r int) bool { return p.capacity[r] >= expected })
}

// AllowedRooms returns candidate rooms for exam.
func (p *Problem) AllowedRooms(exam int) []int { return p.allowedRooms[exam] }

// NeedsSplit reports whether no single candidate room seats the exam.
func (p *Problem) NeedsSplit(exam int) bool { return p.split[exam] }

// --- Feasible start slots ---

func (p *Problem) buildStarts() {
	p.starts = make([][]int, len(p.Exams))
	p.cover = make([]map[int][]int, len(p.Exams))
	p.preferredSlots = make([]map[int]bool, len(p.Exams))
	for e, exam := range p.Exams {
		p.cover[e] = make(map[int][]int)
		for _, day := range p.Days {
			for pos, start := range day.Slots {
				run, ok := p.coverRun(exam, day.Slots[pos:])
				if !ok {
					continue
				}
				p.starts[e] = append(p.starts[e], start)
				p.cover[e][start] = run
			}
		}
		if len(exam.PreferredSlotIDs) > 0 {
			p.preferredSlots[e] = make(map[int]bool, len(exam.PreferredSlotIDs))
			for _, id := range exam.PreferredSlotIDs {
				if s, ok := p.slotIdx[id]; ok {
					p.preferredSlots[e][s] = true
				}
			}
		}
	}
}

// coverRun collects the slots an exam occupies when it starts at the head of
// remaining. The run must fit in the day and use only active slots.
func (p *Problem) coverRun(exam models.Exam, remaining []int) ([]int, bool) {
	var run []int
	minutes := 0
	for _, s := range remaining {
		slot := p.Slots[s]
		if !slot.Active {
			return nil, false
		}
		if exam.MorningOnly && !slot.Morning() {
			return nil, false
		}
		run = append(run, s)
		minutes += slot.DurationMinutes
		if minutes >= exam.DurationMinutes {
			return run, true
		}
	}
	return nil, false
}

// FeasibleStarts returns the slots an exam may start in.
func (p *Problem) FeasibleStarts(exam int) []int { return p.starts[exam] }

// Coverage returns the slots occupied when exam starts at start, or nil when
// start is not a feasible start.
func (p *Problem) Coverage(exam, start int) []int { return p.cover[exam][start] }

// IsFeasibleStart reports whether exam may start at slot.
func (p *Problem) IsFeasibleStart(exam, slot int) bool {
	_, ok := p.cover[exam][slot]
	return ok
}

// HasPreferences reports whether exam declares preferred slots.
func (p *Problem) HasPreferences(exam int) bool { return len(p.preferredSlots[exam]) > 0 }

// Preferred reports whether slot is one of exam's preferred slots.
func (p *Problem) Preferred(exam, slot int) bool { return p.preferredSlots[exam][slot] }

// --- Staff ---

func (p *Problem) buildStaff() {
	p.instructors = make([][]int, len(p.Exams))
	p.instructing = make([][]int, len(p.Staff))
	for e, exam := range p.Exams {
		for _, id := range exam.InstructorIDs {
			i, ok := p.staffIdx[id]
			if !ok {
				continue
			}
			p.instructors[e] = append(p.instructors[e], i)
			p.instructing[i] = append(p.instructing[i], e)
		}
	}

	slotsByDate := make(map[string][]int, len(p.Days))
	for _, day := range p.Days {
		slotsByDate[day.Date] = day.Slots
	}
	p.staffBlocked = make([]map[int]bool, len(p.Staff))
	for i, staff := range p.Staff {
		if staff.CanInvigilate {
			p.eligibleStaff = append(p.eligibleStaff, i)
		}
		blocked := make(map[int]bool)
		for _, u := range staff.Unavailable {
			if u.SlotID != "" {
				if s, ok := p.slotIdx[u.SlotID]; ok {
					blocked[s] = true
				}
				continue
			}
			for _, s := range slotsByDate[u.Date.Format("2006-01-02")] {
				blocked[s] = true
			}
		}
		p.staffBlocked[i] = blocked
	}
}

// Instructors returns staff indices teaching exam.
func (p *Problem) Instructors(exam int) []int { return p.instructors[exam] }

// InstructedExams returns the exams taught by staff.
func (p *Problem) InstructedExams(staff int) []int { return p.instructing[staff] }

// EligibleStaff lists staff allowed to invigilate.
func (p *Problem) EligibleStaff() []int { return p.eligibleStaff }

// StaffAvailable reports whether staff may invigilate during slot.
func (p *Problem) StaffAvailable(staff, slot int) bool {
	return p.Staff[staff].CanInvigilate && !p.staffBlocked[staff][slot]
}

// InvigilatorsNeeded returns the staff count required to watch seated students.
func InvigilatorsNeeded(seated, perInvigilator int) int {
	if seated <= 0 || perInvigilator <= 0 {
		return 0
	}
	return (seated + perInvigilator - 1) / perInvigilator
}
