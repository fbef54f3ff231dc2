package problem

// Rules switches on the hard rules a plan is checked against beyond its own
// placement. The zero value checks placement only.
type Rules struct {
	// GapSlots is the number of free slots required between two exams that
	// share students on the same day.
	GapSlots int
	// MaxExamsPerDay caps how many exams one student starts per day.
	MaxExamsPerDay int
	// InstructorExclusion keeps instructors from invigilating their own exam.
	InstructorExclusion bool
	// BackToBack forbids an invigilator from watching one exam and then a
	// different exam in another room in the next slot of the same day.
	BackToBack bool
	// StaffDailyLimit applies each invigilator's sessions per day and
	// consecutive session caps.
	StaffDailyLimit bool
}

// Enforce makes Clean and PickStaff honour rules.
func (o *Occupancy) Enforce(rules Rules) *Occupancy {
	o.rules = rules
	return o
}

// GapClashes returns scheduled exams sharing students with exam on the same
// day whose runs leave fewer than the required free slots to the run of exam
// started at start. Overlapping runs are left to StudentClashes.
func (o *Occupancy) GapClashes(exam, start int) []int {
	if o.rules.GapSlots <= 0 {
		return nil
	}
	var out []int
	for _, other := range o.p.Neighbours(exam) {
		pl := o.plan[other]
		if other == exam || !pl.Scheduled() {
			continue
		}
		if free, ok := o.p.freeBetween(exam, start, other, pl.Start); ok && free < o.rules.GapSlots {
			out = append(out, other)
		}
	}
	return out
}

// DailyLoad returns the most exams any student of exam already starts on day,
// not counting exam itself.
func (o *Occupancy) DailyLoad(exam, day int) int {
	peak := 0
	for _, student := range o.p.examStudents[exam] {
		n := 0
		for _, other := range o.p.studentExams[student] {
			pl := o.plan[other]
			if other != exam && pl.Scheduled() && o.p.slotDay[pl.Start] == day {
				n++
			}
		}
		peak = max(peak, n)
	}
	return peak
}

// DayFull reports whether starting exam on day pushes one of its students past
// the enforced daily cap.
func (o *Occupancy) DayFull(exam, day int) bool {
	return o.rules.MaxExamsPerDay > 0 && o.DailyLoad(exam, day) >= o.rules.MaxExamsPerDay
}

// staffFits reports whether staff can take exam over slots in rooms without
// breaking the enforced invigilator rules.
func (o *Occupancy) staffFits(staff, exam int, slots, rooms []int) bool {
	if o.rules.InstructorExclusion && o.p.teaches(staff, exam) {
		return false
	}
	if o.rules.BackToBack && o.switchesRooms(staff, exam, slots, rooms) {
		return false
	}
	if o.rules.StaffDailyLimit && len(slots) > 0 {
		busy := o.busySlots(staff, o.p.slotDay[slots[0]], exam)
		for _, s := range slots {
			busy[o.p.slotPos[s]] = true
		}
		if o.p.overDailyLimit(staff, busy) {
			return false
		}
	}
	return true
}

// switchesRooms reports whether staff watches another exam in a different room
// right before or right after slots.
func (o *Occupancy) switchesRooms(staff, exam int, slots, rooms []int) bool {
	if len(slots) == 0 {
		return false
	}
	check := func(s int) bool {
		for _, other := range o.staffAt[staffSlot{staff, s}] {
			if other != exam && !sharesRoom(o.plan[other].Rooms, rooms) {
				return true
			}
		}
		return false
	}
	if next := o.p.NextSlot(slots[len(slots)-1]); next >= 0 && check(next) {
		return true
	}
	if prev := o.p.prevSlot(slots[0]); prev >= 0 && check(prev) {
		return true
	}
	return false
}

// busySlots marks the day positions in which staff watches an exam other
// than skip.
func (o *Occupancy) busySlots(staff, day, skip int) []bool {
	slots := o.p.Days[day].Slots
	busy := make([]bool, len(slots))
	for k, s := range slots {
		for _, other := range o.staffAt[staffSlot{staff, s}] {
			if other != skip {
				busy[k] = true
				break
			}
		}
	}
	return busy
}

// overDailyLimit reports whether busy breaks the sessions per day or
// consecutive session caps of staff.
func (p *Problem) overDailyLimit(staff int, busy []bool) bool {
	st := p.Staff[staff]
	total, run, longest := 0, 0, 0
	for _, b := range busy {
		if !b {
			run = 0
			continue
		}
		total++
		run++
		longest = max(longest, run)
	}
	if st.MaxSessionsPerDay > 0 && total > st.MaxSessionsPerDay {
		return true
	}
	return st.MaxConsecutive > 0 && longest > st.MaxConsecutive
}

func (p *Problem) teaches(staff, exam int) bool {
	for _, i := range p.instructors[exam] {
		if i == staff {
			return true
		}
	}
	return false
}

// freeBetween counts the free slots between the runs of a and b on the same
// day. It returns false when they sit on different days or overlap.
func (p *Problem) freeBetween(a, sa, b, sb int) (int, bool) {
	if sa < 0 || sb < 0 || p.slotDay[sa] != p.slotDay[sb] {
		return 0, false
	}
	runA, runB := p.Occupied(a, sa), p.Occupied(b, sb)
	firstA, lastA := p.slotPos[runA[0]], p.slotPos[runA[len(runA)-1]]
	firstB, lastB := p.slotPos[runB[0]], p.slotPos[runB[len(runB)-1]]
	switch {
	case lastA < firstB:
		return firstB - lastA - 1, true
	case lastB < firstA:
		return firstA - lastB - 1, true
	default:
		return 0, false
	}
}

// prevSlot returns the slot right before slot on the same day, or -1.
func (p *Problem) prevSlot(slot int) int {
	pos := p.slotPos[slot]
	if pos == 0 {
		return -1
	}
	return p.Days[p.slotDay[slot]].Slots[pos-1]
}
