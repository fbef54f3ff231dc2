// Package incremental applies manual edits to a published timetable without
// re-solving it, repairing the conflicts an edit causes where it can.
package incremental

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
)

// EditKind selects which parts of an assignment an edit changes.
type EditKind string

const (
	EditTime     EditKind = "time"
	EditRoom     EditKind = "room"
	EditStaff    EditKind = "staff"
	EditCombined EditKind = "combined"
)

// Edit is a change to the assignment of exactly one exam.
type Edit struct {
	Kind      EditKind       `json:"kind"`
	ExamID    string         `json:"exam_id"`
	SlotID    string         `json:"slot_id,omitempty"`
	RoomIDs   []string       `json:"room_ids,omitempty"`
	RoomSeats map[string]int `json:"room_seats,omitempty"`
	StaffIDs  []string       `json:"staff_ids,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

func (e Edit) hasSlot() bool  { return strings.TrimSpace(e.SlotID) != "" }
func (e Edit) hasRooms() bool { return len(e.RoomIDs) > 0 }
func (e Edit) hasStaff() bool { return len(e.StaffIDs) > 0 }

// resolved is an edit with every id turned into an index.
type resolved struct {
	exam  int
	start int
	rooms []int
	seats []int
	staff []int
}

// validate checks the edit shape and resolves its ids against p.
func validate(p *problem.Problem, e Edit) (resolved, []string) {
	var errs []string
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	out := resolved{exam: -1, start: -1}
	if strings.TrimSpace(e.ExamID) == "" {
		fail("exam_id is required")
	} else if ex, ok := p.ExamIndex(e.ExamID); ok {
		out.exam = ex
	} else {
		fail("unknown exam %s", e.ExamID)
	}

	switch e.Kind {
	case EditTime:
		if !e.hasSlot() {
			fail("slot_id is required for a time edit")
		}
		if e.hasRooms() || e.hasStaff() {
			fail("a time edit only changes slot_id")
		}
	case EditRoom:
		if !e.hasRooms() {
			fail("room_ids are required for a room edit")
		}
		if e.hasSlot() || e.hasStaff() {
			fail("a room edit only changes room_ids")
		}
	case EditStaff:
		if !e.hasStaff() {
			fail("staff_ids are required for a staff edit")
		}
		if e.hasSlot() || e.hasRooms() {
			fail("a staff edit only changes staff_ids")
		}
	case EditCombined:
		if lo.Count([]bool{e.hasSlot(), e.hasRooms(), e.hasStaff()}, true) < 2 {
			fail("a combined edit changes at least two of slot_id, room_ids, staff_ids")
		}
	default:
		fail("unknown edit kind %q", e.Kind)
	}

	if e.hasSlot() {
		if s, ok := p.SlotIndex(e.SlotID); !ok {
			fail("unknown slot %s", e.SlotID)
		} else if out.exam >= 0 && !p.IsFeasibleStart(out.exam, s) {
			fail("exam %s cannot start in slot %s", e.ExamID, e.SlotID)
		} else {
			out.start = s
		}
	}

	if dup := lo.FindDuplicates(e.RoomIDs); len(dup) > 0 {
		fail("duplicate rooms %s", strings.Join(dup, ", "))
	}
	for _, id := range e.RoomIDs {
		r, ok := p.RoomIndex(id)
		if !ok {
			fail("unknown room %s", id)
			continue
		}
		if !p.Rooms[r].Active {
			fail("room %s is not active", id)
			continue
		}
		out.rooms = append(out.rooms, r)
	}
	if len(e.RoomSeats) > 0 {
		for _, id := range e.RoomIDs {
			if _, ok := e.RoomSeats[id]; !ok {
				fail("room_seats is missing room %s", id)
			}
		}
	}
	for id, n := range e.RoomSeats {
		if !lo.Contains(e.RoomIDs, id) {
			fail("room_seats names room %s outside room_ids", id)
		}
		if n < 0 {
			fail("room_seats for %s must not be negative", id)
		}
	}

	if dup := lo.FindDuplicates(e.StaffIDs); len(dup) > 0 {
		fail("duplicate invigilators %s", strings.Join(dup, ", "))
	}
	for _, id := range e.StaffIDs {
		i, ok := p.StaffIndex(id)
		if !ok {
			fail("unknown invigilator %s", id)
			continue
		}
		if !p.Staff[i].CanInvigilate {
			fail("staff %s cannot invigilate", id)
			continue
		}
		out.staff = append(out.staff, i)
	}

	if len(errs) > 0 {
		return resolved{}, errs
	}
	if len(e.RoomSeats) > 0 {
		out.seats = lo.Map(e.RoomIDs, func(id string, _ int) int { return e.RoomSeats[id] })
	} else if len(out.rooms) > 0 {
		out.seats = p.SeatsFor(out.exam, out.rooms)
	}
	return out, nil
}
