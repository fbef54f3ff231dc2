package problem

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

var (
	// ErrEmptyRooms is returned when an instance carries no rooms.
	ErrEmptyRooms = errors.New("problem instance has no rooms")
	// ErrEmptySlots is returned when an instance carries no time slots.
	ErrEmptySlots = errors.New("problem instance has no time slots")
	// ErrEmptyExams is returned when an instance carries no exams.
	ErrEmptyExams = errors.New("problem instance has no exams")
	// ErrInvalidInstance wraps field level validation failures.
	ErrInvalidInstance = errors.New("invalid problem instance")
)

// Instance is the raw data supplied for one session.
type Instance struct {
	Session  models.Session
	Exams    []models.Exam
	Rooms    []models.Room
	Days     []models.Day
	Students []models.Student
	Staff    []models.Staff
}

// Options tune index construction.
type Options struct {
	// CapacityBufferPercent is reserved from every room before seating.
	CapacityBufferPercent int
}

// ConflictPair links two exams that share at least one normally registered student.
type ConflictPair struct {
	A       int
	B       int
	Overlap int
}

// DayIndex owns the global slot indices of one day in order.
type DayIndex struct {
	Date  string
	Slots []int
}

// Problem is the read-only arena built from an Instance. Every cross reference
// is an index into one of the owning slices.
type Problem struct {
	Session  models.Session
	Exams    []models.Exam
	Rooms    []models.Room
	Slots    []models.TimeSlot
	Days     []DayIndex
	Students []models.Student
	Staff    []models.Staff

	examIdx  map[string]int
	roomIdx  map[string]int
	slotIdx  map[string]int
	staffIdx map[string]int

	slotDay  []int
	slotPos  []int
	capacity []int

	conflicts    []ConflictPair
	overlap      map[pairKey]int
	neighbours   [][]int
	allowedRooms [][]int
	split        []bool
	starts       [][]int
	cover        []map[int][]int
	studentExams map[string][]int
	examStudents [][]string

	instructors    [][]int
	instructing    [][]int
	eligibleStaff  []int
	staffBlocked   []map[int]bool
	totalCapacity  int
	activeRooms    int
	bufferPercent  int
	preferredSlots []map[int]bool
}

type pairKey struct{ a, b int }

func newPairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Build validates the instance and computes every derived index.
func Build(in Instance, opts Options) (*Problem, error) {
	if len(in.Rooms) == 0 {
		return nil, ErrEmptyRooms
	}
	if len(in.Exams) == 0 {
		return nil, ErrEmptyExams
	}
	slotCount := 0
	for _, day := range in.Days {
		slotCount += len(day.Slots)
	}
	if slotCount == 0 {
		return nil, ErrEmptySlots
	}

	p := &Problem{
		Session:       in.Session,
		Exams:         append([]models.Exam(nil), in.Exams...),
		Rooms:         append([]models.Room(nil), in.Rooms...),
		Students:      append([]models.Student(nil), in.Students...),
		Staff:         append([]models.Staff(nil), in.Staff...),
		examIdx:       make(map[string]int, len(in.Exams)),
		roomIdx:       make(map[string]int, len(in.Rooms)),
		slotIdx:       make(map[string]int, slotCount),
		staffIdx:      make(map[string]int, len(in.Staff)),
		bufferPercent: opts.CapacityBufferPercent,
	}

	if err := p.indexEntities(in.Days); err != nil {
		return nil, err
	}
	p.buildConflicts()
	p.buildAllowedRooms()
	p.buildStarts()
	p.buildStaff()
	return p, nil
}

func (p *Problem) indexEntities(days []models.Day) error {
	for i, room := range p.Rooms {
		if room.ID == "" {
			return fmt.Errorf("%w: room at position %d has no id", ErrInvalidInstance, i)
		}
		if _, dup := p.roomIdx[room.ID]; dup {
			return fmt.Errorf("%w: duplicate room id %s", ErrInvalidInstance, room.ID)
		}
		if room.Capacity < 0 || room.ExamCapacity < 0 {
			return fmt.Errorf("%w: room %s has negative capacity", ErrInvalidInstance, room.ID)
		}
		p.roomIdx[room.ID] = i
		p.capacity = append(p.capacity, room.EffectiveCapacity(p.bufferPercent))
		if room.Active {
			p.totalCapacity += p.capacity[i]
			p.activeRooms++
		}
	}

	sorted := append([]models.Day(nil), days...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	for d, day := range sorted {
		slots := append([]models.TimeSlot(nil), day.Slots...)
		sort.SliceStable(slots, func(i, j int) bool { return slots[i].Index < slots[j].Index })
		entry := DayIndex{Date: day.Date.Format("2006-01-02")}
		for pos, slot := range slots {
			if slot.ID == "" {
				return fmt.Errorf("%w: slot on %s has no id", ErrInvalidInstance, entry.Date)
			}
			if _, dup := p.slotIdx[slot.ID]; dup {
				return fmt.Errorf("%w: duplicate slot id %s", ErrInvalidInstance, slot.ID)
			}
			if slot.DurationMinutes <= 0 {
				return fmt.Errorf("%w: slot %s must have a positive duration", ErrInvalidInstance, slot.ID)
			}
			if slot.Date.IsZero() {
				slot.Date = day.Date
			}
			idx := len(p.Slots)
			p.slotIdx[slot.ID] = idx
			p.Slots = append(p.Slots, slot)
			p.slotDay = append(p.slotDay, d)
			p.slotPos = append(p.slotPos, pos)
			entry.Slots = append(entry.Slots, idx)
		}
		p.Days = append(p.Days, entry)
	}

	for i, exam := range p.Exams {
		if exam.ID == "" {
			return fmt.Errorf("%w: exam at position %d has no id", ErrInvalidInstance, i)
		}
		if _, dup := p.examIdx[exam.ID]; dup {
			return fmt.Errorf("%w: duplicate exam id %s", ErrInvalidInstance, exam.ID)
		}
		if exam.DurationMinutes <= 0 {
			return fmt.Errorf("%w: exam %s must have a positive duration", ErrInvalidInstance, exam.ID)
		}
		if exam.ExpectedCount < 0 {
			return fmt.Errorf("%w: exam %s has a negative expected count", ErrInvalidInstance, exam.ID)
		}
		for _, roomID := range exam.FallbackRoomIDs {
			if _, ok := p.roomIdx[roomID]; !ok {
				return fmt.Errorf("%w: exam %s references unknown fallback room %s", ErrInvalidInstance, exam.ID, roomID)
			}
		}
		p.examIdx[exam.ID] = i
	}

	for i, staff := range p.Staff {
		if staff.ID == "" {
			return fmt.Errorf("%w: staff at position %d has no id", ErrInvalidInstance, i)
		}
		if _, dup := p.staffIdx[staff.ID]; dup {
			return fmt.Errorf("%w: duplicate staff id %s", ErrInvalidInstance, staff.ID)
		}
		p.staffIdx[staff.ID] = i
	}
	return nil
}

// --- Lookups ---

// ExamIndex resolves an exam id.
func (p *Problem) ExamIndex(id string) (int, bool) {
	i, ok := p.examIdx[id]
	return i, ok
}

// RoomIndex resolves a room id.
func (p *Problem) RoomIndex(id string) (int, bool) {
	i, ok := p.roomIdx[id]
	return i, ok
}

// SlotIndex resolves a slot id.
func (p *Problem) SlotIndex(id string) (int, bool) {
	i, ok := p.slotIdx[id]
	return i, ok
}

// StaffIndex resolves a staff id.
func (p *Problem) StaffIndex(id string) (int, bool) {
	i, ok := p.staffIdx[id]
	return i, ok
}

// SlotDay returns the day index owning slot.
func (p *Problem) SlotDay(slot int) int { return p.slotDay[slot] }

// SlotPosition returns the position of slot inside its day.
func (p *Problem) SlotPosition(slot int) int { return p.slotPos[slot] }

// NextSlot returns the slot following slot on the same day, or -1.
func (p *Problem) NextSlot(slot int) int {
	day := p.Days[p.slotDay[slot]]
	pos := p.slotPos[slot]
	if pos+1 < len(day.Slots) {
		return day.Slots[pos+1]
	}
	return -1
}

// Capacity returns the effective capacity of room.
func (p *Problem) Capacity(room int) int { return p.capacity[room] }

// TotalCapacity sums effective capacity over active rooms.
func (p *Problem) TotalCapacity() int { return p.totalCapacity }

// ActiveRoomCount counts rooms available for exams.
func (p *Problem) ActiveRoomCount() int { return p.activeRooms }
