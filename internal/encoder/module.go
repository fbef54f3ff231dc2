package encoder

import "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"

// Module encodes one rule into the model held by a Builder.
type Module interface {
	ID() string
	Phase() Phase
	Encode(b *Builder) error
}

// modules is the closed table of rule encoders.
func modules() map[string]Module {
	list := []Module{
		exactlyOneStart{},
		occupancyConsistency{},
		studentConflict{},
		minimumGap{},
		maxExamsPerDay{},
		slotCapacityGuard{},
		dailyWorkloadBalance{},
		preferredSlots{},
		earlyLargeExams{},
		roomAssignment{},
		roomCapacity{},
		roomContinuity{},
		invigilatorSingleRoom{},
		minimumInvigilators{},
		instructorExclusion{},
		invigilatorBackToBack{},
		invigilatorDailyLimit{},
		roomWaste{},
		instructorAdjacency{},
		invigilatorBalance{},
	}
	table := make(map[string]Module, len(list))
	for _, m := range list {
		table[m.ID()] = m
	}
	return table
}

// Supported reports whether a rule id has an encoder.
func Supported(id string) bool {
	_, ok := modules()[id]
	return ok
}

type phase1Rule struct{}

func (phase1Rule) Phase() Phase { return Phase1 }

type phase2Rule struct{}

func (phase2Rule) Phase() Phase { return Phase2 }

func (exactlyOneStart) ID() string       { return constraint.ExactlyOneStart }
func (occupancyConsistency) ID() string  { return constraint.OccupancyConsistency }
func (studentConflict) ID() string       { return constraint.StudentConflict }
func (minimumGap) ID() string            { return constraint.MinimumGap }
func (maxExamsPerDay) ID() string        { return constraint.MaxExamsPerDay }
func (slotCapacityGuard) ID() string     { return constraint.SlotCapacityGuard }
func (dailyWorkloadBalance) ID() string  { return constraint.DailyWorkloadBalance }
func (preferredSlots) ID() string        { return constraint.PreferredSlots }
func (earlyLargeExams) ID() string       { return constraint.EarlyLargeExams }
func (roomAssignment) ID() string        { return constraint.RoomAssignment }
func (roomCapacity) ID() string          { return constraint.RoomCapacity }
func (roomContinuity) ID() string        { return constraint.RoomContinuity }
func (invigilatorSingleRoom) ID() string { return constraint.InvigilatorSingleRoom }
func (minimumInvigilators) ID() string   { return constraint.MinimumInvigilators }
func (instructorExclusion) ID() string   { return constraint.InstructorExclusion }
func (invigilatorBackToBack) ID() string { return constraint.InvigilatorBackToBack }
func (invigilatorDailyLimit) ID() string { return constraint.InvigilatorDailyLimit }
func (roomWaste) ID() string             { return constraint.RoomWaste }
func (instructorAdjacency) ID() string   { return constraint.InstructorAdjacency }
func (invigilatorBalance) ID() string    { return constraint.InvigilatorBalance }
