package constraint

import "github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"

// Rule ids known to the encoder.
const (
	ExactlyOneStart       = "exactly_one_start"
	OccupancyConsistency  = "occupancy_consistency"
	StudentConflict       = "student_conflict"
	MinimumGap            = "minimum_gap"
	MaxExamsPerDay        = "max_exams_per_day"
	SlotCapacityGuard     = "slot_capacity_guard"
	DailyWorkloadBalance  = "daily_workload_balance"
	PreferredSlots        = "preferred_slots"
	EarlyLargeExams       = "early_large_exams"
	RoomAssignment        = "room_assignment"
	RoomCapacity          = "room_capacity"
	RoomContinuity        = "room_continuity"
	InvigilatorSingleRoom = "invigilator_single_room"
	MinimumInvigilators   = "minimum_invigilators"
	InstructorExclusion   = "instructor_exclusion"
	InvigilatorBackToBack = "invigilator_back_to_back"
	InvigilatorDailyLimit = "invigilator_daily_limit"
	RoomWaste             = "room_waste"
	InstructorAdjacency   = "instructor_adjacency"
	InvigilatorBalance    = "invigilator_balance"
)

// DefaultDefinitions returns the built-in rule catalog.
func DefaultDefinitions() []models.ConstraintDefinition {
	hard := models.ConstraintHard
	soft := models.ConstraintSoft
	return []models.ConstraintDefinition{
		{ID: ExactlyOneStart, Kind: hard, Category: models.CategoryCore, Phase: 1,
			Description: "every exam starts in exactly one feasible slot"},
		{ID: OccupancyConsistency, Kind: hard, Category: models.CategoryCore, Phase: 1,
			Description:  "occupancy equals the starts whose coverage includes the slot",
			Dependencies: []string{ExactlyOneStart}},
		{ID: StudentConflict, Kind: hard, Category: models.CategoryStudent, Phase: 1,
			Description:  "exams sharing a normal student never occupy the same slot",
			Dependencies: []string{OccupancyConsistency}},
		{ID: MinimumGap, Kind: hard, Category: models.CategoryStudent, Phase: 1,
			Description:  "a student's exams on one day are separated by a minimum slot gap",
			Dependencies: []string{StudentConflict}},
		{ID: MaxExamsPerDay, Kind: hard, Category: models.CategoryStudent, Phase: 1,
			Description:  "a student sits at most a fixed number of exams per day",
			Dependencies: []string{ExactlyOneStart}},
		{ID: SlotCapacityGuard, Kind: hard, Category: models.CategoryResource, Phase: 1,
			Description:  "per-slot demand fits total capacity and room count",
			Dependencies: []string{OccupancyConsistency}},
		{ID: DailyWorkloadBalance, Kind: soft, Category: models.CategoryTemporal, Phase: 1,
			Description:   "spread exams evenly over the days",
			Dependencies:  []string{ExactlyOneStart},
			DefaultWeight: 5},
		{ID: PreferredSlots, Kind: soft, Category: models.CategoryTemporal, Phase: 1,
			Description:   "penalise starts outside an exam's preferred slots",
			Dependencies:  []string{ExactlyOneStart},
			DefaultWeight: 3},
		{ID: EarlyLargeExams, Kind: soft, Category: models.CategoryTemporal, Phase: 1,
			Description:   "schedule large exams early in the session",
			Dependencies:  []string{ExactlyOneStart},
			DefaultWeight: 1,
			Params:        map[string]float64{"min_students": 100}},
		{ID: RoomAssignment, Kind: hard, Category: models.CategoryCore, Phase: 2,
			Description: "every occupied exam slot has exactly one primary room"},
		{ID: RoomCapacity, Kind: hard, Category: models.CategoryResource, Phase: 2,
			Description:  "seated students fit every room and cover the expected count",
			Dependencies: []string{RoomAssignment}},
		{ID: RoomContinuity, Kind: hard, Category: models.CategoryResource, Phase: 2,
			Description:  "multi-slot exams keep their rooms across slots",
			Dependencies: []string{RoomAssignment}},
		{ID: InvigilatorSingleRoom, Kind: hard, Category: models.CategoryInvigilator, Phase: 2,
			Description: "an invigilator is in at most one room per slot"},
		{ID: MinimumInvigilators, Kind: hard, Category: models.CategoryInvigilator, Phase: 2,
			Description:  "occupied rooms receive enough invigilators for their seats",
			Dependencies: []string{RoomCapacity, InvigilatorSingleRoom}},
		{ID: InstructorExclusion, Kind: hard, Category: models.CategoryInvigilator, Phase: 2,
			Description:  "instructors never invigilate the room of their own exam",
			Dependencies: []string{InvigilatorSingleRoom, RoomAssignment}},
		{ID: InvigilatorBackToBack, Kind: hard, Category: models.CategoryInvigilator, Phase: 2,
			Description:  "an invigilator does not switch rooms between consecutive slots; staying in one room for the next exam is allowed",
			Dependencies: []string{InvigilatorSingleRoom}},
		{ID: InvigilatorDailyLimit, Kind: hard, Category: models.CategoryInvigilator, Phase: 2,
			Description:  "respect max sessions per day and max consecutive sessions",
			Dependencies: []string{InvigilatorSingleRoom}},
		{ID: RoomWaste, Kind: soft, Category: models.CategoryResource, Phase: 2,
			Description:   "penalise empty seats in used rooms",
			Dependencies:  []string{RoomCapacity},
			DefaultWeight: 1},
		{ID: InstructorAdjacency, Kind: soft, Category: models.CategoryInvigilator, Phase: 2,
			Description:   "keep instructors free while their exam runs",
			Dependencies:  []string{InvigilatorSingleRoom},
			DefaultWeight: 2},
		{ID: InvigilatorBalance, Kind: soft, Category: models.CategoryInvigilator, Phase: 2,
			Description:   "minimise the heaviest invigilation load",
			Dependencies:  []string{InvigilatorSingleRoom},
			DefaultWeight: 4},
	}
}

// DefaultCatalog returns a registry holding every built-in rule, all active.
func DefaultCatalog() *Registry {
	reg := NewRegistry()
	for _, def := range DefaultDefinitions() {
		// the built-in ids are unique
		_ = reg.Register(def)
		_ = reg.Activate(def.ID)
	}
	return reg
}
