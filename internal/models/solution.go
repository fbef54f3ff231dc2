package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// SolverStatus mirrors the outcome reported by the combinatorial solver.
type SolverStatus string

const (
	SolverOptimal    SolverStatus = "OPTIMAL"
	SolverFeasible   SolverStatus = "FEASIBLE"
	SolverInfeasible SolverStatus = "INFEASIBLE"
	SolverUnknown    SolverStatus = "UNKNOWN"
)

// ExamAssignment places one exam in time, space and staff.
type ExamAssignment struct {
	ExamID         string         `json:"exam_id"`
	StartSlotID    string         `json:"start_slot_id"`
	SlotIDs        []string       `json:"slot_ids"`
	RoomIDs        []string       `json:"room_ids"`
	RoomSeats      map[string]int `json:"room_seats,omitempty"`
	InvigilatorIDs []string       `json:"invigilator_ids,omitempty"`
}

// Clone returns a deep copy.
func (a ExamAssignment) Clone() ExamAssignment {
	out := ExamAssignment{ExamID: a.ExamID, StartSlotID: a.StartSlotID}
	out.SlotIDs = append([]string(nil), a.SlotIDs...)
	out.RoomIDs = append([]string(nil), a.RoomIDs...)
	out.InvigilatorIDs = append([]string(nil), a.InvigilatorIDs...)
	if a.RoomSeats != nil {
		out.RoomSeats = make(map[string]int, len(a.RoomSeats))
		for k, v := range a.RoomSeats {
			out.RoomSeats[k] = v
		}
	}
	return out
}

// SolutionMetrics captures quality figures computed during validation.
type SolutionMetrics struct {
	AssignmentRate     float64        `json:"assignment_rate"`
	RoomUtilization    float64        `json:"room_utilization"`
	UtilizationInBand  float64        `json:"utilization_in_band"`
	HardViolations     int            `json:"hard_violations"`
	SoftPenalty        float64        `json:"soft_penalty"`
	ViolationsByType   map[string]int `json:"violations_by_type,omitempty"`
	ScheduledExams     int            `json:"scheduled_exams"`
	TotalExams         int            `json:"total_exams"`
	GeneticImprovement float64        `json:"genetic_improvement,omitempty"`
}

// Solution is the per-exam assignment produced by one optimization attempt.
type Solution struct {
	Status      SolverStatus              `json:"status"`
	Objective   float64                   `json:"objective"`
	Assignments map[string]ExamAssignment `json:"assignments"`
	Metrics     SolutionMetrics           `json:"metrics"`
	Refined     bool                      `json:"refined"`
}

// NewSolution returns an empty solution ready for assignments.
func NewSolution(status SolverStatus) Solution {
	return Solution{Status: status, Assignments: make(map[string]ExamAssignment)}
}

// Clone returns a deep copy so callers can mutate safely.
func (s Solution) Clone() Solution {
	out := s
	out.Assignments = make(map[string]ExamAssignment, len(s.Assignments))
	for id, a := range s.Assignments {
		out.Assignments[id] = a.Clone()
	}
	if s.Metrics.ViolationsByType != nil {
		out.Metrics.ViolationsByType = make(map[string]int, len(s.Metrics.ViolationsByType))
		for k, v := range s.Metrics.ViolationsByType {
			out.Metrics.ViolationsByType[k] = v
		}
	}
	return out
}

// ExamIDs returns assigned exam ids in sorted order.
func (s Solution) ExamIDs() []string {
	ids := make([]string, 0, len(s.Assignments))
	for id := range s.Assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Value marshals the solution to JSON for persistence.
func (s Solution) Value() (driver.Value, error) {
	if s.Assignments == nil {
		s.Assignments = map[string]ExamAssignment{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal solution: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the solution.
func (s *Solution) Scan(value interface{}) error {
	if value == nil {
		*s = Solution{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for Solution", value)
	}
	if len(data) == 0 {
		*s = Solution{}
		return nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("unmarshal solution: %w", err)
	}
	return nil
}
