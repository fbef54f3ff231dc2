package models

// ConstraintKind separates feasibility rules from quality preferences.
type ConstraintKind string

const (
	ConstraintHard ConstraintKind = "hard"
	ConstraintSoft ConstraintKind = "soft"
)

// ConstraintCategory groups rules for reporting.
type ConstraintCategory string

const (
	CategoryCore        ConstraintCategory = "core"
	CategoryStudent     ConstraintCategory = "student"
	CategoryInvigilator ConstraintCategory = "invigilator"
	CategoryResource    ConstraintCategory = "resource"
	CategoryTemporal    ConstraintCategory = "temporal"
)

// ConstraintDefinition describes one rule known to the registry.
type ConstraintDefinition struct {
	ID            string             `json:"id" yaml:"id"`
	Kind          ConstraintKind     `json:"kind" yaml:"kind"`
	Category      ConstraintCategory `json:"category" yaml:"category"`
	Phase         int                `json:"phase" yaml:"phase"`
	Description   string             `json:"description,omitempty" yaml:"description,omitempty"`
	Dependencies  []string           `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	DefaultWeight int                `json:"default_weight" yaml:"default_weight"`
	Budget        int                `json:"budget,omitempty" yaml:"budget,omitempty"`
	Params        map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param returns a numeric parameter or fallback when absent.
func (d ConstraintDefinition) Param(key string, fallback float64) float64 {
	if d.Params == nil {
		return fallback
	}
	if v, ok := d.Params[key]; ok {
		return v
	}
	return fallback
}
