package service

import (
	"fmt"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/encoder"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
)

// ConstraintPlan is the resolved rule order and budget shared by every job.
type ConstraintPlan struct {
	Order   []models.ConstraintDefinition
	Budget  encoder.Budget
	Profile string
}

// IDs lists the rule ids of the plan in encoding order.
func (c ConstraintPlan) IDs() []string {
	ids := make([]string, len(c.Order))
	for i, def := range c.Order {
		ids[i] = def.ID
	}
	return ids
}

// Rules returns the hard rules of the plan that finished timetables are
// checked against, with the same parameter defaults the encoder uses.
func (c ConstraintPlan) Rules() problem.Rules {
	var rules problem.Rules
	for _, def := range c.Order {
		if def.Kind != models.ConstraintHard {
			continue
		}
		switch def.ID {
		case constraint.MinimumGap:
			rules.GapSlots = int(def.Param("gap_slots", 1))
		case constraint.MaxExamsPerDay:
			rules.MaxExamsPerDay = int(def.Param("limit", 2))
		case constraint.InstructorExclusion:
			rules.InstructorExclusion = true
		case constraint.InvigilatorBackToBack:
			rules.BackToBack = true
		case constraint.InvigilatorDailyLimit:
			rules.StaffDailyLimit = true
		}
	}
	return rules
}

// ResolveConstraints applies configured parameters and then profile (which
// may be nil) to the built-in catalog and resolves the active order.
func ResolveConstraints(cfg config.EncoderConfig, profile *constraint.Profile) (ConstraintPlan, error) {
	reg := constraint.DefaultCatalog()

	params := []struct {
		rule, key string
		value     int
	}{
		{constraint.MinimumGap, "gap_slots", cfg.MinGapSlots},
		{constraint.MaxExamsPerDay, "limit", cfg.MaxExamsPerStudentDay},
		{constraint.MinimumInvigilators, "students_per_invigilator", cfg.StudentsPerInvigilator},
	}
	for _, p := range params {
		if p.value <= 0 {
			continue
		}
		if err := reg.SetParam(p.rule, p.key, float64(p.value)); err != nil {
			return ConstraintPlan{}, err
		}
	}

	weights := map[string]int{
		constraint.DailyWorkloadBalance: cfg.DailyBalanceWeight,
		constraint.PreferredSlots:       cfg.PreferredSlotWeight,
		constraint.RoomWaste:            cfg.RoomWasteWeight,
		constraint.InvigilatorBalance:   cfg.InvigilatorBalanceWeight,
	}
	for id, w := range weights {
		if w <= 0 {
			continue
		}
		if err := reg.SetWeight(id, w); err != nil {
			return ConstraintPlan{}, err
		}
	}

	perRule, global := cfg.DefaultRuleBudget, cfg.GlobalBudget
	var overrides map[string]int
	name := ""
	if profile != nil {
		applied, err := profile.Apply(reg)
		if err != nil {
			return ConstraintPlan{}, fmt.Errorf("apply constraint profile %q: %w", profile.Name, err)
		}
		if applied.DefaultPerRule > 0 {
			perRule = applied.DefaultPerRule
		}
		if applied.Global > 0 {
			global = applied.Global
		}
		overrides = applied.PerRule
		name = profile.Name
	}

	order, err := reg.ResolveActive()
	if err != nil {
		return ConstraintPlan{}, fmt.Errorf("resolve constraint order: %w", err)
	}
	return ConstraintPlan{
		Order:   order,
		Budget:  encoder.NewBudget(perRule, global, overrides),
		Profile: name,
	}, nil
}

// LoadConstraintPlan reads the configured profile, if any, and resolves the
// plan shared by every job of the process.
func LoadConstraintPlan(cfg *config.Config) (ConstraintPlan, error) {
	var profile *constraint.Profile
	if path := cfg.Constraints.ProfilePath; path != "" {
		loaded, err := constraint.LoadProfile(path)
		if err != nil {
			return ConstraintPlan{}, fmt.Errorf("load constraint profile: %w", err)
		}
		profile = loaded
	}
	return ResolveConstraints(cfg.Encoder, profile)
}
