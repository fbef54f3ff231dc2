package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/constraint"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/pkg/config"
)

func definition(t *testing.T, plan ConstraintPlan, id string) models.ConstraintDefinition {
	t.Helper()
	def, ok := lo.Find(plan.Order, func(d models.ConstraintDefinition) bool { return d.ID == id })
	require.True(t, ok, "rule %s not active", id)
	return def
}

func TestResolveConstraintsAppliesConfig(t *testing.T) {
	plan, err := ResolveConstraints(config.EncoderConfig{
		DefaultRuleBudget:     500,
		GlobalBudget:          5000,
		MinGapSlots:           2,
		MaxExamsPerStudentDay: 3,
		RoomWasteWeight:       9,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, definition(t, plan, constraint.MinimumGap).Param("gap_slots", 0))
	assert.Equal(t, 3.0, definition(t, plan, constraint.MaxExamsPerDay).Param("limit", 0))
	assert.Equal(t, 9, definition(t, plan, constraint.RoomWaste).DefaultWeight)
	assert.Equal(t, 500, plan.Budget.DefaultPerRule)
	assert.Equal(t, 5000, plan.Budget.Global)
	assert.Empty(t, plan.Profile)

	ids := plan.IDs()
	assert.Less(t, lo.IndexOf(ids, constraint.ExactlyOneStart), lo.IndexOf(ids, constraint.StudentConflict))
}

func TestResolveConstraintsProfileOverridesConfig(t *testing.T) {
	profile, err := constraint.ParseProfile([]byte(`
name: strict
budgets:
  default_per_rule: 800
rules:
  room_waste:
    active: false
  student_conflict:
    budget: 40
  minimum_gap:
    params:
      gap_slots: 3
`))
	require.NoError(t, err)

	plan, err := ResolveConstraints(config.EncoderConfig{DefaultRuleBudget: 500, GlobalBudget: 5000, MinGapSlots: 1}, profile)
	require.NoError(t, err)

	assert.Equal(t, "strict", plan.Profile)
	assert.NotContains(t, plan.IDs(), constraint.RoomWaste)
	assert.Equal(t, 3.0, definition(t, plan, constraint.MinimumGap).Param("gap_slots", 0))
	assert.Equal(t, 800, plan.Budget.DefaultPerRule)
	assert.Equal(t, 5000, plan.Budget.Global)
	assert.Equal(t, 40, plan.Budget.RuleLimit(definition(t, plan, constraint.StudentConflict)))
}

func TestConstraintPlanRulesFollowActiveRules(t *testing.T) {
	plan, err := ResolveConstraints(config.EncoderConfig{MinGapSlots: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, problem.Rules{
		GapSlots:            2,
		MaxExamsPerDay:      2,
		InstructorExclusion: true,
		BackToBack:          true,
		StaffDailyLimit:     true,
	}, plan.Rules())

	profile, err := constraint.ParseProfile([]byte(`
name: relaxed
rules:
  minimum_gap:
    active: false
  invigilator_back_to_back:
    active: false
`))
	require.NoError(t, err)
	relaxed, err := ResolveConstraints(config.EncoderConfig{}, profile)
	require.NoError(t, err)
	rules := relaxed.Rules()
	assert.Zero(t, rules.GapSlots)
	assert.False(t, rules.BackToBack)
	assert.True(t, rules.InstructorExclusion)
}

func TestViolationTypesMatchRuleIDs(t *testing.T) {
	assert.Equal(t, constraint.MinimumGap, problem.ViolationMinimumGap)
	assert.Equal(t, constraint.MaxExamsPerDay, problem.ViolationMaxExamsPerDay)
	assert.Equal(t, constraint.InstructorExclusion, problem.ViolationInstructorExclusion)
	assert.Equal(t, constraint.InvigilatorBackToBack, problem.ViolationBackToBack)
	assert.Equal(t, constraint.InvigilatorDailyLimit, problem.ViolationStaffDailyLimit)
}

func TestResolveConstraintsRejectsBadProfile(t *testing.T) {
	profile := &constraint.Profile{Name: "broken", Rules: map[string]constraint.RuleOverride{"no_such_rule": {}}}
	_, err := ResolveConstraints(config.EncoderConfig{}, profile)
	assert.Error(t, err)
}

func TestLoadConstraintPlanReadsProfileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: lenient\nrules:\n  preferred_slots:\n    active: false\n"), 0o600))

	cfg := &config.Config{Encoder: config.EncoderConfig{DefaultRuleBudget: 100, GlobalBudget: 1000}}
	cfg.Constraints.ProfilePath = path
	plan, err := LoadConstraintPlan(cfg)
	require.NoError(t, err)
	assert.Equal(t, "lenient", plan.Profile)
	assert.NotContains(t, plan.IDs(), constraint.PreferredSlots)

	cfg.Constraints.ProfilePath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = LoadConstraintPlan(cfg)
	assert.Error(t, err)
}

func TestOptimizerConfigFromMapsSettings(t *testing.T) {
	cfg := &config.Config{}
	cfg.Solver.Phase2Parallelism = 4
	cfg.Encoder.MaxSplitRooms = 2
	cfg.Encoder.StudentsPerInvigilator = 30
	cfg.Genetic.Enabled = true
	cfg.Genetic.Generations = 12

	out := OptimizerConfigFrom(cfg)

	assert.Equal(t, 4, out.Phase2Parallelism)
	assert.Equal(t, 2, out.Encoder.MaxSplitRooms)
	assert.True(t, out.GeneticEnabled)
	assert.Equal(t, 12, out.Genetic.Generations)
	assert.Equal(t, 30, out.Genetic.StudentsPerInvigilator)
}
