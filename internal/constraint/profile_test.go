package constraint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProfile = `
name: strict
budgets:
  default_per_rule: 1000
  global: 5000
rules:
  minimum_gap:
    weight: 0
    budget: 200
    params:
      gap_slots: 2
  early_large_exams:
    active: false
  invigilator_balance:
    weight: 9
`

func TestParseProfileAndApply(t *testing.T) {
	profile, err := ParseProfile([]byte(sampleProfile))
	require.NoError(t, err)
	assert.Equal(t, "strict", profile.Name)

	reg := DefaultCatalog()
	overrides, err := profile.Apply(reg)
	require.NoError(t, err)

	assert.Equal(t, 1000, overrides.DefaultPerRule)
	assert.Equal(t, 5000, overrides.Global)
	assert.Equal(t, map[string]int{MinimumGap: 200}, overrides.PerRule)

	gap, ok := reg.Definition(MinimumGap)
	require.True(t, ok)
	assert.Equal(t, 2.0, gap.Param("gap_slots", 1))
	assert.False(t, reg.IsActive(EarlyLargeExams))
	assert.True(t, reg.IsActive(MinimumGap))

	balance, _ := reg.Definition(InvigilatorBalance)
	assert.Equal(t, 9, balance.DefaultWeight)
}

func TestParseProfileRejectsUnknownKeysAndNegativeValues(t *testing.T) {
	_, err := ParseProfile([]byte("rules:\n  minimum_gap:\n    wieght: 3\n"))
	assert.Error(t, err)

	_, err = ParseProfile([]byte("rules:\n  minimum_gap:\n    budget: -1\n"))
	assert.Error(t, err)
}

func TestApplyUnknownRule(t *testing.T) {
	profile, err := ParseProfile([]byte("rules:\n  not_a_rule:\n    active: true\n"))
	require.NoError(t, err)
	_, err = profile.Apply(DefaultCatalog())
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestLoadProfileFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleProfile), 0o600))
	profile, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Len(t, profile.Rules, 3)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
