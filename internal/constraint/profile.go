package constraint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Profile is a YAML document that tunes the catalog for one configuration.
type Profile struct {
	Name    string                  `yaml:"name"`
	Budgets BudgetOverrides         `yaml:"budgets"`
	Rules   map[string]RuleOverride `yaml:"rules"`
}

// BudgetOverrides replaces the configured constraint ceilings when positive.
type BudgetOverrides struct {
	DefaultPerRule int            `yaml:"default_per_rule"`
	Global         int            `yaml:"global"`
	PerRule        map[string]int `yaml:"-"`
}

// RuleOverride adjusts one rule. Nil fields keep the registered value.
type RuleOverride struct {
	Active *bool              `yaml:"active"`
	Weight *int               `yaml:"weight"`
	Budget *int               `yaml:"budget"`
	Params map[string]float64 `yaml:"params"`
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraint profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a profile, rejecting unknown keys.
func ParseProfile(data []byte) (*Profile, error) {
	var profile Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&profile); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode constraint profile: %w", err)
	}
	for id, rule := range profile.Rules {
		if rule.Weight != nil && *rule.Weight < 0 {
			return nil, fmt.Errorf("constraint profile: rule %s has a negative weight", id)
		}
		if rule.Budget != nil && *rule.Budget < 0 {
			return nil, fmt.Errorf("constraint profile: rule %s has a negative budget", id)
		}
	}
	return &profile, nil
}

// Apply mutates reg according to the profile and returns the budget overrides
// the encoder should honour. Rules are applied in id order.
func (p *Profile) Apply(reg *Registry) (BudgetOverrides, error) {
	overrides := BudgetOverrides{
		DefaultPerRule: p.Budgets.DefaultPerRule,
		Global:         p.Budgets.Global,
		PerRule:        make(map[string]int),
	}
	ids := make([]string, 0, len(p.Rules))
	for id := range p.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rule := p.Rules[id]
		def, ok := reg.Definition(id)
		if !ok {
			return overrides, fmt.Errorf("%w: %s", ErrUnknown, id)
		}
		if rule.Weight != nil {
			def.DefaultWeight = *rule.Weight
		}
		if rule.Budget != nil {
			def.Budget = *rule.Budget
		}
		if len(rule.Params) > 0 {
			params := make(map[string]float64, len(def.Params)+len(rule.Params))
			for k, v := range def.Params {
				params[k] = v
			}
			for k, v := range rule.Params {
				params[k] = v
			}
			def.Params = params
		}
		if err := reg.Update(def); err != nil {
			return overrides, err
		}
		if def.Budget > 0 {
			overrides.PerRule[id] = def.Budget
		}
		if rule.Active != nil {
			var err error
			if *rule.Active {
				err = reg.Activate(id)
			} else {
				err = reg.Deactivate(id)
			}
			if err != nil {
				return overrides, err
			}
		}
	}
	return overrides, nil
}
