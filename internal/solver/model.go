package solver

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Bounds used for one-sided constraints.
const (
	MinBound int64 = math.MinInt64 / 4
	MaxBound int64 = math.MaxInt64 / 4
)

// ErrInvalidModel is returned by Validate.
var ErrInvalidModel = errors.New("invalid solver model")

// VarID identifies a variable inside one model.
type VarID int

// Var is a bounded integer decision variable; booleans use [0,1].
type Var struct {
	Name string
	Lo   int64
	Hi   int64
}

// IsBool reports whether the variable is a 0/1 variable.
func (v Var) IsBool() bool { return v.Lo >= 0 && v.Hi <= 1 }

// Term is coef * var.
type Term struct {
	Var  VarID
	Coef int64
}

// T builds a term.
func T(v VarID, coef int64) Term { return Term{Var: v, Coef: coef} }

// Sum builds unit terms for vars.
func Sum(vars ...VarID) []Term {
	terms := make([]Term, len(vars))
	for i, v := range vars {
		terms[i] = Term{Var: v, Coef: 1}
	}
	return terms
}

// Constraint is lo <= sum(terms) <= hi, tagged with the rule that emitted it.
type Constraint struct {
	Rule  string
	Terms []Term
	Lo    int64
	Hi    int64
}

// Model is a linear integer program with a minimisation objective.
type Model struct {
	Name        string
	vars        []Var
	constraints []Constraint
	objective   []Term
	hints       map[VarID]int64
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name, hints: make(map[VarID]int64)}
}

// NewBool adds a 0/1 variable.
func (m *Model) NewBool(name string) VarID {
	return m.NewInt(name, 0, 1)
}

// NewInt adds a bounded integer variable.
func (m *Model) NewInt(name string, lo, hi int64) VarID {
	m.vars = append(m.vars, Var{Name: name, Lo: lo, Hi: hi})
	return VarID(len(m.vars) - 1)
}

// AddLinear adds lo <= sum(terms) <= hi. Repeated variables are merged and
// zero coefficients dropped.
func (m *Model) AddLinear(rule string, terms []Term, lo, hi int64) {
	m.constraints = append(m.constraints, Constraint{Rule: rule, Terms: mergeTerms(terms), Lo: lo, Hi: hi})
}

// AddEquality adds sum(terms) == rhs.
func (m *Model) AddEquality(rule string, terms []Term, rhs int64) {
	m.AddLinear(rule, terms, rhs, rhs)
}

// AddAtMost adds sum(terms) <= rhs.
func (m *Model) AddAtMost(rule string, terms []Term, rhs int64) {
	m.AddLinear(rule, terms, MinBound, rhs)
}

// AddAtLeast adds sum(terms) >= rhs.
func (m *Model) AddAtLeast(rule string, terms []Term, rhs int64) {
	m.AddLinear(rule, terms, rhs, MaxBound)
}

// Minimize appends terms to the objective.
func (m *Model) Minimize(terms ...Term) {
	m.objective = append(m.objective, terms...)
}

// Hint suggests a value tried first during search.
func (m *Model) Hint(v VarID, value int64) { m.hints[v] = value }

// Var returns a variable definition.
func (m *Model) Var(v VarID) Var { return m.vars[v] }

// NumVars returns the variable count.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the constraint count.
func (m *Model) NumConstraints() int { return len(m.constraints) }

// Constraints exposes the constraint list.
func (m *Model) Constraints() []Constraint { return m.constraints }

// Objective returns the merged objective terms.
func (m *Model) Objective() []Term { return mergeTerms(m.objective) }

// CountByRule tallies constraints per rule tag.
func (m *Model) CountByRule() map[string]int {
	counts := make(map[string]int)
	for _, c := range m.constraints {
		counts[c.Rule]++
	}
	return counts
}

// Validate checks variable references and bounds.
func (m *Model) Validate() error {
	for i, v := range m.vars {
		if v.Lo > v.Hi {
			return fmt.Errorf("%w: variable %s has empty domain", ErrInvalidModel, nameOr(v.Name, i))
		}
	}
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if int(t.Var) < 0 || int(t.Var) >= len(m.vars) {
				return fmt.Errorf("%w: %s references variable %d", ErrInvalidModel, where, t.Var)
			}
		}
		return nil
	}
	for i, c := range m.constraints {
		if c.Lo > c.Hi {
			return fmt.Errorf("%w: constraint %d (%s) has lo > hi", ErrInvalidModel, i, c.Rule)
		}
		if err := check(c.Rule, c.Terms); err != nil {
			return err
		}
	}
	return check("objective", m.objective)
}

func nameOr(name string, i int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("#%d", i)
}

func mergeTerms(terms []Term) []Term {
	if len(terms) == 0 {
		return nil
	}
	coefs := make(map[VarID]int64, len(terms))
	order := make([]VarID, 0, len(terms))
	for _, t := range terms {
		if _, seen := coefs[t.Var]; !seen {
			order = append(order, t.Var)
		}
		coefs[t.Var] += t.Coef
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Term, 0, len(order))
	for _, v := range order {
		if c := coefs[v]; c != 0 {
			out = append(out, Term{Var: v, Coef: c})
		}
	}
	return out
}
