// Package encoder turns a Problem and an ordered rule list into solver models.
// Phase 1 picks a start slot per exam; Phase 2 assigns rooms, seats and
// invigilators for one day at a time.
package encoder

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/problem"
	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/solver"
)

// Phase selects which model a rule contributes to.
type Phase int

const (
	Phase1 Phase = 1
	Phase2 Phase = 2
)

// Default budgets used when none are configured.
const (
	DefaultRuleBudget   = 50000
	DefaultGlobalBudget = 250000
)

// ErrModelBuild marks every failure raised while building a model.
var ErrModelBuild = errors.New("model build error")

// BuildError names the rule that could not be encoded.
type BuildError struct {
	Rule   string
	Reason string
}

func (e *BuildError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("model build error: %s", e.Reason)
	}
	return fmt.Sprintf("model build error in %s: %s", e.Rule, e.Reason)
}

// Unwrap lets errors.Is match ErrModelBuild.
func (e *BuildError) Unwrap() error { return ErrModelBuild }

func buildErr(rule, format string, args ...any) error {
	return &BuildError{Rule: rule, Reason: fmt.Sprintf(format, args...)}
}

// Budget caps the number of constraints a rule and a whole model may emit.
type Budget struct {
	DefaultPerRule int
	Global         int
	PerRule        map[string]int
}

// NewBudget applies defaults to non-positive values.
func NewBudget(perRule, global int, overrides map[string]int) Budget {
	if perRule <= 0 {
		perRule = DefaultRuleBudget
	}
	if global <= 0 {
		global = DefaultGlobalBudget
	}
	b := Budget{DefaultPerRule: perRule, Global: global, PerRule: make(map[string]int, len(overrides))}
	for id, v := range overrides {
		if v > 0 {
			b.PerRule[id] = v
		}
	}
	return b
}

// RuleLimit returns the cap for one rule, preferring the definition's own
// budget, then the per-rule override, then the default.
func (b Budget) RuleLimit(def models.ConstraintDefinition) int {
	if v, ok := b.PerRule[def.ID]; ok && v > 0 {
		return v
	}
	if def.Budget > 0 {
		return def.Budget
	}
	if b.DefaultPerRule > 0 {
		return b.DefaultPerRule
	}
	return DefaultRuleBudget
}

func (b Budget) globalLimit() int {
	if b.Global > 0 {
		return b.Global
	}
	return DefaultGlobalBudget
}

// Settings carry encoder behaviour that is not a rule parameter.
type Settings struct {
	// RequireInvigilators fails minimum_invigilators when no eligible staff exist.
	RequireInvigilators bool
	// MaxSplitRooms caps the rooms one split exam may use; 0 means unlimited.
	MaxSplitRooms int
}

// RuleReport is the per-rule accounting of one encoding.
type RuleReport struct {
	Rule           string `json:"rule"`
	Constraints    int    `json:"constraints"`
	Trimmed        int    `json:"trimmed"`
	Demand         int    `json:"demand"`
	ObjectiveTerms int    `json:"objective_terms"`
}

// Report summarises one encoded model.
type Report struct {
	Phase       Phase        `json:"phase"`
	Day         int          `json:"day"`
	Rules       []RuleReport `json:"rules"`
	Variables   int          `json:"variables"`
	Constraints int          `json:"constraints"`
	Trimmed     int          `json:"trimmed"`
}

// Counts maps rule id to emitted constraints.
func (r Report) Counts() map[string]int {
	out := make(map[string]int, len(r.Rules))
	for _, rr := range r.Rules {
		out[rr.Rule] = rr.Constraints
	}
	return out
}

// TrimmedCounts maps rule id to dropped candidates, omitting untrimmed rules.
func (r Report) TrimmedCounts() map[string]int {
	out := make(map[string]int)
	for _, rr := range r.Rules {
		if rr.Trimmed > 0 {
			out[rr.Rule] = rr.Trimmed
		}
	}
	return out
}

// Rule returns the report of one rule.
func (r Report) Rule(id string) (RuleReport, bool) {
	for _, rr := range r.Rules {
		if rr.Rule == id {
			return rr, true
		}
	}
	return RuleReport{}, false
}

// Builder is handed to every module. It owns the model under construction
// and enforces the budgets of the rule currently being encoded.
type Builder struct {
	Problem  *problem.Problem
	Model    *solver.Model
	Settings Settings

	p1 *phase1Vars
	p2 *phase2Vars

	budget  Budget
	def     models.ConstraintDefinition
	current *RuleReport
	total   int
}

// Weight returns the rule weight as an objective coefficient.
func (b *Builder) Weight() int64 { return int64(b.def.DefaultWeight) }

// IntParam reads a numeric rule parameter, truncated.
func (b *Builder) IntParam(key string, fallback int) int {
	return int(b.def.Param(key, float64(fallback)))
}

// Remaining is how many constraints the current rule may still emit.
func (b *Builder) Remaining() int {
	rule := b.budget.RuleLimit(b.def) - b.current.Constraints
	global := b.budget.globalLimit() - b.total
	if global < rule {
		rule = global
	}
	if rule < 0 {
		return 0
	}
	return rule
}

// Demand records how many constraints the rule's input calls for.
func (b *Builder) Demand(n int) { b.current.Demand += n }

// Trimmed records candidates dropped by the sparsity policy.
func (b *Builder) Trimmed(n int) { b.current.Trimmed += n }

// Add emits a constraint. Rules that cannot be trimmed fail once the budget
// is spent.
func (b *Builder) Add(terms []solver.Term, lo, hi int64) error {
	if b.Remaining() == 0 {
		return buildErr(b.def.ID, "constraint budget of %d exhausted", b.budget.RuleLimit(b.def))
	}
	b.Model.AddLinear(b.def.ID, terms, lo, hi)
	b.current.Constraints++
	b.total++
	return nil
}

// AtMost emits sum(terms) <= rhs.
func (b *Builder) AtMost(terms []solver.Term, rhs int64) error {
	return b.Add(terms, solver.MinBound, rhs)
}

// AtLeast emits sum(terms) >= rhs.
func (b *Builder) AtLeast(terms []solver.Term, rhs int64) error {
	return b.Add(terms, rhs, solver.MaxBound)
}

// Equal emits sum(terms) == rhs.
func (b *Builder) Equal(terms []solver.Term, rhs int64) error {
	return b.Add(terms, rhs, rhs)
}

// Penalize adds weighted objective terms.
func (b *Builder) Penalize(terms ...solver.Term) {
	b.Model.Minimize(terms...)
	b.current.ObjectiveTerms += len(terms)
}

// candidate is one constraint a trimmable rule would like to emit.
type candidate struct {
	rank  int
	terms []solver.Term
	lo    int64
	hi    int64
}

// emitRanked emits candidates by rank desc until the budget runs out and
// records the rest as trimmed.
func (b *Builder) emitRanked(cands []candidate) error {
	b.Demand(len(cands))
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].rank > cands[j].rank })
	room := b.Remaining()
	if room > len(cands) {
		room = len(cands)
	}
	for _, c := range cands[:room] {
		if err := b.Add(c.terms, c.lo, c.hi); err != nil {
			return err
		}
	}
	b.Trimmed(len(cands) - room)
	return nil
}

// run encodes every module of phase in order.
func (b *Builder) run(table map[string]Module, phase Phase, order []models.ConstraintDefinition, report *Report) error {
	for _, def := range order {
		if Phase(def.Phase) != phase {
			continue
		}
		mod, ok := table[def.ID]
		if !ok || mod.Phase() != phase {
			return buildErr(def.ID, "no encoder module registered for phase %d", phase)
		}
		report.Rules = append(report.Rules, RuleReport{Rule: def.ID})
		b.def = def
		b.current = &report.Rules[len(report.Rules)-1]
		if err := mod.Encode(b); err != nil {
			return err
		}
		rr := b.current
		if def.Kind == models.ConstraintHard && rr.Demand > 0 && rr.Constraints == 0 {
			return buildErr(def.ID, "budget left no constraints for %d required", rr.Demand)
		}
		report.Trimmed += rr.Trimmed
	}
	report.Variables = b.Model.NumVars()
	report.Constraints = b.Model.NumConstraints()
	return nil
}
