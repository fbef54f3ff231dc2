package constraint

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Oluwafemifere/adaptive-exam-timetabling-sub002/internal/models"
)

var (
	// ErrDuplicate is returned when a rule id is registered twice.
	ErrDuplicate = errors.New("constraint already registered")
	// ErrUnknown is returned for rule ids the registry never saw.
	ErrUnknown = errors.New("unknown constraint")
	// ErrUnknownDependency is returned when a rule depends on an unregistered id.
	ErrUnknownDependency = errors.New("unknown constraint dependency")
	// ErrCycle is returned when declared dependencies form a cycle.
	ErrCycle = errors.New("constraint dependency cycle")
)

// Registry stores rule definitions and the active set. It holds no solver state.
type Registry struct {
	defs   map[string]models.ConstraintDefinition
	active map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defs:   make(map[string]models.ConstraintDefinition),
		active: make(map[string]bool),
	}
}

// Register adds a definition. It does not activate it.
func (r *Registry) Register(def models.ConstraintDefinition) error {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknown)
	}
	if _, exists := r.defs[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	def.ID = id
	def.Dependencies = append([]string(nil), def.Dependencies...)
	r.defs[id] = def
	return nil
}

// Definition returns a registered definition.
func (r *Registry) Definition(id string) (models.ConstraintDefinition, bool) {
	def, ok := r.defs[id]
	return def, ok
}

// Update replaces a registered definition, keeping its activation state.
func (r *Registry) Update(def models.ConstraintDefinition) error {
	if _, ok := r.defs[def.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, def.ID)
	}
	r.defs[def.ID] = def
	return nil
}

// Activate adds id to the active set.
func (r *Registry) Activate(id string) error {
	if _, ok := r.defs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	r.active[id] = true
	return nil
}

// Deactivate removes id from the active set.
func (r *Registry) Deactivate(id string) error {
	if _, ok := r.defs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	delete(r.active, id)
	return nil
}

// IsActive reports whether id is in the active set.
func (r *Registry) IsActive(id string) bool { return r.active[id] }

// Active returns the active rule ids in lexical order.
func (r *Registry) Active() []string {
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every definition ordered by id.
func (r *Registry) All() []models.ConstraintDefinition {
	out := make([]models.ConstraintDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveOrder returns the definitions of ids plus their transitive
// dependencies so that every rule follows the rules it depends on. Ties are
// broken lexically so the order is stable.
func (r *Registry) ResolveOrder(ids []string) ([]models.ConstraintDefinition, error) {
	closure := make(map[string]bool)
	var visit func(id, from string) error
	visit = func(id, from string) error {
		if closure[id] {
			return nil
		}
		def, ok := r.defs[id]
		if !ok {
			if from == "" {
				return fmt.Errorf("%w: %s", ErrUnknown, id)
			}
			return fmt.Errorf("%w: %s required by %s", ErrUnknownDependency, id, from)
		}
		closure[id] = true
		for _, dep := range def.Dependencies {
			if err := visit(dep, id); err != nil {
				return err
			}
		}
		return nil
	}
	for _, id := range ids {
		if err := visit(id, ""); err != nil {
			return nil, err
		}
	}

	indegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))
	for id := range closure {
		deps := uniqueStrings(r.defs[id].Dependencies)
		indegree[id] = len(deps)
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	ordered := make([]models.ConstraintDefinition, 0, len(closure))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, r.defs[id])
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}

	if len(ordered) != len(closure) {
		var members []string
		for id, deg := range indegree {
			if deg > 0 {
				members = append(members, id)
			}
		}
		sort.Strings(members)
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(members, ", "))
	}
	return ordered, nil
}

// ResolveActive resolves the order of the current active set.
func (r *Registry) ResolveActive() ([]models.ConstraintDefinition, error) {
	return r.ResolveOrder(r.Active())
}

// ByCategory groups definitions for reporting.
func (r *Registry) ByCategory() map[models.ConstraintCategory][]models.ConstraintDefinition {
	groups := make(map[models.ConstraintCategory][]models.ConstraintDefinition)
	for _, def := range r.All() {
		groups[def.Category] = append(groups[def.Category], def)
	}
	return groups
}

func insertSorted(items []string, v string) []string {
	i := sort.SearchStrings(items, v)
	items = append(items, "")
	copy(items[i+1:], items[i:])
	items[i] = v
	return items
}

func uniqueStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

// SetWeight overrides the weight of a registered rule.
func (r *Registry) SetWeight(id string, weight int) error {
	def, ok := r.defs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	def.DefaultWeight = weight
	r.defs[id] = def
	return nil
}

// SetParam overrides one numeric parameter of a registered rule.
func (r *Registry) SetParam(id, key string, value float64) error {
	def, ok := r.defs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	params := make(map[string]float64, len(def.Params)+1)
	for k, v := range def.Params {
		params[k] = v
	}
	params[key] = value
	def.Params = params
	r.defs[id] = def
	return nil
}
