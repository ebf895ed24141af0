package engine

import (
	"github.com/provisor-io/provisor/internal/ir"
)

// Registry holds the step graph. Steps register in a stable order which
// breaks ordering ties, so the topological order is reproducible across
// runs of an unchanged definition.
type Registry struct {
	steps map[string]*ir.Step
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]*ir.Step),
	}
}

// Register adds a single step. Dependencies must already be registered:
// forward references are a definition-time error, which also makes cycles
// unconstructible through this path.
func (r *Registry) Register(step *ir.Step) error {
	if _, exists := r.steps[step.Name]; exists {
		return &DuplicateStepError{Name: step.Name}
	}
	for _, dep := range step.DependsOn {
		if _, ok := r.steps[dep]; !ok {
			return &UnknownDependencyError{Step: step.Name, Dependency: dep}
		}
	}
	r.steps[step.Name] = step
	r.order = append(r.order, step.Name)
	return nil
}

// Load bulk-registers a manifest-sourced step list. Manifests may declare
// steps in any order, so dependency existence is validated over the whole
// set; cycles are caught by TopologicalOrder.
func (r *Registry) Load(steps []*ir.Step) error {
	for _, step := range steps {
		if _, exists := r.steps[step.Name]; exists {
			return &DuplicateStepError{Name: step.Name}
		}
		r.steps[step.Name] = step
		r.order = append(r.order, step.Name)
	}
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := r.steps[dep]; !ok {
				return &UnknownDependencyError{Step: step.Name, Dependency: dep}
			}
		}
	}
	return nil
}

// Get returns a registered step, or nil.
func (r *Registry) Get(name string) *ir.Step {
	return r.steps[name]
}

// Steps returns all steps in registration order.
func (r *Registry) Steps() []*ir.Step {
	out := make([]*ir.Step, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.steps[name])
	}
	return out
}

// Dependencies returns the declared dependencies of a step.
func (r *Registry) Dependencies(name string) []string {
	if step, ok := r.steps[name]; ok {
		return step.DependsOn
	}
	return nil
}

// TopologicalOrder returns a deterministic linear ordering consistent with
// every dependsOn edge (Kahn's algorithm; among eligible steps the earliest
// registered goes first). Fails with CycleDetectedError if the graph is not
// a DAG.
func (r *Registry) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(r.order))
	dependents := make(map[string][]string, len(r.order))
	for _, name := range r.order {
		inDegree[name] = len(r.steps[name].DependsOn)
		for _, dep := range r.steps[name].DependsOn {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	emitted := make(map[string]bool, len(r.order))
	sorted := make([]string, 0, len(r.order))
	for len(sorted) < len(r.order) {
		progressed := false
		for _, name := range r.order {
			if emitted[name] || inDegree[name] != 0 {
				continue
			}
			emitted[name] = true
			sorted = append(sorted, name)
			for _, dependent := range dependents[name] {
				inDegree[dependent]--
			}
			progressed = true
			break
		}
		if !progressed {
			var remaining []string
			for _, name := range r.order {
				if !emitted[name] {
					remaining = append(remaining, name)
				}
			}
			return nil, &CycleDetectedError{Steps: remaining}
		}
	}

	return sorted, nil
}
