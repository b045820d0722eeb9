// Package plan defines the DAG of hardware commands derived from one recipe,
// and its structural validation.
package plan

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan marks a cyclic or malformed dependency graph. This is a
// programmer/config error and is fatal for the plan only.
var ErrInvalidPlan = errors.New("invalid plan")

// Step is one named device command plus its parameters and the set of steps
// that must complete before it may dispatch.
type Step struct {
	// Name uniquely identifies the step within its plan.
	Name string
	// Link is the logical device link the command targets.
	Link string
	// Command is the named command understood by the link's firmware.
	Command string
	// Args are the resolved command parameters.
	Args map[string]float64
	// DependsOn lists step names that must report COMPLETED first.
	DependsOn []string
	// Index is the step's position in plan order. Same-link eligible steps
	// are dispatched in ascending Index order.
	Index int
}

// Plan is the ordered set of steps compiled from one recipe.
type Plan struct {
	// RecipeID identifies the individual this plan was compiled for.
	RecipeID string
	Steps    []*Step
}

// Step returns the named step, or nil.
func (p *Plan) Step(name string) *Step {
	for _, s := range p.Steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Links returns the distinct link names the plan targets, in first-use order.
func (p *Plan) Links() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range p.Steps {
		if !seen[s.Link] {
			seen[s.Link] = true
			out = append(out, s.Link)
		}
	}
	return out
}

// Validate checks the plan's structure: non-empty steps, unique names,
// resolvable dependency references, and an acyclic dependency relation.
// Any violation is reported as ErrInvalidPlan.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("%w: plan has no steps", ErrInvalidPlan)
	}
	byName := make(map[string]*Step, len(p.Steps))
	for _, s := range p.Steps {
		if s.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidPlan, s.Index)
		}
		if s.Link == "" {
			return fmt.Errorf("%w: step %q targets no link", ErrInvalidPlan, s.Name)
		}
		if _, dup := byName[s.Name]; dup {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidPlan, s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return fmt.Errorf("%w: step %q depends on unknown step %q", ErrInvalidPlan, s.Name, dep)
			}
		}
	}
	if err := detectCycles(byName); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

// detectCycles checks for circular dependencies using DFS.
func detectCycles(steps map[string]*Step) error {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(s *Step) error
	visit = func(s *Step) error {
		visiting[s.Name] = true
		for _, depName := range s.DependsOn {
			dep := steps[depName]
			if visiting[dep.Name] {
				return fmt.Errorf("cycle detected involving %q", dep.Name)
			}
			if !visited[dep.Name] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, s.Name)
		visited[s.Name] = true
		return nil
	}

	for _, s := range steps {
		if !visited[s.Name] {
			if err := visit(s); err != nil {
				return err
			}
		}
	}
	return nil
}
