// Package protocol compiles the declarative protocol template (step blocks
// with argument expressions over param.*) into an executable plan for one
// concrete recipe. Compilation is a pure, deterministic function of the
// recipe and the protocol configuration.
package protocol

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/plan"
	"github.com/crucible-lab/crucible/internal/population"
)

// Compiler turns recipes into plans against a fixed protocol template.
type Compiler struct {
	steps     []config.StepBlock
	normalize *config.NormalizeBlock
}

// NewCompiler validates that the template itself is well-formed (the
// structural checks that don't need a recipe) and returns a compiler.
func NewCompiler(steps []config.StepBlock, normalize *config.NormalizeBlock) (*Compiler, error) {
	c := &Compiler{steps: steps, normalize: normalize}
	// Compile against an empty recipe shape to surface template-level
	// problems (duplicate names, unknown deps, cycles) at startup.
	probe := plan.Plan{}
	for i, s := range steps {
		probe.Steps = append(probe.Steps, &plan.Step{
			Name:      s.Name,
			Link:      s.Link,
			Command:   s.Command,
			DependsOn: s.DependsOn,
			Index:     i,
		})
	}
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("protocol template: %w", err)
	}
	return c, nil
}

// Compile evaluates every step's argument expressions against the recipe's
// parameter values and returns the validated plan for one individual.
func (c *Compiler) Compile(ind *population.Individual) (*plan.Plan, error) {
	recipe, err := Normalize(ind.Recipe, c.normalize)
	if err != nil {
		return nil, fmt.Errorf("normalize recipe for %s: %w", ind.ID, err)
	}
	evalCtx := evalContext(recipe)
	p := &plan.Plan{RecipeID: ind.ID}
	for i, s := range c.steps {
		args, err := evalArgs(s, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		p.Steps = append(p.Steps, &plan.Step{
			Name:      s.Name,
			Link:      s.Link,
			Command:   s.Command,
			Args:      args,
			DependsOn: append([]string(nil), s.DependsOn...),
			Index:     i,
		})
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// evalContext exposes the recipe's parameters as param.<name> variables.
func evalContext(r population.Recipe) *hcl.EvalContext {
	params := make(map[string]cty.Value, len(r.Params))
	for i, name := range r.Params {
		params[name] = cty.NumberFloatVal(r.Values[i])
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"param": cty.ObjectVal(params),
		},
	}
}

// evalArgs resolves a step's args expression to a flat name -> number map.
func evalArgs(s config.StepBlock, evalCtx *hcl.EvalContext) (map[string]float64, error) {
	expr := s.ArgsExpr()
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate args: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("args must be an object, got %s", val.Type().FriendlyName())
	}
	out := make(map[string]float64)
	for name, v := range val.AsValueMap() {
		if v.Type() != cty.Number {
			return nil, fmt.Errorf("arg %q must be a number, got %s", name, v.Type().FriendlyName())
		}
		f, _ := v.AsBigFloat().Float64()
		out[name] = f
	}
	return out, nil
}
