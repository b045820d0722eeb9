package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPlan() *Plan {
	return &Plan{
		RecipeID: "r1",
		Steps: []*Step{
			{Name: "dispense_silver", Link: "pumps", Command: "dispense", Index: 0},
			{Name: "dispense_gold", Link: "pumps", Command: "dispense", Index: 1, DependsOn: []string{"dispense_silver"}},
			{Name: "stir", Link: "ring", Command: "stir", Index: 2, DependsOn: []string{"dispense_gold"}},
		},
	}
}

func TestValidate_AcceptsAcyclicPlan(t *testing.T) {
	require.NoError(t, validPlan().Validate())
}

func TestValidate_RejectsEmptyPlan(t *testing.T) {
	p := &Plan{}
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidPlan)
}

func TestValidate_RejectsCycle(t *testing.T) {
	p := &Plan{
		Steps: []*Step{
			{Name: "a", Link: "pumps", Command: "x", Index: 0, DependsOn: []string{"c"}},
			{Name: "b", Link: "pumps", Command: "x", Index: 1, DependsOn: []string{"a"}},
			{Name: "c", Link: "pumps", Command: "x", Index: 2, DependsOn: []string{"b"}},
		},
	}
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidPlan)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidate_RejectsSelfDependency(t *testing.T) {
	p := &Plan{
		Steps: []*Step{
			{Name: "a", Link: "pumps", Command: "x", Index: 0, DependsOn: []string{"a"}},
		},
	}
	require.ErrorIs(t, p.Validate(), ErrInvalidPlan)
}

func TestValidate_RejectsUnknownDependency(t *testing.T) {
	p := &Plan{
		Steps: []*Step{
			{Name: "a", Link: "pumps", Command: "x", Index: 0, DependsOn: []string{"ghost"}},
		},
	}
	err := p.Validate()
	require.ErrorIs(t, err, ErrInvalidPlan)
	assert.Contains(t, err.Error(), "ghost")
}

func TestValidate_RejectsDuplicateStepNames(t *testing.T) {
	p := &Plan{
		Steps: []*Step{
			{Name: "a", Link: "pumps", Command: "x", Index: 0},
			{Name: "a", Link: "ring", Command: "y", Index: 1},
		},
	}
	require.ErrorIs(t, p.Validate(), ErrInvalidPlan)
}

func TestLinks_ReturnsDistinctLinksInFirstUseOrder(t *testing.T) {
	assert.Equal(t, []string{"pumps", "ring"}, validPlan().Links())
}
