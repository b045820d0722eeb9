// Package gene implements the evolutionary operators: selection, crossover
// and mutation over real-valued genomes. Every operator is a pure function
// of its inputs and the caller-supplied RNG, so breeding is reproducible
// given the same seed and the same sequence of fitness values.
package gene

import (
	"fmt"
	"math/rand"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/population"
)

// Scored pairs a genome with its measured fitness, oriented so that higher
// is always fitter (the breeder negates for minimization upstream).
type Scored struct {
	ID      string
	Recipe  population.Recipe
	Fitness float64
}

// Selection picks n entries from the scored pool, in preference order.
type Selection interface {
	Name() string
	Pick(pool []Scored, n int, rng *rand.Rand) []Scored
}

// Crossover combines two parent genomes into a child genome.
type Crossover interface {
	Name() string
	Cross(a, b []float64, rng *rand.Rand) []float64
}

// Mutation perturbs a genome in place-order, returning a new slice.
type Mutation interface {
	Name() string
	Mutate(genome []float64, rng *rand.Rand) []float64
}

// NewSelection resolves a selection strategy identifier from configuration.
func NewSelection(block config.StrategyBlock) (Selection, error) {
	switch block.Name {
	case "truncation":
		return &Truncation{}, nil
	case "softmax":
		temp := block.Temp
		if temp <= 0 {
			temp = 1
		}
		return &Softmax{Temp: temp}, nil
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", block.Name)
	}
}

// NewCrossover resolves a crossover strategy identifier from configuration.
func NewCrossover(block config.StrategyBlock) (Crossover, error) {
	switch block.Name {
	case "blend":
		return &Blend{}, nil
	case "uniform":
		return &Uniform{}, nil
	default:
		return nil, fmt.Errorf("unknown crossover strategy %q", block.Name)
	}
}

// NewMutation resolves a mutation strategy identifier from configuration.
func NewMutation(block config.StrategyBlock) (Mutation, error) {
	switch block.Name {
	case "gaussian":
		rate, sd := block.Rate, block.SD
		if rate == 0 {
			rate = 0.3
		}
		if sd == 0 {
			sd = 0.1
		}
		return &Gaussian{Rate: rate, SD: sd}, nil
	case "none":
		return &NoMutation{}, nil
	default:
		return nil, fmt.Errorf("unknown mutation strategy %q", block.Name)
	}
}
