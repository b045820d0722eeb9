package gene

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/population"
)

// ErrEmptyPool is returned when a generation has no scored individuals to
// breed from. The scheduler treats this as fatal.
var ErrEmptyPool = errors.New("empty breeding pool")

// Breeder derives generation N+1 from a scored generation N.
type Breeder struct {
	selection Selection
	crossover Crossover
	mutation  Mutation

	popSize   int
	survivors int
	minimize  bool
	params    []string
	min, max  []float64
}

// NewBreeder assembles the configured strategies into a breeder.
func NewBreeder(cfg *config.Config) (*Breeder, error) {
	sel, err := NewSelection(cfg.Selection)
	if err != nil {
		return nil, err
	}
	cross, err := NewCrossover(cfg.Crossover)
	if err != nil {
		return nil, err
	}
	mut, err := NewMutation(cfg.Mutation)
	if err != nil {
		return nil, err
	}
	min, max := cfg.Bounds()
	return &Breeder{
		selection: sel,
		crossover: cross,
		mutation:  mut,
		popSize:   cfg.Population,
		survivors: cfg.Survivors,
		minimize:  cfg.Direction == "minimize",
		params:    cfg.ParamNames(),
		min:       min,
		max:       max,
	}, nil
}

// Breed computes the next generation's individuals: the configured number
// of survivors carried over unchanged, the rest bred by crossover of two
// selected parents followed by mutation, clipped to the parameter bounds.
// Pure given the generation's scored pool and the RNG.
func (b *Breeder) Breed(gen *population.Generation, rng *rand.Rand) (*population.Generation, error) {
	pool := b.pool(gen)
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: generation %d has no fitness values", ErrEmptyPool, gen.Index)
	}

	next := &population.Generation{Index: gen.Index + 1, Seed: gen.Seed}

	for _, s := range b.selection.Pick(pool, b.survivors, rng) {
		next.Individuals = append(next.Individuals, population.NewIndividual(
			next.Index, s.Recipe,
			population.Lineage{ParentIDs: []string{s.ID}, Operator: "survivor"},
		))
	}

	for len(next.Individuals) < b.popSize {
		parents := b.selection.Pick(pool, 2, rng)
		p0 := parents[0]
		p1 := p0
		if len(parents) > 1 {
			p1 = parents[1]
		}
		genome := b.crossover.Cross(p0.Recipe.Values, p1.Recipe.Values, rng)
		genome = b.mutation.Mutate(genome, rng)
		b.clip(genome)
		recipe, err := population.NewRecipe(b.params, genome)
		if err != nil {
			return nil, err
		}
		next.Individuals = append(next.Individuals, population.NewIndividual(
			next.Index, recipe,
			population.Lineage{
				ParentIDs: []string{p0.ID, p1.ID},
				Operator:  b.crossover.Name() + "+" + b.mutation.Name(),
			},
		))
	}
	return next, nil
}

// pool extracts the breeding pool, orienting fitness so higher is fitter.
func (b *Breeder) pool(gen *population.Generation) []Scored {
	var out []Scored
	for _, ind := range gen.Scored() {
		f := *ind.Fitness
		if b.minimize {
			f = -f
		}
		out = append(out, Scored{ID: ind.ID, Recipe: ind.Recipe, Fitness: f})
	}
	return out
}

// clip keeps every locus inside the configured bounds.
func (b *Breeder) clip(genome []float64) {
	for i := range genome {
		if genome[i] < b.min[i] {
			genome[i] = b.min[i]
		}
		if genome[i] > b.max[i] {
			genome[i] = b.max[i]
		}
	}
}
