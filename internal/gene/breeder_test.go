package gene

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/population"
)

func testConfig() *config.Config {
	return &config.Config{
		Population: 4,
		Survivors:  2,
		Direction:  "maximize",
		Parameters: []config.ParameterBlock{
			{Name: "silver", Min: 0, Max: 10},
			{Name: "gold", Min: 0, Max: 5},
		},
		Selection: config.StrategyBlock{Name: "truncation"},
		Crossover: config.StrategyBlock{Name: "blend"},
		Mutation:  config.StrategyBlock{Name: "gaussian", Rate: 0.3, SD: 0.1},
	}
}

func scoredGeneration(t *testing.T, fitnesses []float64) *population.Generation {
	t.Helper()
	gen := &population.Generation{Index: 0, Seed: 42}
	for i, f := range fitnesses {
		recipe, err := population.NewRecipe(
			[]string{"silver", "gold"},
			[]float64{float64(i + 1), float64(i) * 0.5},
		)
		require.NoError(t, err)
		ind := population.NewIndividual(0, recipe, population.Lineage{Operator: "seed"})
		require.NoError(t, ind.SetStatus(population.StatusRunning))
		require.NoError(t, ind.SetStatus(population.StatusCompleted))
		require.NoError(t, ind.SetFitness(f))
		gen.Individuals = append(gen.Individuals, ind)
	}
	return gen
}

func TestBreed_TruncationCarriesFittestSurvivors(t *testing.T) {
	b, err := NewBreeder(testConfig())
	require.NoError(t, err)

	gen := scoredGeneration(t, []float64{1, 5, 3, 9})
	next, err := b.Breed(gen, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	require.Len(t, next.Individuals, 4)
	assert.Equal(t, 1, next.Index)

	// The two fittest (9 and 5) survive unchanged, fittest first.
	s0, s1 := next.Individuals[0], next.Individuals[1]
	assert.Equal(t, "survivor", s0.Lineage.Operator)
	assert.Equal(t, "survivor", s1.Lineage.Operator)
	assert.Equal(t, gen.Individuals[3].Recipe, s0.Recipe)
	assert.Equal(t, gen.Individuals[1].Recipe, s1.Recipe)
	assert.Equal(t, []string{gen.Individuals[3].ID}, s0.Lineage.ParentIDs)
	assert.Equal(t, []string{gen.Individuals[1].ID}, s1.Lineage.ParentIDs)

	// Children are bred from the top two parents under truncation.
	for _, child := range next.Individuals[2:] {
		assert.Equal(t, "blend+gaussian", child.Lineage.Operator)
		assert.ElementsMatch(t,
			[]string{gen.Individuals[3].ID, gen.Individuals[1].ID},
			child.Lineage.ParentIDs)
		assert.Equal(t, population.StatusPending, child.Status)
	}
}

func TestBreed_MinimizePrefersLowestFitness(t *testing.T) {
	cfg := testConfig()
	cfg.Direction = "minimize"
	b, err := NewBreeder(cfg)
	require.NoError(t, err)

	gen := scoredGeneration(t, []float64{3, 9, 1, 5})
	next, err := b.Breed(gen, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, gen.Individuals[2].Recipe, next.Individuals[0].Recipe)
	assert.Equal(t, gen.Individuals[0].Recipe, next.Individuals[1].Recipe)
}

func TestBreed_DeterministicForSameRNGSeed(t *testing.T) {
	b, err := NewBreeder(testConfig())
	require.NoError(t, err)
	gen := scoredGeneration(t, []float64{3, 9, 1, 5})

	a, err := b.Breed(gen, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	c, err := b.Breed(gen, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	require.Len(t, c.Individuals, len(a.Individuals))
	for i := range a.Individuals {
		assert.Equal(t, a.Individuals[i].Recipe, c.Individuals[i].Recipe)
		assert.Equal(t, a.Individuals[i].Lineage.Operator, c.Individuals[i].Lineage.Operator)
	}
}

func TestBreed_ChildrenStayWithinBounds(t *testing.T) {
	cfg := testConfig()
	cfg.Mutation = config.StrategyBlock{Name: "gaussian", Rate: 1, SD: 50}
	b, err := NewBreeder(cfg)
	require.NoError(t, err)

	gen := scoredGeneration(t, []float64{3, 9, 1, 5})
	next, err := b.Breed(gen, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	min, max := cfg.Bounds()
	for _, ind := range next.Individuals[2:] {
		for i, v := range ind.Recipe.Values {
			assert.GreaterOrEqual(t, v, min[i])
			assert.LessOrEqual(t, v, max[i])
		}
	}
}

func TestBreed_EmptyPoolIsFatal(t *testing.T) {
	b, err := NewBreeder(testConfig())
	require.NoError(t, err)

	gen := &population.Generation{Index: 2}
	recipe, err := population.NewRecipe([]string{"silver", "gold"}, []float64{1, 1})
	require.NoError(t, err)
	ind := population.NewIndividual(2, recipe, population.Lineage{})
	require.NoError(t, ind.SetStatus(population.StatusRunning))
	require.NoError(t, ind.MarkFailed("STEP_TIMEOUT", "stir", "no completion"))
	gen.Individuals = append(gen.Individuals, ind)

	_, err = b.Breed(gen, rand.New(rand.NewSource(1)))
	require.ErrorIs(t, err, ErrEmptyPool)
}

func TestSoftmax_HighTemperatureFlattens(t *testing.T) {
	pool := []Scored{
		{ID: "a", Fitness: 1},
		{ID: "b", Fitness: 10},
	}
	sharp := &Softmax{Temp: 0.1}
	rng := rand.New(rand.NewSource(5))

	// At a sharp temperature the fitter entry dominates the first draw.
	bWins := 0
	for i := 0; i < 100; i++ {
		picked := sharp.Pick(pool, 1, rng)
		if picked[0].ID == "b" {
			bWins++
		}
	}
	assert.Greater(t, bWins, 95)
}

func TestSoftmax_PicksWithoutReplacement(t *testing.T) {
	pool := []Scored{
		{ID: "a", Fitness: 1},
		{ID: "b", Fitness: 2},
		{ID: "c", Fitness: 3},
	}
	s := &Softmax{Temp: 1}
	picked := s.Pick(pool, 3, rand.New(rand.NewSource(11)))
	require.Len(t, picked, 3)
	seen := map[string]bool{}
	for _, p := range picked {
		assert.False(t, seen[p.ID], "entry %s drawn twice", p.ID)
		seen[p.ID] = true
	}
}
