package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crucible-lab/crucible/internal/population"
)

func testGeneration(t *testing.T, index int) *population.Generation {
	t.Helper()
	gen := &population.Generation{Index: index, Seed: 42}
	for i := 0; i < 3; i++ {
		recipe, err := population.NewRecipe([]string{"silver", "gold"}, []float64{float64(i), 1})
		require.NoError(t, err)
		gen.Individuals = append(gen.Individuals,
			population.NewIndividual(index, recipe, population.Lineage{Operator: "seed"}))
	}
	return gen
}

func TestLoad_EmptyStoreReturnsNil(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	gen, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, gen)
}

func TestAppendLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	want := testGeneration(t, 0)
	require.NoError(t, s.Append(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Index, got.Index)
	assert.Equal(t, want.Seed, got.Seed)
	require.Len(t, got.Individuals, len(want.Individuals))
	for i := range want.Individuals {
		assert.Equal(t, want.Individuals[i].ID, got.Individuals[i].ID)
		assert.Equal(t, want.Individuals[i].Recipe, got.Individuals[i].Recipe)
		assert.Equal(t, population.StatusPending, got.Individuals[i].Status)
	}
}

func TestAppend_RejectsDuplicateIndex(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testGeneration(t, 0)))
	err = s.Append(ctx, testGeneration(t, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already recorded")
}

func TestSave_RequiresExistingGeneration(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	err = s.Save(context.Background(), testGeneration(t, 3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not recorded yet")
}

func TestSave_PersistsStatusAndFitnessUpdates(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	gen := testGeneration(t, 0)
	require.NoError(t, s.Append(ctx, gen))

	ind := gen.Individuals[0]
	require.NoError(t, ind.SetStatus(population.StatusRunning))
	require.NoError(t, ind.SetStatus(population.StatusCompleted))
	require.NoError(t, ind.SetFitness(7.25))
	require.NoError(t, s.Save(ctx, gen))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, population.StatusCompleted, got.Individuals[0].Status)
	require.NotNil(t, got.Individuals[0].Fitness)
	assert.Equal(t, 7.25, *got.Individuals[0].Fitness)
}

func TestLoad_ReturnsLatestGeneration(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testGeneration(t, 0)))
	require.NoError(t, s.Append(ctx, testGeneration(t, 1)))
	require.NoError(t, s.Append(ctx, testGeneration(t, 2)))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Index)
}

func TestHistory_ReturnsAllGenerationsInOrder(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, testGeneration(t, 0)))
	require.NoError(t, s.Append(ctx, testGeneration(t, 1)))

	history, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 0, history[0].Index)
	assert.Equal(t, 1, history[1].Index)
}

func TestWrite_LeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), testGeneration(t, 0)))

	entries, err := os.ReadDir(filepath.Join(dir, "generations"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "0000.json", entries[0].Name())
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := New(dir)
	require.NoError(t, err)
	gen := testGeneration(t, 0)
	require.NoError(t, s1.Append(ctx, gen))
	require.NoError(t, s1.Close())

	s2, err := New(dir)
	require.NoError(t, err)
	got, err := s2.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, gen.Individuals[0].ID, got.Individuals[0].ID)
}
