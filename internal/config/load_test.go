package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalExperiment = `
experiment {
  title       = "silver nanoparticle search"
  population  = 8
  generations = 5
  seed        = 42

  parameter "silver" {
    min = 0
    max = 10
  }

  parameter "gold" {
    min = 0
    max = 5
  }
}

link "pumps" {
  url = "http://localhost:3000"
}

step "dispense_silver" {
  link    = "pumps"
  command = "dispense"
  args    = { pump = 1, volume = param.silver }
}
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MinimalExperimentGetsDefaults(t *testing.T) {
	path := writeConfig(t, "experiment.hcl", minimalExperiment)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "silver nanoparticle search", cfg.Title)
	assert.Equal(t, 8, cfg.Population)
	assert.Equal(t, 5, cfg.Generations)
	assert.EqualValues(t, 42, cfg.Seed)

	assert.Equal(t, DefaultDirection, cfg.Direction)
	assert.Equal(t, DefaultSurvivors, cfg.Survivors)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, DefaultStepTimeout, cfg.StepTimeout)
	assert.Equal(t, DefaultFitnessTimeout, cfg.FitnessTimeout)

	assert.Equal(t, "truncation", cfg.Selection.Name)
	assert.Equal(t, "blend", cfg.Crossover.Name)
	assert.Equal(t, "gaussian", cfg.Mutation.Name)
	assert.Equal(t, "file", cfg.Store.Kind)
	assert.Equal(t, "file", cfg.Gateway.Kind)

	assert.Equal(t, []string{"silver", "gold"}, cfg.ParamNames())
	min, max := cfg.Bounds()
	assert.Equal(t, []float64{0, 0}, min)
	assert.Equal(t, []float64{10, 5}, max)
}

func TestLoad_ExplicitOverrides(t *testing.T) {
	path := writeConfig(t, "experiment.hcl", `
experiment {
  title        = "t"
  population   = 4
  generations  = 2
  seed         = 1
  direction    = "minimize"
  survivors    = 1
  concurrency  = 3
  step_timeout = "45s"

  parameter "silver" {
    min = 0
    max = 1
  }

  selection "softmax" {
    temp = 0.5
  }

  mutation "gaussian" {
    rate = 0.8
    sd   = 0.2
  }

  store "postgres" {
    url = "postgres://localhost/crucible"
  }
}

link "pumps" {}

step "dispense" {
  link    = "pumps"
  command = "dispense"
}
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "minimize", cfg.Direction)
	assert.Equal(t, 1, cfg.Survivors)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 45*time.Second, cfg.StepTimeout)
	assert.Equal(t, "softmax", cfg.Selection.Name)
	assert.Equal(t, 0.5, cfg.Selection.Temp)
	assert.Equal(t, 0.8, cfg.Mutation.Rate)
	assert.Equal(t, "postgres", cfg.Store.Kind)
}

func TestLoad_MergesProtocolFromSeparateFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiment.hcl"), []byte(`
experiment {
  title       = "t"
  population  = 4
  generations = 2
  seed        = 1

  parameter "silver" {
    min = 0
    max = 1
  }
}

link "pumps" {}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "protocol.hcl"), []byte(`
step "dispense" {
  link    = "pumps"
  command = "dispense"
  args    = { volume = param.silver }
}

step "stir" {
  link       = "pumps"
  command    = "stir"
  depends_on = ["dispense"]
}
`), 0o644))

	cfg, err := Load(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, cfg.Steps, 2)
	assert.Equal(t, []string{"dispense"}, cfg.Steps[1].DependsOn)
}

func TestLoad_RejectsStepOnUndeclaredLink(t *testing.T) {
	path := writeConfig(t, "experiment.hcl", minimalExperiment+`
step "x" {
  link    = "ghost"
  command = "x"
}
`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undeclared link")
}

func TestLoad_RejectsDuplicateParameter(t *testing.T) {
	path := writeConfig(t, "experiment.hcl", `
experiment {
  title       = "dup"
  population  = 4
  generations = 2
  seed        = 1

  parameter "silver" {
    min = 0
    max = 1
  }

  parameter "silver" {
    min = 0
    max = 2
  }
}

link "pumps" {}

step "dispense" {
  link    = "pumps"
  command = "dispense"
}
`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate parameter")
}

func TestLoad_MissingExperimentBlock(t *testing.T) {
	path := writeConfig(t, "experiment.hcl", `link "pumps" {}`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no experiment block")
}

func TestLoad_SurvivorsMustBeBelowPopulation(t *testing.T) {
	path := writeConfig(t, "experiment.hcl", `
experiment {
  title       = "t"
  population  = 2
  generations = 2
  seed        = 1
  survivors   = 2

  parameter "silver" {
    min = 0
    max = 1
  }
}

link "pumps" {}

step "dispense" {
  link    = "pumps"
  command = "dispense"
}
`)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "survivors")
}
