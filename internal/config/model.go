// Package config loads and validates the HCL configuration surface of the
// orchestrator: the experiment block (population, bounds, GA strategies,
// timeouts, store) and the protocol's step blocks.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
)

// file is the top-level HCL schema. Step blocks may live in the same file as
// the experiment block or in separate protocol files; the loader merges them.
type file struct {
	Experiment *experimentBlock `hcl:"experiment,block"`
	Links      []LinkBlock      `hcl:"link,block"`
	Steps      []StepBlock      `hcl:"step,block"`
}

type experimentBlock struct {
	Title          string           `hcl:"title"`
	Population     int              `hcl:"population"`
	Generations    int              `hcl:"generations"`
	Seed           int64            `hcl:"seed"`
	Direction      string           `hcl:"direction,optional"`
	Survivors      int              `hcl:"survivors,optional"`
	Concurrency    int              `hcl:"concurrency,optional"`
	StepTimeout    string           `hcl:"step_timeout,optional"`
	FitnessTimeout string           `hcl:"fitness_timeout,optional"`
	Parameters     []ParameterBlock `hcl:"parameter,block"`
	Normalize      *NormalizeBlock  `hcl:"normalize,block"`
	Selection      *StrategyBlock   `hcl:"selection,block"`
	Crossover      *StrategyBlock   `hcl:"crossover,block"`
	Mutation       *StrategyBlock   `hcl:"mutation,block"`
	Store          *StoreBlock      `hcl:"store,block"`
	Gateway        *GatewayBlock    `hcl:"gateway,block"`
}

// ParameterBlock declares one recipe parameter and its bounds. Declaration
// order is the canonical parameter order of the experiment.
type ParameterBlock struct {
	Name string  `hcl:"name,label"`
	Min  float64 `hcl:"min"`
	Max  float64 `hcl:"max"`
}

// NormalizeBlock rescales the named parameters so their dispensed volumes
// sum to the vial volume before the protocol sees them. Parameters not
// listed keep their raw values (static volumes subtracted from the total).
type NormalizeBlock struct {
	Volume float64  `hcl:"volume"`
	Params []string `hcl:"params"`
}

// StrategyBlock selects a GA operator by identifier and carries its knobs.
type StrategyBlock struct {
	Name string  `hcl:"name,label"`
	K    int     `hcl:"k,optional"`
	Rate float64 `hcl:"rate,optional"`
	SD   float64 `hcl:"sd,optional"`
	Temp float64 `hcl:"temp,optional"`
}

// LinkBlock declares one device link by its stable logical name.
type LinkBlock struct {
	Name      string `hcl:"name,label"`
	URL       string `hcl:"url,optional"`
	Namespace string `hcl:"namespace,optional"`
}

// StoreBlock selects the population store backend.
type StoreBlock struct {
	Kind string `hcl:"kind,label"`
	Path string `hcl:"path,optional"`
	URL  string `hcl:"url,optional"`
}

// GatewayBlock selects the fitness gateway backend.
type GatewayBlock struct {
	Kind string `hcl:"kind,label"`
	Path string `hcl:"path,optional"`
}

// StepBlock is one protocol step. Argument expressions are kept unevaluated
// here; the protocol compiler evaluates them against each recipe.
type StepBlock struct {
	Name      string         `hcl:"name,label"`
	Link      string         `hcl:"link"`
	Command   string         `hcl:"command"`
	Args      hcl.Expression `hcl:"args,optional"`
	DependsOn []string       `hcl:"depends_on,optional"`
}

// Defaults applied when optional attributes are omitted.
const (
	DefaultDirection      = "maximize"
	DefaultSurvivors      = 2
	DefaultConcurrency    = 1
	DefaultStepTimeout    = 30 * time.Second
	DefaultFitnessTimeout = 10 * time.Minute
)

// Config is the resolved, validated configuration.
type Config struct {
	Title          string
	Population     int
	Generations    int
	Seed           int64
	Direction      string
	Survivors      int
	Concurrency    int
	StepTimeout    time.Duration
	FitnessTimeout time.Duration
	Parameters     []ParameterBlock
	Normalize      *NormalizeBlock
	Selection      StrategyBlock
	Crossover      StrategyBlock
	Mutation       StrategyBlock
	Store          StoreBlock
	Gateway        GatewayBlock
	Links          []LinkBlock
	Steps          []StepBlock
}

// ParamNames returns the canonical parameter order.
func (c *Config) ParamNames() []string {
	out := make([]string, len(c.Parameters))
	for i, p := range c.Parameters {
		out[i] = p.Name
	}
	return out
}

// Bounds returns index-aligned min/max slices for the parameter schema.
func (c *Config) Bounds() (min, max []float64) {
	min = make([]float64, len(c.Parameters))
	max = make([]float64, len(c.Parameters))
	for i, p := range c.Parameters {
		min[i], max[i] = p.Min, p.Max
	}
	return min, max
}

// validate resolves defaults and rejects inconsistent configuration.
func (c *Config) validate() error {
	if c.Title == "" {
		return errors.New("experiment title is required")
	}
	if c.Population <= 0 {
		return fmt.Errorf("population must be positive, got %d", c.Population)
	}
	if c.Generations <= 0 {
		return fmt.Errorf("generations must be positive, got %d", c.Generations)
	}
	if len(c.Parameters) == 0 {
		return errors.New("at least one parameter block is required")
	}
	seen := make(map[string]bool)
	for _, p := range c.Parameters {
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Min > p.Max {
			return fmt.Errorf("parameter %q has min %v > max %v", p.Name, p.Min, p.Max)
		}
	}
	if c.Normalize != nil {
		if c.Normalize.Volume <= 0 {
			return fmt.Errorf("normalize volume must be positive, got %v", c.Normalize.Volume)
		}
		for _, name := range c.Normalize.Params {
			if !seen[name] {
				return fmt.Errorf("normalize references unknown parameter %q", name)
			}
		}
	}
	switch c.Direction {
	case "maximize", "minimize":
	default:
		return fmt.Errorf("direction must be 'maximize' or 'minimize', got %q", c.Direction)
	}
	if c.Survivors < 0 || c.Survivors >= c.Population {
		return fmt.Errorf("survivors must be in [0, population), got %d", c.Survivors)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if len(c.Links) == 0 {
		return errors.New("at least one link block is required")
	}
	if len(c.Steps) == 0 {
		return errors.New("protocol declares no step blocks")
	}
	linkNames := make(map[string]bool)
	for _, l := range c.Links {
		if linkNames[l.Name] {
			return fmt.Errorf("duplicate link %q", l.Name)
		}
		linkNames[l.Name] = true
	}
	for _, s := range c.Steps {
		if !linkNames[s.Link] {
			return fmt.Errorf("step %q targets undeclared link %q", s.Name, s.Link)
		}
	}
	switch c.Store.Kind {
	case "file", "postgres":
	default:
		return fmt.Errorf("store kind must be 'file' or 'postgres', got %q", c.Store.Kind)
	}
	if c.Gateway.Kind != "file" {
		return fmt.Errorf("gateway kind must be 'file', got %q", c.Gateway.Kind)
	}
	return nil
}
