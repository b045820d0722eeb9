package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/crucible-lab/crucible/internal/ctxlog"
)

// Load parses every .hcl file reachable from the given paths, merges them
// into a single Config, resolves defaults, and validates the result.
func Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := collectFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no .hcl configuration files found")
	}
	logger.Debug("Parsing configuration files.", "count", len(files))

	parser := hclparse.NewParser()
	merged := &Config{}
	var haveExperiment bool

	for _, path := range files {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", path, diags)
		}
		var f file
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &f); diags.HasErrors() {
			return nil, fmt.Errorf("decode %s: %w", path, diags)
		}
		if f.Experiment != nil {
			if haveExperiment {
				return nil, fmt.Errorf("duplicate experiment block in %s", path)
			}
			haveExperiment = true
			applyExperiment(merged, f.Experiment)
		}
		merged.Links = append(merged.Links, f.Links...)
		merged.Steps = append(merged.Steps, f.Steps...)
	}

	if !haveExperiment {
		return nil, errors.New("no experiment block found in configuration")
	}
	if err := merged.validate(); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded.", "title", merged.Title,
		"population", merged.Population, "generations", merged.Generations,
		"steps", len(merged.Steps), "links", len(merged.Links))
	return merged, nil
}

// applyExperiment copies the decoded experiment block onto the config,
// filling in defaults for omitted attributes.
func applyExperiment(cfg *Config, exp *experimentBlock) {
	cfg.Title = exp.Title
	cfg.Population = exp.Population
	cfg.Generations = exp.Generations
	cfg.Seed = exp.Seed
	cfg.Parameters = exp.Parameters
	cfg.Normalize = exp.Normalize

	cfg.Direction = exp.Direction
	if cfg.Direction == "" {
		cfg.Direction = DefaultDirection
	}
	cfg.Survivors = exp.Survivors
	if exp.Survivors == 0 {
		cfg.Survivors = DefaultSurvivors
	}
	cfg.Concurrency = exp.Concurrency
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	cfg.StepTimeout = parseDurationOr(exp.StepTimeout, DefaultStepTimeout)
	cfg.FitnessTimeout = parseDurationOr(exp.FitnessTimeout, DefaultFitnessTimeout)

	cfg.Selection = strategyOr(exp.Selection, StrategyBlock{Name: "truncation", K: DefaultSurvivors})
	cfg.Crossover = strategyOr(exp.Crossover, StrategyBlock{Name: "blend"})
	cfg.Mutation = strategyOr(exp.Mutation, StrategyBlock{Name: "gaussian", Rate: 0.3, SD: 0.1})
	if exp.Store != nil {
		cfg.Store = *exp.Store
	} else {
		cfg.Store = StoreBlock{Kind: "file", Path: "runs"}
	}
	if exp.Gateway != nil {
		cfg.Gateway = *exp.Gateway
	} else {
		cfg.Gateway = GatewayBlock{Kind: "file", Path: "fitness"}
	}
}

func strategyOr(b *StrategyBlock, def StrategyBlock) StrategyBlock {
	if b == nil {
		return def
	}
	return *b
}

func parseDurationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// collectFiles expands each path to the .hcl files beneath it. Files are
// returned sorted for deterministic merge order.
func collectFiles(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".hcl") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// ArgsExpr is a helper exposing a step's argument expression for the
// protocol compiler; nil when the step declares no args.
func (s *StepBlock) ArgsExpr() hcl.Expression {
	return s.Args
}
