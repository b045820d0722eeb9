// Package app assembles the orchestrator: logger, configuration, device
// link registry, population store, fitness gateway and scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/ctxlog"
	"github.com/crucible-lab/crucible/internal/devlink"
	sioLink "github.com/crucible-lab/crucible/internal/devlink/socketio"
	"github.com/crucible-lab/crucible/internal/fitness"
	"github.com/crucible-lab/crucible/internal/gene"
	"github.com/crucible-lab/crucible/internal/protocol"
	"github.com/crucible-lab/crucible/internal/scheduler"
	"github.com/crucible-lab/crucible/internal/sequencer"
	"github.com/crucible-lab/crucible/internal/store"
	"github.com/crucible-lab/crucible/internal/store/filestore"
	"github.com/crucible-lab/crucible/internal/store/postgres"
)

// Config holds everything an App instance needs to start.
type Config struct {
	// ConfigPath points at the experiment .hcl file or a directory of them
	// (protocol step blocks may live in separate files).
	ConfigPath string
	LogFormat  string
	LogLevel   string
}

// NewConfig validates the startup configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}

// App encapsulates the orchestrator's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *config.Config
	registry *devlink.Registry
	store    store.Store
	sched    *scheduler.Scheduler
}

// New builds a fully wired App: configuration is loaded and validated,
// device links dialed, the store opened, and the scheduler assembled.
func New(ctx context.Context, outW io.Writer, appCfg *Config) (*App, error) {
	logger := newLogger(appCfg.LogLevel, appCfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)

	cfg, err := config.Load(ctx, appCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	registry, err := dialLinks(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	gateway, err := fitness.NewFileGateway(cfg.Gateway.Path)
	if err != nil {
		_ = registry.Close()
		_ = st.Close()
		return nil, err
	}

	compiler, err := protocol.NewCompiler(cfg.Steps, cfg.Normalize)
	if err != nil {
		_ = registry.Close()
		_ = st.Close()
		return nil, err
	}
	breeder, err := gene.NewBreeder(cfg)
	if err != nil {
		_ = registry.Close()
		_ = st.Close()
		return nil, err
	}

	seq := sequencer.New(registry, cfg.StepTimeout)
	collector := fitness.NewCollector(gateway, cfg.FitnessTimeout)
	sched := scheduler.New(cfg, st, seq, compiler, breeder, collector)

	logger.Debug("Application wired.", "title", cfg.Title, "links", registry.Names())
	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		registry: registry,
		store:    st,
		sched:    sched,
	}, nil
}

// Run drives the evolutionary loop to completion and tears down the links.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	defer func() {
		if err := a.registry.Close(); err != nil {
			a.logger.Warn("Device link teardown reported an error.", "error", err)
		}
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Store teardown reported an error.", "error", err)
		}
	}()
	return a.sched.Run(ctx)
}

// dialLinks connects every configured device link and wraps them in the
// process-wide registry.
func dialLinks(ctx context.Context, cfg *config.Config) (*devlink.Registry, error) {
	links := make([]devlink.Link, 0, len(cfg.Links))
	for _, lb := range cfg.Links {
		if lb.URL == "" {
			return nil, fmt.Errorf("link %q has no url", lb.Name)
		}
		l, err := sioLink.Dial(ctx, lb.Name, lb.URL, lb.Namespace)
		if err != nil {
			for _, open := range links {
				_ = open.Close()
			}
			return nil, err
		}
		links = append(links, l)
	}
	return devlink.NewRegistry(links...), nil
}

// openStore selects the population store backend from configuration.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Kind {
	case "postgres":
		return postgres.Open(ctx, cfg.Store.URL)
	default:
		return filestore.New(cfg.Store.Path)
	}
}
