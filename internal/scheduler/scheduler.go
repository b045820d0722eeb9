// Package scheduler drives the discovery loop: it runs every pending
// individual of the active generation through the command sequencer,
// collects fitness from the gateway, breeds the next generation, and keeps
// the population store consistent so the whole loop survives a process
// restart.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/crucible-lab/crucible/internal/config"
	"github.com/crucible-lab/crucible/internal/ctxlog"
	"github.com/crucible-lab/crucible/internal/fitness"
	"github.com/crucible-lab/crucible/internal/gene"
	"github.com/crucible-lab/crucible/internal/population"
	"github.com/crucible-lab/crucible/internal/protocol"
	"github.com/crucible-lab/crucible/internal/sequencer"
	"github.com/crucible-lab/crucible/internal/store"
)

// State names the scheduler's position in the generation loop.
type State string

const (
	StateInit              State = "INIT"
	StateRunningGeneration State = "RUNNING_GENERATION"
	StateScoring           State = "SCORING"
	StateBreeding          State = "BREEDING"
	StateDone              State = "DONE"
)

// ErrEmptyBreedingPool is fatal: a whole generation produced no fitness, so
// there is nothing to breed from. This is a configuration or hardware
// error, not a transient fault.
var ErrEmptyBreedingPool = errors.New("EMPTY_BREEDING_POOL: no scored individuals to breed from")

// Scheduler owns the generation loop. It is the population store's sole
// writer.
type Scheduler struct {
	cfg       *config.Config
	store     store.Store
	seq       *sequencer.Sequencer
	compiler  *protocol.Compiler
	breeder   *gene.Breeder
	collector *fitness.Collector

	// mu serializes mutations of the active generation and store writes
	// while individuals run concurrently.
	mu    sync.Mutex
	state State
}

// New assembles a scheduler from its collaborators.
func New(cfg *config.Config, st store.Store, seq *sequencer.Sequencer, compiler *protocol.Compiler, breeder *gene.Breeder, collector *fitness.Collector) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     st,
		seq:       seq,
		compiler:  compiler,
		breeder:   breeder,
		collector: collector,
		state:     StateInit,
	}
}

// rngFor derives the RNG for one phase of the run. Generation 0 seeding
// uses the configured seed directly; breeding generation N uses seed+N.
// Deriving from the index keeps breeding deterministic across process
// restarts without persisting rand internals.
func (s *Scheduler) rngFor(genIndex int) *rand.Rand {
	return rand.New(rand.NewSource(s.cfg.Seed + int64(genIndex)))
}

// Run executes the evolutionary loop until the configured number of
// generations has been produced, or a fatal error stops it.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	gen, err := s.restore(ctx)
	if err != nil {
		return err
	}

	for {
		s.setState(ctx, StateRunningGeneration)
		logger.Info("Running generation.", "generation", gen.Index, "pending", len(gen.Pending()))
		if err := s.runGeneration(ctx, gen); err != nil {
			return err
		}

		if gen.Index >= s.cfg.Generations-1 {
			s.setState(ctx, StateDone)
			logger.Info("Configured generations produced, run complete.", "generations", s.cfg.Generations)
			return nil
		}

		s.setState(ctx, StateBreeding)
		next, err := s.breeder.Breed(gen, s.rngFor(gen.Index+1))
		if err != nil {
			if errors.Is(err, gene.ErrEmptyPool) {
				return fmt.Errorf("%w (generation %d)", ErrEmptyBreedingPool, gen.Index)
			}
			return fmt.Errorf("breed generation %d: %w", gen.Index+1, err)
		}
		if err := s.store.Append(ctx, next); err != nil {
			return fmt.Errorf("record generation %d: %w", next.Index, err)
		}
		logger.Info("Next generation bred.", "generation", next.Index, "size", len(next.Individuals))
		gen = next
	}
}

// restore loads the latest generation or seeds generation 0, and rewinds
// any individual a crash left RUNNING back to PENDING.
func (s *Scheduler) restore(ctx context.Context) (*population.Generation, error) {
	logger := ctxlog.FromContext(ctx)
	s.setState(ctx, StateInit)

	gen, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load population: %w", err)
	}
	if gen == nil {
		min, max := s.cfg.Bounds()
		gen, err = population.Seed(s.cfg.Population, s.cfg.ParamNames(), min, max, s.cfg.Seed, s.rngFor(0))
		if err != nil {
			return nil, fmt.Errorf("seed generation 0: %w", err)
		}
		if err := s.store.Append(ctx, gen); err != nil {
			return nil, fmt.Errorf("record generation 0: %w", err)
		}
		logger.Info("Seeded generation 0.", "size", len(gen.Individuals), "seed", s.cfg.Seed)
		return gen, nil
	}

	if n := gen.ResetRunning(); n > 0 {
		logger.Warn("Rewound individuals left running by a previous crash.", "generation", gen.Index, "count", n)
		if err := s.store.Save(ctx, gen); err != nil {
			return nil, fmt.Errorf("persist rewound generation: %w", err)
		}
	}
	logger.Info("Resumed from population store.", "generation", gen.Index)
	return gen, nil
}

// setState logs state transitions; states are derivable from the store, so
// only the active one is held in memory.
func (s *Scheduler) setState(ctx context.Context, st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		ctxlog.FromContext(ctx).Debug("Scheduler state changed.", "from", string(prev), "to", string(st))
	}
}

// CurrentState reports the scheduler's position; used by tests.
func (s *Scheduler) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
