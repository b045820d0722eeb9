package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/crucible-lab/crucible/internal/ctxlog"
	"github.com/crucible-lab/crucible/internal/fitness"
	"github.com/crucible-lab/crucible/internal/population"
	"github.com/crucible-lab/crucible/internal/sequencer"
)

// runGeneration takes the active generation to a fully scored state: every
// individual terminal, every COMPLETED one either carrying a fitness value
// or marked FAILED by the gateway. Individuals run concurrently up to the
// configured limit; fitness collection is decoupled from hardware
// execution, so a slow measurement never blocks another individual's run.
func (s *Scheduler) runGeneration(ctx context.Context, gen *population.Generation) error {
	logger := ctxlog.FromContext(ctx).With("generation", gen.Index)

	var (
		runs   sync.WaitGroup
		scores sync.WaitGroup
		sem    = make(chan struct{}, s.cfg.Concurrency)
		// firstErr captures store write failures, which are fatal: losing
		// bookkeeping would corrupt the record the loop resumes from.
		errOnce  sync.Once
		firstErr error
	)
	fatal := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for _, ind := range gen.Individuals {
		switch ind.Status {
		case population.StatusPending:
		case population.StatusCompleted:
			// A crash between run completion and scoring leaves a
			// COMPLETED individual without fitness; re-submit it.
			if ind.Fitness == nil {
				scores.Add(1)
				go func(ind *population.Individual) {
					defer scores.Done()
					s.score(ctx, gen, ind)
				}(ind)
			}
			continue
		default:
			continue
		}

		runs.Add(1)
		go func() {
			defer runs.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := s.markRunning(ctx, gen, ind); err != nil {
				fatal(err)
				return
			}
			if s.runIndividual(ctx, gen, ind, fatal) {
				scores.Add(1)
				go func() {
					defer scores.Done()
					s.score(ctx, gen, ind)
				}()
			}
		}()
	}

	runs.Wait()
	s.setState(ctx, StateScoring)
	logger.Debug("All runs finished, waiting for fitness values.")
	scores.Wait()

	s.mu.Lock()
	err := s.store.Save(ctx, gen)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist scored generation %d: %w", gen.Index, err)
	}
	if firstErr != nil {
		return firstErr
	}
	logger.Info("Generation scored.", "completed", len(gen.Scored()), "total", len(gen.Individuals))
	return nil
}

// runIndividual compiles and executes one individual's plan, returning
// true when the run succeeded and the individual should be scored.
func (s *Scheduler) runIndividual(ctx context.Context, gen *population.Generation, ind *population.Individual, fatal func(error)) bool {
	logger := ctxlog.FromContext(ctx).With("individual", ind.ID, "generation", gen.Index)

	p, err := s.compiler.Compile(ind)
	if err != nil {
		logger.Error("Plan compilation failed.", "error", err)
		s.recordFailure(ctx, gen, ind, sequencer.KindInvalidPlan, "", err.Error(), fatal)
		return false
	}

	result := s.seq.Execute(ctx, p)
	if !result.Success {
		logger.Warn("Run failed.", "kind", result.Kind, "failing_step", result.FailingStep)
		s.recordFailure(ctx, gen, ind, result.Kind, result.FailingStep, result.Detail, fatal)
		return false
	}

	s.mu.Lock()
	err = ind.SetStatus(population.StatusCompleted)
	if err == nil {
		err = s.store.Save(ctx, gen)
	}
	s.mu.Unlock()
	if err != nil {
		fatal(fmt.Errorf("record completion of %s: %w", ind.ID, err))
		return false
	}
	logger.Info("Run completed.")
	return true
}

// score collects one individual's fitness from the gateway. Gateway
// failures demote the individual to FAILED but keep it in the record.
func (s *Scheduler) score(ctx context.Context, gen *population.Generation, ind *population.Individual) {
	logger := ctxlog.FromContext(ctx).With("individual", ind.ID)

	value, err := s.collector.Collect(ctx, ind.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logger.Warn("Fitness collection failed.", "error", err)
		if ferr := ind.MarkFailed(fitness.KindGatewayFailure, "", err.Error()); ferr != nil {
			logger.Error("Could not record gateway failure.", "error", ferr)
		}
		return
	}
	if err := ind.SetFitness(value); err != nil {
		logger.Error("Could not record fitness.", "error", err)
		return
	}
	logger.Info("Fitness recorded.", "fitness", value)
}

func (s *Scheduler) markRunning(ctx context.Context, gen *population.Generation, ind *population.Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ind.SetStatus(population.StatusRunning); err != nil {
		return err
	}
	return s.store.Save(ctx, gen)
}

func (s *Scheduler) recordFailure(ctx context.Context, gen *population.Generation, ind *population.Individual, kind, step, detail string, fatal func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ind.MarkFailed(kind, step, detail); err != nil {
		fatal(fmt.Errorf("record failure of %s: %w", ind.ID, err))
		return
	}
	if err := s.store.Save(ctx, gen); err != nil {
		fatal(fmt.Errorf("persist failure of %s: %w", ind.ID, err))
	}
}
