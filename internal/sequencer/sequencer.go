// Package sequencer executes a plan's command DAG against the device link
// registry. Dependency edges are respected exactly; eligible steps on
// distinct links run concurrently; eligible steps on the same link are
// dispatched strictly in plan order. On a step timeout or hardware fault,
// transitive dependents are abandoned without ever dispatching, while
// already-dispatched independent branches run to completion: the sequencer
// never yanks control from an actuator mid-command, it just stops issuing
// new ones.
package sequencer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crucible-lab/crucible/internal/ctxlog"
	"github.com/crucible-lab/crucible/internal/devlink"
	"github.com/crucible-lab/crucible/internal/plan"
)

// Sequencer executes plans. It is safe for concurrent use: multiple plans
// may be in flight, and the registry's per-link gate keeps at most one
// outstanding command per device link across all of them.
type Sequencer struct {
	registry    *devlink.Registry
	stepTimeout time.Duration
}

// New builds a sequencer over the given link registry. stepTimeout bounds
// the wait for each dispatched command's completion.
func New(registry *devlink.Registry, stepTimeout time.Duration) *Sequencer {
	return &Sequencer{registry: registry, stepTimeout: stepTimeout}
}

// stepState is the per-run bookkeeping for one plan step.
type stepState struct {
	step     *plan.Step
	depCount atomic.Int32
	// dependents are resolved once at run start.
	dependents []*stepState
	// skipOnce guards abandonment so a step with several failed ancestors
	// is only accounted for once.
	skipOnce sync.Once
}

// run is the in-flight execution of a single plan.
type run struct {
	seq    *Sequencer
	plan   *plan.Plan
	wg     sync.WaitGroup
	queues map[string]*linkQueue

	failOnce sync.Once
	result   atomic.Pointer[Result]
}

// Execute validates the plan and runs it to a terminal result. The plan is
// rejected before any dispatch if its dependency graph is invalid.
func (s *Sequencer) Execute(ctx context.Context, p *plan.Plan) *Result {
	logger := ctxlog.FromContext(ctx).With("recipe", p.RecipeID)

	if err := p.Validate(); err != nil {
		logger.Error("Plan rejected before dispatch.", "error", err)
		return failure(KindInvalidPlan, "", err.Error())
	}

	r := &run{
		seq:    s,
		plan:   p,
		queues: make(map[string]*linkQueue),
	}

	states := make(map[string]*stepState, len(p.Steps))
	for _, st := range p.Steps {
		states[st.Name] = &stepState{step: st}
	}
	for _, st := range p.Steps {
		state := states[st.Name]
		state.depCount.Store(int32(len(st.DependsOn)))
		for _, dep := range st.DependsOn {
			states[dep].dependents = append(states[dep].dependents, state)
		}
	}

	for _, link := range p.Links() {
		r.queues[link] = newLinkQueue()
	}

	r.wg.Add(len(p.Steps))

	// One dispatcher per link keeps same-link dispatch strictly ordered.
	var dispatchers sync.WaitGroup
	for link, q := range r.queues {
		dispatchers.Add(1)
		go func(link string, q *linkQueue) {
			defer dispatchers.Done()
			r.dispatchLoop(ctx, link, q)
		}(link, q)
	}

	logger.Debug("Seeding root steps.", "steps", len(p.Steps))
	for _, st := range p.Steps {
		state := states[st.Name]
		if state.depCount.Load() == 0 {
			r.queues[st.Link].push(state)
		}
	}

	r.wg.Wait()
	for _, q := range r.queues {
		q.close()
	}
	dispatchers.Wait()

	if res := r.result.Load(); res != nil {
		logger.Warn("Plan failed.", "kind", res.Kind, "failing_step", res.FailingStep)
		return res
	}
	logger.Info("Plan completed.")
	return success()
}

// dispatchLoop drains one link's queue until the run ends.
func (r *run) dispatchLoop(ctx context.Context, linkName string, q *linkQueue) {
	logger := ctxlog.FromContext(ctx).With("recipe", r.plan.RecipeID, "link", linkName)
	for {
		state := q.pop()
		if state == nil {
			return
		}
		r.runStep(ctx, logger, state)
	}
}

// runStep dispatches one step under the link's gate and routes the outcome.
func (r *run) runStep(ctx context.Context, logger *slog.Logger, state *stepState) {
	st := state.step

	link, err := r.seq.registry.Lookup(st.Link)
	if err != nil {
		r.fail(ctx, state, KindHardwareError, err.Error())
		return
	}

	if err := r.seq.registry.Acquire(st.Link); err != nil {
		r.fail(ctx, state, KindHardwareError, err.Error())
		return
	}
	logger.Debug("Dispatching step.", "step", st.Name, "command", st.Command)
	handle, err := link.Dispatch(ctx, st.Command, st.Args)
	if err != nil {
		r.seq.registry.Release(st.Link)
		r.fail(ctx, state, KindHardwareError, err.Error())
		return
	}

	status, detail := link.Await(ctx, handle, r.seq.stepTimeout)
	r.seq.registry.Release(st.Link)

	switch status {
	case devlink.Completed:
		logger.Debug("Step completed.", "step", st.Name)
		r.wg.Done()
		for _, dep := range state.dependents {
			if dep.depCount.Add(-1) == 0 {
				r.queues[dep.step.Link].push(dep)
			}
		}
	case devlink.Timeout:
		logger.Warn("Step timed out.", "step", st.Name, "timeout", r.seq.stepTimeout)
		r.fail(ctx, state, KindStepTimeout, detail)
	default:
		logger.Error("Step reported hardware fault.", "step", st.Name, "detail", detail)
		r.fail(ctx, state, KindHardwareError, detail)
	}
}

// fail records the first failure, accounts for the failed step, and
// abandons its transitive dependents. Other branches keep running.
func (r *run) fail(ctx context.Context, state *stepState, kind, detail string) {
	r.failOnce.Do(func() {
		r.result.Store(failure(kind, state.step.Name, detail))
	})
	r.wg.Done()
	r.skipDependents(ctx, state)
}

// skipDependents marks all downstream steps as abandoned so they never
// become eligible for dispatch.
func (r *run) skipDependents(ctx context.Context, state *stepState) {
	logger := ctxlog.FromContext(ctx).With("recipe", r.plan.RecipeID)
	for _, dep := range state.dependents {
		dep.skipOnce.Do(func() {
			logger.Warn("Abandoning dependent step.", "step", dep.step.Name, "failed_dependency", state.step.Name)
			r.wg.Done()
			r.skipDependents(ctx, dep)
		})
	}
}
