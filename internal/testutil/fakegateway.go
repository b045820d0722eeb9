package testutil

import (
	"context"
	"sync"

	"github.com/crucible-lab/crucible/internal/fitness"
)

// FakeGateway is a scripted fitness.Gateway. Outcomes are keyed by
// individual id; unscripted ids stay pending forever (until the collector's
// bounded wait gives up).
type FakeGateway struct {
	mu      sync.Mutex
	samples map[string]fitness.Sample
	// Fn, when set, computes the sample for ids without an explicit script.
	Fn func(individualID string) (fitness.Sample, bool)

	submitted []string
}

// NewFakeGateway returns an empty gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{samples: make(map[string]fitness.Sample)}
}

// ScriptFitness makes the id resolve to the given fitness value.
func (g *FakeGateway) ScriptFitness(id string, value float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.samples[id] = fitness.Sample{Status: fitness.Ready, Value: value}
}

// ScriptFailure makes the id resolve to a gateway failure.
func (g *FakeGateway) ScriptFailure(id, detail string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.samples[id] = fitness.Sample{Status: fitness.Failed, Detail: detail}
}

// Submitted returns the ids submitted so far, in order.
func (g *FakeGateway) Submitted() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.submitted...)
}

func (g *FakeGateway) Submit(ctx context.Context, individualID string) (fitness.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, individualID)
	return fitness.Handle{Token: individualID}, nil
}

func (g *FakeGateway) Poll(ctx context.Context, h fitness.Handle) (fitness.Sample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.samples[h.Token]; ok {
		return s, nil
	}
	if g.Fn != nil {
		if s, ok := g.Fn(h.Token); ok {
			return s, nil
		}
	}
	return fitness.Sample{Status: fitness.Pending}, nil
}
