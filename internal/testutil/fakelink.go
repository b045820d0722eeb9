// Package testutil provides the fakes the orchestrator is tested against:
// scripted device links and a scripted fitness gateway.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/crucible-lab/crucible/internal/devlink"
)

// Event is one observed link interaction, recorded in global order.
type Event struct {
	Link    string
	Command string
	// Kind is "start" (dispatch) or "end" (await returned).
	Kind string
}

// Recorder collects events across any number of fake links so tests can
// assert cross-link ordering properties.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a snapshot of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// StartedBefore reports whether command a's start precedes command b's
// start in the recorded order.
func (r *Recorder) StartedBefore(a, b string) bool {
	ai, bi := r.indexOf(a, "start"), r.indexOf(b, "start")
	return ai >= 0 && bi >= 0 && ai < bi
}

// EndedBeforeStart reports whether command a finished before command b was
// dispatched.
func (r *Recorder) EndedBeforeStart(a, b string) bool {
	ai, bi := r.indexOf(a, "end"), r.indexOf(b, "start")
	return ai >= 0 && bi >= 0 && ai < bi
}

// Started reports whether the command was dispatched at all.
func (r *Recorder) Started(command string) bool {
	return r.indexOf(command, "start") >= 0
}

func (r *Recorder) indexOf(command, kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e.Command == command && e.Kind == kind {
			return i
		}
	}
	return -1
}

// StepResult scripts one command's outcome on a fake link.
type StepResult struct {
	Status devlink.AwaitStatus
	Detail string
	// Delay is how long the "hardware" takes before reporting.
	Delay time.Duration
}

// FakeLink is a scripted devlink.Link. Unscripted commands complete
// immediately. The link counts outstanding commands and remembers whether
// the single-outstanding-command rule was ever violated.
type FakeLink struct {
	name     string
	recorder *Recorder

	// Hook, when set, can override the outcome of each dispatched command;
	// returning nil falls back to the script. Set it before use.
	Hook func(command string) *StepResult

	mu          sync.Mutex
	script      map[string]StepResult
	outstanding int
	violated    bool
}

// NewFakeLink builds a link that records into the given recorder.
func NewFakeLink(name string, recorder *Recorder) *FakeLink {
	return &FakeLink{
		name:     name,
		recorder: recorder,
		script:   make(map[string]StepResult),
	}
}

// Script sets the outcome for one command name.
func (l *FakeLink) Script(command string, res StepResult) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.script[command] = res
	return l
}

// Violated reports whether two commands were ever outstanding at once.
func (l *FakeLink) Violated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.violated
}

func (l *FakeLink) Name() string { return l.name }

func (l *FakeLink) Dispatch(ctx context.Context, command string, args map[string]float64) (devlink.Handle, error) {
	l.mu.Lock()
	l.outstanding++
	if l.outstanding > 1 {
		l.violated = true
	}
	l.mu.Unlock()
	l.recorder.record(Event{Link: l.name, Command: command, Kind: "start"})
	return devlink.Handle{Token: command}, nil
}

func (l *FakeLink) Await(ctx context.Context, h devlink.Handle, timeout time.Duration) (devlink.AwaitStatus, string) {
	l.mu.Lock()
	res, ok := l.script[h.Token]
	l.mu.Unlock()
	if !ok {
		res = StepResult{Status: devlink.Completed}
	}
	if l.Hook != nil {
		if r := l.Hook(h.Token); r != nil {
			res = *r
		}
	}
	if res.Delay > 0 {
		time.Sleep(res.Delay)
	}
	l.recorder.record(Event{Link: l.name, Command: h.Token, Kind: "end"})
	l.mu.Lock()
	l.outstanding--
	l.mu.Unlock()
	if res.Status != devlink.Completed && res.Detail == "" {
		res.Detail = fmt.Sprintf("scripted %s for %s", res.Status, h.Token)
	}
	return res.Status, res.Detail
}

func (l *FakeLink) Close() error { return nil }
