package devlink

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the process-wide collection of named device links. It is
// created once at startup and injected wherever links are needed, so the
// sequencer can be tested against fakes.
//
// The registry also owns the per-link gate: Acquire/Release bracket one
// outstanding command, serializing command traffic per link even when many
// plans are in flight concurrently.
type Registry struct {
	mu    sync.RWMutex
	links map[string]*gated
}

// gated pairs a link with its single-outstanding-command gate.
type gated struct {
	link Link
	gate chan struct{}
}

// NewRegistry builds a registry over the provided links.
func NewRegistry(links ...Link) *Registry {
	r := &Registry{links: make(map[string]*gated, len(links))}
	for _, l := range links {
		r.links[l.Name()] = &gated{link: l, gate: make(chan struct{}, 1)}
	}
	return r
}

// Lookup returns the named link.
func (r *Registry) Lookup(name string) (Link, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.links[name]
	if !ok {
		return nil, fmt.Errorf("unknown device link %q", name)
	}
	return g.link, nil
}

// Names returns all registered link names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.links))
	for name := range r.links {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Acquire blocks until the named link has no outstanding command, then
// claims it for the caller. Every Acquire must be paired with Release.
func (r *Registry) Acquire(name string) error {
	r.mu.RLock()
	g, ok := r.links[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown device link %q", name)
	}
	g.gate <- struct{}{}
	return nil
}

// Release frees the named link for the next command.
func (r *Registry) Release(name string) {
	r.mu.RLock()
	g, ok := r.links[name]
	r.mu.RUnlock()
	if ok {
		<-g.gate
	}
}

// Close tears down every link. The first error wins; teardown continues.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, g := range r.links {
		if err := g.link.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
