// Package population defines the domain model for the evolutionary search:
// recipes, individuals, generations and their run bookkeeping.
package population

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of one individual's hardware run.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// ErrInvalidTransition is returned when a status change would violate the
// PENDING -> RUNNING -> {COMPLETED, FAILED} lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// validNext maps each status to the set of statuses it may move to.
// COMPLETED -> FAILED covers the case where the hardware run succeeded but
// the fitness measurement did not.
var validNext = map[Status][]Status{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusFailed},
}

// CanTransition reports whether a status change is legal.
func CanTransition(from, to Status) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Recipe is an ordered, fixed-schema mapping from parameter name to value.
// Params holds the canonical parameter order for the experiment; Values is
// index-aligned with it. A Recipe is immutable once created.
type Recipe struct {
	Params []string  `json:"params"`
	Values []float64 `json:"values"`
}

// NewRecipe copies its inputs so callers cannot mutate the recipe afterwards.
func NewRecipe(params []string, values []float64) (Recipe, error) {
	if len(params) == 0 {
		return Recipe{}, errors.New("recipe has no parameters")
	}
	if len(params) != len(values) {
		return Recipe{}, fmt.Errorf("recipe parameter/value length mismatch: %d vs %d", len(params), len(values))
	}
	r := Recipe{
		Params: append([]string(nil), params...),
		Values: append([]float64(nil), values...),
	}
	return r, nil
}

// Value returns the value for a named parameter.
func (r Recipe) Value(param string) (float64, bool) {
	for i, p := range r.Params {
		if p == param {
			return r.Values[i], true
		}
	}
	return 0, false
}

// Lineage records where an individual's recipe came from.
type Lineage struct {
	ParentIDs []string `json:"parent_ids,omitempty"`
	Operator  string   `json:"operator,omitempty"`
}

// Failure captures why an individual's run produced no fitness.
type Failure struct {
	Kind        string `json:"kind"`
	FailingStep string `json:"failing_step,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Individual is one recipe plus its run and fitness bookkeeping.
// Individuals are never deleted; superseded ones remain for provenance.
type Individual struct {
	ID         string    `json:"id"`
	Generation int       `json:"generation"`
	Recipe     Recipe    `json:"recipe"`
	Status     Status    `json:"status"`
	Fitness    *float64  `json:"fitness,omitempty"`
	Lineage    Lineage   `json:"lineage"`
	Failure    *Failure  `json:"failure,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewIndividual creates a PENDING individual for the given generation.
func NewIndividual(gen int, recipe Recipe, lineage Lineage) *Individual {
	return &Individual{
		ID:         uuid.NewString(),
		Generation: gen,
		Recipe:     recipe,
		Status:     StatusPending,
		Lineage:    lineage,
		CreatedAt:  time.Now().UTC(),
	}
}

// SetStatus applies a lifecycle transition, rejecting illegal ones.
func (ind *Individual) SetStatus(to Status) error {
	if !CanTransition(ind.Status, to) {
		return fmt.Errorf("%w: %s -> %s for individual %s", ErrInvalidTransition, ind.Status, to, ind.ID)
	}
	ind.Status = to
	return nil
}

// MarkFailed moves the individual to FAILED and records the diagnostic.
func (ind *Individual) MarkFailed(kind, failingStep, detail string) error {
	if err := ind.SetStatus(StatusFailed); err != nil {
		return err
	}
	ind.Failure = &Failure{Kind: kind, FailingStep: failingStep, Detail: detail}
	return nil
}

// SetFitness records a fitness value on a COMPLETED individual.
func (ind *Individual) SetFitness(v float64) error {
	if ind.Status != StatusCompleted {
		return fmt.Errorf("cannot set fitness on %s individual %s", ind.Status, ind.ID)
	}
	ind.Fitness = &v
	return nil
}

// Terminal reports whether the individual has reached a final status.
func (ind *Individual) Terminal() bool {
	return ind.Status == StatusCompleted || ind.Status == StatusFailed
}

// Generation is an ordered cohort of individuals sharing a generation index.
type Generation struct {
	Index       int           `json:"index"`
	Seed        int64         `json:"seed"`
	Individuals []*Individual `json:"individuals"`
}

// Seed builds generation 0: recipes drawn uniformly within [min, max] per
// parameter, in canonical parameter order, using the provided RNG.
func Seed(size int, params []string, min, max []float64, seed int64, rng *rand.Rand) (*Generation, error) {
	if size <= 0 {
		return nil, fmt.Errorf("population size must be positive, got %d", size)
	}
	if len(params) != len(min) || len(params) != len(max) {
		return nil, errors.New("parameter bounds do not match parameter schema")
	}
	gen := &Generation{Index: 0, Seed: seed}
	for i := 0; i < size; i++ {
		values := make([]float64, len(params))
		for j := range params {
			values[j] = min[j] + rng.Float64()*(max[j]-min[j])
		}
		recipe, err := NewRecipe(params, values)
		if err != nil {
			return nil, err
		}
		gen.Individuals = append(gen.Individuals, NewIndividual(0, recipe, Lineage{Operator: "seed"}))
	}
	return gen, nil
}

// Pending returns the individuals still waiting to run, in cohort order.
func (g *Generation) Pending() []*Individual {
	var out []*Individual
	for _, ind := range g.Individuals {
		if ind.Status == StatusPending {
			out = append(out, ind)
		}
	}
	return out
}

// Scored returns the individuals eligible for breeding: COMPLETED with a
// fitness value attached.
func (g *Generation) Scored() []*Individual {
	var out []*Individual
	for _, ind := range g.Individuals {
		if ind.Status == StatusCompleted && ind.Fitness != nil {
			out = append(out, ind)
		}
	}
	return out
}

// Closed reports whether every member has reached a terminal status.
func (g *Generation) Closed() bool {
	for _, ind := range g.Individuals {
		if !ind.Terminal() {
			return false
		}
	}
	return true
}

// ResetRunning rewinds any individual left RUNNING (e.g. by a crash) back to
// PENDING so it is re-run. Returns the number of individuals reset.
func (g *Generation) ResetRunning() int {
	n := 0
	for _, ind := range g.Individuals {
		if ind.Status == StatusRunning {
			ind.Status = StatusPending
			n++
		}
	}
	return n
}
