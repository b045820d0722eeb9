// Package store persists the population record: every individual ever
// created, its generation, run status, fitness and lineage. The store is
// append-only history; generation transitions are atomic so a crash mid-
// write can never leave a partial generation to be resumed.
package store

import (
	"context"

	"github.com/crucible-lab/crucible/internal/population"
)

// Store is the durable population record. The scheduler is its sole writer.
type Store interface {
	// Load returns the latest generation, or nil when the store is empty.
	Load(ctx context.Context) (*population.Generation, error)
	// Append durably records a brand-new generation. It fails if a
	// generation with the same index already exists.
	Append(ctx context.Context, gen *population.Generation) error
	// Save atomically rewrites an existing generation's record after
	// status/fitness updates.
	Save(ctx context.Context, gen *population.Generation) error
	// History returns every recorded generation in index order.
	History(ctx context.Context) ([]*population.Generation, error)
	// Close releases any underlying resources.
	Close() error
}
