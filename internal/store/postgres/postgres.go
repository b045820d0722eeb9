// Package postgres is the PostgreSQL population store, for lab deployments
// where several tools inspect the evolving record concurrently. Individuals
// are stored as a jsonb document per generation; appends run in a
// transaction so a generation is recorded entirely or not at all.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/crucible-lab/crucible/internal/population"
)

// DB is the subset of *sql.DB the store needs; tests may substitute it.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// Store persists generations in the crucible_generations table.
type Store struct {
	db DB
}

// Open connects via the pgx stdlib driver and ensures the schema exists.
func Open(ctx context.Context, url string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection; used by tests.
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS crucible_generations (
			gen_index   integer PRIMARY KEY,
			seed        bigint NOT NULL,
			individuals jsonb NOT NULL,
			created_at  timestamptz NOT NULL DEFAULT now(),
			updated_at  timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load returns the latest generation, or nil when the table is empty.
func (s *Store) Load(ctx context.Context) (*population.Generation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT gen_index, seed, individuals
		FROM crucible_generations
		ORDER BY gen_index DESC
		LIMIT 1`)
	gen, err := scanGeneration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return gen, err
}

// Append records a new generation inside a transaction.
func (s *Store) Append(ctx context.Context, gen *population.Generation) error {
	raw, err := json.Marshal(gen.Individuals)
	if err != nil {
		return fmt.Errorf("encode individuals: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crucible_generations (gen_index, seed, individuals)
		VALUES ($1, $2, $3)`,
		gen.Index, gen.Seed, raw)
	if err != nil {
		return fmt.Errorf("insert generation %d: %w", gen.Index, err)
	}
	return tx.Commit()
}

// Save rewrites an existing generation's individuals.
func (s *Store) Save(ctx context.Context, gen *population.Generation) error {
	raw, err := json.Marshal(gen.Individuals)
	if err != nil {
		return fmt.Errorf("encode individuals: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE crucible_generations
		SET individuals = $2, updated_at = now()
		WHERE gen_index = $1`,
		gen.Index, raw)
	if err != nil {
		return fmt.Errorf("update generation %d: %w", gen.Index, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("generation %d not recorded yet", gen.Index)
	}
	return nil
}

// History returns every generation in index order.
func (s *Store) History(ctx context.Context) ([]*population.Generation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gen_index, seed, individuals
		FROM crucible_generations
		ORDER BY gen_index ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*population.Generation
	for rows.Next() {
		gen, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanGeneration(sc scanner) (*population.Generation, error) {
	var (
		gen population.Generation
		raw []byte
	)
	if err := sc.Scan(&gen.Index, &gen.Seed, &raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &gen.Individuals); err != nil {
		return nil, fmt.Errorf("generation %d record corrupt: %w", gen.Index, err)
	}
	return &gen, nil
}
