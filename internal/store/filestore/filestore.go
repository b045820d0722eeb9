// Package filestore is the default population store: one JSON file per
// generation under <dir>/generations/. Writes are atomic and durable
// (temp file + fsync + rename + directory sync), so a crash mid-write
// leaves either the previous record or the new one, never a torn file.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crucible-lab/crucible/internal/population"
)

// Store persists generations under a base directory.
type Store struct {
	dir string
}

// New creates the store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "generations"), 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) generationsDir() string {
	return filepath.Join(s.dir, "generations")
}

func (s *Store) generationPath(index int) string {
	return filepath.Join(s.generationsDir(), fmt.Sprintf("%04d.json", index))
}

// Load returns the latest generation, or nil when none is recorded.
func (s *Store) Load(ctx context.Context) (*population.Generation, error) {
	indices, err := s.indices()
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, nil
	}
	return s.read(indices[len(indices)-1])
}

// Append durably records a new generation; the index must be unused.
func (s *Store) Append(ctx context.Context, gen *population.Generation) error {
	path := s.generationPath(gen.Index)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("generation %d already recorded", gen.Index)
	}
	return s.write(gen)
}

// Save atomically rewrites an existing generation's record.
func (s *Store) Save(ctx context.Context, gen *population.Generation) error {
	if _, err := os.Stat(s.generationPath(gen.Index)); err != nil {
		return fmt.Errorf("generation %d not recorded yet: %w", gen.Index, err)
	}
	return s.write(gen)
}

// History returns every recorded generation in index order.
func (s *Store) History(ctx context.Context) ([]*population.Generation, error) {
	indices, err := s.indices()
	if err != nil {
		return nil, err
	}
	out := make([]*population.Generation, 0, len(indices))
	for _, i := range indices {
		gen, err := s.read(i)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	return out, nil
}

// Close is a no-op for the file backend.
func (s *Store) Close() error { return nil }

// indices lists the recorded generation indices, ascending. os.ReadDir
// returns entries sorted by filename, and the zero-padded names keep
// lexicographic and numeric order aligned.
func (s *Store) indices() ([]int, error) {
	entries, err := os.ReadDir(s.generationsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(name, "%d.json", &idx); err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out, nil
}

func (s *Store) read(index int) (*population.Generation, error) {
	data, err := os.ReadFile(s.generationPath(index))
	if err != nil {
		return nil, err
	}
	var gen population.Generation
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("generation %d record corrupt: %w", index, err)
	}
	return &gen, nil
}

func (s *Store) write(gen *population.Generation) error {
	data, err := json.MarshalIndent(gen, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.generationPath(gen.Index), data, 0o644)
}

// writeFileAtomic writes data durably: temp file in the same directory,
// fsync, rename over the target, then directory sync.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return fsyncDir(dir)
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
