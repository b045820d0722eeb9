package fitness

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileGateway watches a directory the analysis pipeline writes into: one
// <individual_id>.json file per measured sample. Missing file means the
// measurement is still pending. The analysis side runs as a separate
// process and deposits one fitness record per sample it measures.
type FileGateway struct {
	dir string
}

// fitnessRecord is the on-disk layout the analysis side produces.
type fitnessRecord struct {
	Fitness *float64 `json:"fitness"`
	Error   string   `json:"error,omitempty"`
}

// NewFileGateway creates the gateway, ensuring the watch directory exists.
func NewFileGateway(dir string) (*FileGateway, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fitness directory: %w", err)
	}
	return &FileGateway{dir: dir}, nil
}

// Submit registers interest in a sample; the token is the individual id.
func (g *FileGateway) Submit(ctx context.Context, individualID string) (Handle, error) {
	return Handle{Token: individualID}, nil
}

// Poll checks for the sample's fitness file.
func (g *FileGateway) Poll(ctx context.Context, h Handle) (Sample, error) {
	path := filepath.Join(g.dir, h.Token+".json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Sample{Status: Pending}, nil
	}
	if err != nil {
		return Sample{}, err
	}
	var rec fitnessRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Sample{}, fmt.Errorf("fitness record %s corrupt: %w", path, err)
	}
	if rec.Error != "" {
		return Sample{Status: Failed, Detail: rec.Error}, nil
	}
	if rec.Fitness == nil {
		return Sample{Status: Failed, Detail: "fitness record carries no value"}, nil
	}
	return Sample{Status: Ready, Value: *rec.Fitness}, nil
}
