// Package runstate persists an advisory JSON record of run progress:
// the run UUID and the regions completed so far. The idempotence
// contract stays with artifact existence on disk; the state file only
// lets a restarted run keep its identity and report resumption.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoState is returned when no run state exists.
var ErrNoState = errors.New("no run state found")

// RunState records a run's identity and progress.
type RunState struct {
	RunID            string    `json:"run_id"`
	Sample           string    `json:"sample"`
	OutFile          string    `json:"out_file"`
	CompletedRegions []string  `json:"completed_regions"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Manager handles run-state persistence and retrieval.
type Manager interface {
	// Load reads the state for the given sample and output file.
	Load(ctx context.Context, sample, outFile string) (*RunState, error)

	// Save persists the state.
	Save(ctx context.Context, state *RunState) error
}

// NewManager creates a run-state manager persisting under dir. An
// empty dir disables persistence.
func NewManager(dir string) (Manager, error) {
	if dir == "" {
		return &noopManager{}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create run state directory %s: %w", dir, err)
	}
	return &fileManager{dir: dir}, nil
}

// fileManager persists run states to local JSON files.
type fileManager struct {
	dir string
}

// statePath keys the state file on sample and output base name, so
// distinct target files never share a state file.
func (m *fileManager) statePath(sample, outFile string) string {
	filename := fmt.Sprintf("runstate_%s_%s.json", sample, filepath.Base(outFile))
	return filepath.Join(m.dir, filename)
}

// Load reads the state file.
func (m *fileManager) Load(ctx context.Context, sample, outFile string) (*RunState, error) {
	data, err := os.ReadFile(m.statePath(sample, outFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("read run state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse run state: %w", err)
	}
	return &state, nil
}

// Save persists the state atomically.
func (m *fileManager) Save(ctx context.Context, state *RunState) error {
	path := m.statePath(state.Sample, state.OutFile)

	state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write run state temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename run state file: %w", err)
	}
	return nil
}

// noopManager is used when run-state persistence is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, sample, outFile string) (*RunState, error) {
	return nil, ErrNoState
}

func (m *noopManager) Save(ctx context.Context, state *RunState) error {
	return nil
}
