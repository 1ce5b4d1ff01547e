package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileBackup saves run events to local JSON files for backup/audit.
type FileBackup struct {
	dir string
	log *slog.Logger
}

// NewFileBackup creates a file backup handler.
func NewFileBackup(dir string) (*FileBackup, error) {
	if dir == "" {
		dir = "./events-backup"
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	return &FileBackup{dir: dir, log: slog.With("component", "events")}, nil
}

// Save writes a run event to a local JSON file named after the sample
// and run ID.
func (f *FileBackup) Save(evt *RunEvent) error {
	filename := fmt.Sprintf("%s_%s.json", evt.Run.Sample, evt.Run.RunID)
	path := filepath.Join(f.dir, filename)

	data, err := json.MarshalIndent(evt, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	f.log.Debug("backed up event", "path", path)
	return nil
}

// FileOnlyEmitter writes events to local files only (no HTTP).
type FileOnlyEmitter struct {
	chainTracker *ChainTracker
	backup       *FileBackup
	log          *slog.Logger
}

// NewFileOnlyEmitter creates an emitter that only writes to local files.
func NewFileOnlyEmitter(backupDir string) (*FileOnlyEmitter, error) {
	chainTracker, err := NewChainTracker(backupDir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}

	backup, err := NewFileBackup(backupDir)
	if err != nil {
		return nil, fmt.Errorf("create file backup: %w", err)
	}

	return &FileOnlyEmitter{
		chainTracker: chainTracker,
		backup:       backup,
		log:          slog.With("component", "events"),
	}, nil
}

// EmitRun chains, hashes and persists a run event locally.
func (e *FileOnlyEmitter) EmitRun(ctx context.Context, evt *RunEvent) error {
	chainKey := evt.Run.ChainKey()

	prevHash, _ := e.chainTracker.GetHead(chainKey)

	evt.EventID = GenerateEventID()
	evt.Version = "1.0"
	evt.EventType = "run_completed"
	evt.SetChainHashes(prevHash)

	e.log.Info("file-only emit",
		"sample", evt.Run.Sample,
		"run_id", evt.Run.RunID,
		"event_hash", evt.Chain.EventHash)

	if err := e.backup.Save(evt); err != nil {
		return err
	}

	if err := e.chainTracker.SetHead(chainKey, evt.Chain.EventHash); err != nil {
		e.log.Warn("failed to update chain head", "error", err)
	}

	return nil
}

// Close releases resources.
func (e *FileOnlyEmitter) Close() error {
	return nil
}
