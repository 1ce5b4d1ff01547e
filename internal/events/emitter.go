// Package events emits hash-chained audit events for completed runs.
// Chain heads are persisted per sample, so consumers can detect missing
// or reordered runs.
package events

import (
	"context"
	"log/slog"
)

// Config selects the emitter backend.
type Config struct {
	// Enabled turns emission on; off means a no-op emitter.
	Enabled bool
	// BackupDir holds the local event copies and chain-head file.
	BackupDir string
	// Endpoint, when set, posts events over HTTP as the primary path.
	Endpoint string
}

// Emitter publishes run-completed events.
type Emitter interface {
	EmitRun(ctx context.Context, evt *RunEvent) error
	Close() error
}

// NewEmitter creates the emitter matching the configuration. Any
// construction failure degrades to a no-op emitter: provenance never
// blocks a calling run.
func NewEmitter(cfg Config) Emitter {
	log := slog.With("component", "events")

	if !cfg.Enabled {
		log.Debug("provenance disabled, using no-op emitter")
		return &noopEmitter{}
	}

	if cfg.Endpoint != "" {
		emitter, err := NewHTTPEmitter(cfg)
		if err != nil {
			log.Warn("failed to create HTTP emitter, falling back to file-only", "error", err)
			return newFileOnly(cfg, log)
		}
		log.Info("using HTTP emitter", "endpoint", cfg.Endpoint)
		return emitter
	}

	return newFileOnly(cfg, log)
}

func newFileOnly(cfg Config, log *slog.Logger) Emitter {
	emitter, err := NewFileOnlyEmitter(cfg.BackupDir)
	if err != nil {
		log.Warn("failed to create file emitter, using no-op", "error", err)
		return &noopEmitter{}
	}
	log.Info("using file-only emitter", "dir", cfg.BackupDir)
	return emitter
}

// noopEmitter discards all events.
type noopEmitter struct{}

func (n *noopEmitter) EmitRun(context.Context, *RunEvent) error { return nil }

func (n *noopEmitter) Close() error { return nil }
