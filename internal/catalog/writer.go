// Package catalog records run lineage in an optional PostgreSQL
// catalog: one row per run plus one row per region outcome. With no
// DSN configured a no-op writer keeps the pipeline self-contained.
package catalog

import (
	"context"
	"log/slog"
	"time"
)

// Config selects and parameterizes the catalog backend.
type Config struct {
	PostgresDSN string
	Namespace   string
}

// RunRecord is the per-run lineage row.
type RunRecord struct {
	RunID           string
	Sample          string
	Reference       string
	OutFile         string
	StorageURI      string
	Regions         int
	VariantCount    int
	Checksum        string
	ProducerVersion string
	ProducerGitSHA  string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// RegionRecord is the per-region outcome row.
type RegionRecord struct {
	RunID        string
	Contig       string
	Start        int
	End          int
	Outcome      string
	ReadCount    int
	VariantCount int
	DurationMs   int64
}

// Writer persists run lineage.
type Writer interface {
	// RecordRun upserts the run row. Called once when the run starts
	// and again with final counts when it completes.
	RecordRun(ctx context.Context, rec RunRecord) error

	// RecordRegion upserts one region outcome row.
	RecordRegion(ctx context.Context, rec RegionRecord) error

	// LastRun returns the most recent run row for a sample, or nil.
	LastRun(ctx context.Context, sample string) (*RunRecord, error)

	// Close releases database connections.
	Close() error
}

// NewWriter returns the configured catalog writer, degrading to a
// no-op when no DSN is set or the database is unreachable. Lineage is
// advisory; it never blocks a calling run.
func NewWriter(cfg Config) Writer {
	log := slog.With("component", "catalog")

	if cfg.PostgresDSN == "" {
		log.Debug("no catalog DSN configured, using no-op writer")
		return noopWriter{}
	}

	w, err := NewPostgresWriter(cfg)
	if err != nil {
		log.Warn("failed to connect to catalog, using no-op writer", "error", err)
		return noopWriter{}
	}
	return w
}

type noopWriter struct{}

func (noopWriter) RecordRun(context.Context, RunRecord) error       { return nil }
func (noopWriter) RecordRegion(context.Context, RegionRecord) error { return nil }
func (noopWriter) LastRun(context.Context, string) (*RunRecord, error) {
	return nil, nil
}
func (noopWriter) Close() error { return nil }
