package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *slog.Logger
}

// NewPostgresWriter connects to the catalog and ensures the schema.
func NewPostgresWriter(cfg Config) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool: pool,
		cfg:  cfg,
		log:  slog.With("component", "catalog"),
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("connected to PostgreSQL catalog")
	return w, nil
}

// RecordRun upserts the run row.
func (w *PostgresWriter) RecordRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO denovar_runs (
			run_id, namespace, sample, reference, out_file, storage_uri,
			regions, variant_count, checksum,
			producer_version, producer_git_sha, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id)
		DO UPDATE SET
			regions = EXCLUDED.regions,
			variant_count = EXCLUDED.variant_count,
			checksum = EXCLUDED.checksum,
			storage_uri = EXCLUDED.storage_uri,
			finished_at = EXCLUDED.finished_at
	`

	namespace := w.cfg.Namespace
	if namespace == "" {
		namespace = "denovar"
	}

	var storageURI, checksum, gitSHA *string
	if rec.StorageURI != "" {
		storageURI = &rec.StorageURI
	}
	if rec.Checksum != "" {
		checksum = &rec.Checksum
	}
	if rec.ProducerGitSHA != "" {
		gitSHA = &rec.ProducerGitSHA
	}

	var startedAt, finishedAt *time.Time
	if !rec.StartedAt.IsZero() {
		startedAt = &rec.StartedAt
	}
	if !rec.FinishedAt.IsZero() {
		finishedAt = &rec.FinishedAt
	}

	_, err := w.pool.Exec(ctx, query,
		rec.RunID, namespace, rec.Sample, rec.Reference, rec.OutFile, storageURI,
		rec.Regions, rec.VariantCount, checksum,
		rec.ProducerVersion, gitSHA, startedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	w.log.Debug("recorded run", "run_id", rec.RunID, "sample", rec.Sample)
	return nil
}

// RecordRegion upserts one region outcome row.
func (w *PostgresWriter) RecordRegion(ctx context.Context, rec RegionRecord) error {
	query := `
		INSERT INTO denovar_run_regions (
			run_id, contig, start_pos, end_pos,
			outcome, read_count, variant_count, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, contig, start_pos, end_pos)
		DO UPDATE SET
			outcome = EXCLUDED.outcome,
			read_count = EXCLUDED.read_count,
			variant_count = EXCLUDED.variant_count,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err := w.pool.Exec(ctx, query,
		rec.RunID, rec.Contig, int64(rec.Start), int64(rec.End),
		rec.Outcome, rec.ReadCount, rec.VariantCount, rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("record region %s-%d-%d: %w", rec.Contig, rec.Start, rec.End, err)
	}
	return nil
}

// LastRun returns the most recent finished run for a sample, or nil.
func (w *PostgresWriter) LastRun(ctx context.Context, sample string) (*RunRecord, error) {
	query := `
		SELECT run_id, sample, reference, out_file,
		       COALESCE(storage_uri, ''), regions, variant_count,
		       COALESCE(checksum, ''), producer_version,
		       COALESCE(producer_git_sha, '')
		FROM denovar_runs
		WHERE sample = $1 AND finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT 1
	`

	var rec RunRecord
	err := w.pool.QueryRow(ctx, query, sample).Scan(
		&rec.RunID, &rec.Sample, &rec.Reference, &rec.OutFile,
		&rec.StorageURI, &rec.Regions, &rec.VariantCount,
		&rec.Checksum, &rec.ProducerVersion, &rec.ProducerGitSHA,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get last run: %w", err)
	}
	return &rec, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
