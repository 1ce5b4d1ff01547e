package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/strandlab/denovar/internal/catalog"
	"github.com/strandlab/denovar/internal/events"
	"github.com/strandlab/denovar/internal/metrics"
	"github.com/strandlab/denovar/internal/regions"
	"github.com/strandlab/denovar/internal/report"
	"github.com/strandlab/denovar/internal/storage"
	"github.com/strandlab/denovar/internal/vcf"
)

// finishRun runs the end-of-run sidecars after the final VCF is in
// place. The order matters: storage first, then the catalog row, then
// the provenance event (it references the published, immutable
// artifacts), then the report and run state. Sidecar failures warn and
// count; the run's result already exists on disk and is never rolled
// back for them.
func (r *Runner) finishRun(ctx context.Context, runID string, startedAt time.Time, regs []regions.Region, results []RegionResult, totalVariants int) {
	sample := r.sample()
	outFile := r.cfg.Run.OutFile
	finishedAt := time.Now().UTC()
	log := r.log.With("run_id", runID, "sample", sample)

	data, err := os.ReadFile(outFile)
	if err != nil {
		log.Warn("failed to read final output for publication", "error", err)
	}
	checksum := storage.Checksum(data)

	storageURI := ""
	if r.store != nil && err == nil {
		storageURI = r.publish(ctx, log, runID, sample, len(regs), totalVariants, data, checksum)
	}

	if cerr := r.catalog.RecordRun(ctx, catalog.RunRecord{
		RunID:           runID,
		Sample:          sample,
		Reference:       r.cfg.Reference.FASTA,
		OutFile:         outFile,
		StorageURI:      storageURI,
		Regions:         len(regs),
		VariantCount:    totalVariants,
		Checksum:        checksum,
		ProducerVersion: fmt.Sprintf("denovar@%s", Version),
		ProducerGitSHA:  GitSHA,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
	}); cerr != nil {
		log.Warn("failed to record run in catalog", "error", cerr)
		if m := metrics.Get(); m != nil {
			m.IncCatalogErrors(sample)
		}
	}

	eventPath := outFile
	if storageURI != "" {
		eventPath = storageURI
	}
	evt := &events.RunEvent{
		Timestamp: finishedAt,
		Run: events.RunInfo{
			RunID:        runID,
			Sample:       sample,
			Reference:    r.cfg.Reference.FASTA,
			Regions:      len(regs),
			VariantCount: totalVariants,
		},
		Files: map[string]events.FileInfo{
			filepath.Base(outFile): {
				Checksum:    checksum,
				ByteSize:    int64(len(data)),
				StoragePath: eventPath,
			},
		},
		Producer: events.ProducerInfo{Name: "denovar", Version: Version, GitSHA: GitSHA},
	}
	if eerr := r.emitter.EmitRun(ctx, evt); eerr != nil {
		log.Warn("failed to emit run event", "error", eerr)
		if m := metrics.Get(); m != nil {
			m.IncEventErrors(sample)
		}
	}

	if r.cfg.Report.Enabled && r.cfg.Report.Path != "" {
		rows := make([]report.RegionRow, len(results))
		for i, res := range results {
			rows[i] = report.RegionRow{
				RunID:        runID,
				Sample:       sample,
				Contig:       res.Region.Contig,
				StartPos:     int64(res.Region.Start),
				EndPos:       int64(res.Region.End),
				Outcome:      res.Outcome,
				ReadCount:    int32(res.ReadCount),
				VariantCount: int32(res.VariantCount),
				DurationMs:   res.Elapsed.Milliseconds(),
				FinishedAt:   finishedAt,
			}
		}
		if rerr := report.Write(r.cfg.Report.Path, rows); rerr != nil {
			log.Warn("failed to write run report", "path", r.cfg.Report.Path, "error", rerr)
		} else {
			log.Info("wrote run report", "path", r.cfg.Report.Path, "rows", len(rows))
		}
	}

	completed := make([]string, len(results))
	for i, res := range results {
		completed[i] = res.Region.Name()
	}
	r.saveProgress(ctx, runID, completed)
}

// publish writes the final VCF, its gzip copy and the run manifest to
// the configured backend, atomically when the backend supports it. The
// return is the canonical URI of the published VCF, empty on failure.
func (r *Runner) publish(ctx context.Context, log *slog.Logger, runID, sample string, regionCount, variantCount int, data []byte, checksum string) string {
	outFile := r.cfg.Run.OutFile
	name := filepath.Base(outFile)
	prefix := r.cfg.Publish.Prefix
	backend := r.cfg.Publish.Backend

	vcfRef := storage.ObjectRef{Sample: sample, RunID: runID, Name: name}
	gzRef := storage.ObjectRef{Sample: sample, RunID: runID, Name: name + ".gz"}

	if exists, _ := r.store.Exists(ctx, vcfRef); exists {
		log.Info("run artifacts already published, skipping")
		return r.store.URI(vcfRef.Key(prefix))
	}

	gzPath := outFile + ".gz"
	if err := vcf.GzipCopy(outFile, gzPath); err != nil {
		r.publishFailed(log, sample, backend, err)
		return ""
	}
	gzData, err := os.ReadFile(gzPath)
	if err != nil {
		r.publishFailed(log, sample, backend, err)
		return ""
	}

	manifest := &storage.Manifest{
		Run: storage.RunInfo{
			RunID:        runID,
			Sample:       sample,
			Reference:    r.cfg.Reference.FASTA,
			Regions:      regionCount,
			VariantCount: variantCount,
		},
		Files: map[string]storage.FileInfo{
			name: {
				File:     name,
				Checksum: checksum,
				ByteSize: int64(len(data)),
			},
			name + ".gz": {
				File:     name + ".gz",
				Checksum: storage.Checksum(gzData),
				ByteSize: int64(len(gzData)),
			},
		},
		Producer:  storage.ProducerInfo{Name: "denovar", Version: Version, GitSHA: GitSHA},
		CreatedAt: time.Now().UTC(),
	}

	if atomic := storage.AsAtomic(r.store); atomic != nil {
		err = publishAtomic(ctx, atomic, prefix, vcfRef, gzRef, data, gzData, manifest)
	} else {
		err = publishDirect(ctx, r.store, vcfRef, gzRef, data, gzData, manifest)
	}
	if err != nil {
		r.publishFailed(log, sample, backend, err)
		return ""
	}

	uri := r.store.URI(vcfRef.Key(prefix))
	log.Info("published run artifacts",
		"backend", backend,
		"uri", uri,
		"bytes", len(data),
		"checksum", checksum,
	)
	return uri
}

func (r *Runner) publishFailed(log *slog.Logger, sample, backend string, err error) {
	log.Warn("failed to publish run artifacts", "backend", backend, "error", err)
	if m := metrics.Get(); m != nil {
		m.IncPublishErrors(sample, backend)
	}
}

// publishAtomic stages every artifact at a temp key and finalizes them
// together, so a half-written run never appears at the canonical keys.
func publishAtomic(ctx context.Context, store storage.AtomicStore, prefix string, vcfRef, gzRef storage.ObjectRef, data, gzData []byte, manifest *storage.Manifest) error {
	var tempKeys []string

	tempVCF, err := store.WriteTemp(ctx, vcfRef, data)
	if err != nil {
		return fmt.Errorf("stage vcf: %w", err)
	}
	tempKeys = append(tempKeys, tempVCF)

	tempGz, err := store.WriteTemp(ctx, gzRef, gzData)
	if err != nil {
		store.Abort(ctx, tempKeys)
		return fmt.Errorf("stage vcf.gz: %w", err)
	}
	tempKeys = append(tempKeys, tempGz)

	tempManifest, err := store.WriteManifestTemp(ctx, vcfRef, manifest)
	if err != nil {
		store.Abort(ctx, tempKeys)
		return fmt.Errorf("stage manifest: %w", err)
	}
	tempKeys = append(tempKeys, tempManifest)

	finalKeys := []string{
		vcfRef.Key(prefix),
		gzRef.Key(prefix),
		vcfRef.ManifestKey(prefix),
	}
	if err := store.Finalize(ctx, finalKeys, tempKeys); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

func publishDirect(ctx context.Context, store storage.Store, vcfRef, gzRef storage.ObjectRef, data, gzData []byte, manifest *storage.Manifest) error {
	if err := store.Write(ctx, vcfRef, data); err != nil {
		return fmt.Errorf("write vcf: %w", err)
	}
	if err := store.Write(ctx, gzRef, gzData); err != nil {
		return fmt.Errorf("write vcf.gz: %w", err)
	}
	if err := store.WriteManifest(ctx, vcfRef, manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
