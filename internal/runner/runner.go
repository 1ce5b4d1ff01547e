// Package runner orchestrates a regional calling run: per-region read
// extraction, assembly and remapping, the final merge, and the sidecar
// publications (storage, catalog, events, report).
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/brentp/xopen"
	"github.com/google/uuid"

	"github.com/strandlab/denovar/internal/alignment"
	"github.com/strandlab/denovar/internal/catalog"
	"github.com/strandlab/denovar/internal/config"
	"github.com/strandlab/denovar/internal/cortex"
	"github.com/strandlab/denovar/internal/events"
	"github.com/strandlab/denovar/internal/logging"
	"github.com/strandlab/denovar/internal/metrics"
	"github.com/strandlab/denovar/internal/regions"
	"github.com/strandlab/denovar/internal/runstate"
	"github.com/strandlab/denovar/internal/storage"
	"github.com/strandlab/denovar/internal/vcf"
)

// Assembler drives the external indexing and calling toolchain for one
// region. Implemented by cortex.Toolchain.
type Assembler interface {
	// IndexLocalRef builds the index artifacts for a local reference.
	IndexLocalRef(ctx context.Context, localRef string, kmers []int) (cortex.Bundle, error)

	// Call runs the variant caller over the extracted reads. The boolean
	// is false on the soft no-result path.
	Call(ctx context.Context, fastq string, bundle cortex.Bundle, genomeSize int, sample, outBase string) (string, bool, error)
}

// RefSlicer materializes per-region reference excerpts. Implemented by
// refseq.Store.
type RefSlicer interface {
	LocalSlice(region regions.Region, outBase string) (string, int, error)
}

// Runner orchestrates the calling pipeline for one sample.
type Runner struct {
	cfg     config.Config
	reads   alignment.ReadSource
	ref     RefSlicer
	tool    Assembler
	store   storage.Store // nil when publication is disabled
	emitter events.Emitter
	catalog catalog.Writer
	state   runstate.Manager
	log     *slog.Logger
}

// New wires a Runner from the configuration and the opened read and
// reference stores. Sidecars that fail to construct degrade with a
// warning; they never block a run.
func New(cfg config.Config, reads alignment.ReadSource, ref RefSlicer) *Runner {
	log := logging.Component("runner")

	var store storage.Store
	if cfg.Publish.Backend != "" {
		s, err := storage.NewStore(storage.Config{
			Backend:    cfg.Publish.Backend,
			LocalDir:   cfg.Publish.LocalDir,
			GCSBucket:  cfg.Publish.GCSBucket,
			S3Bucket:   cfg.Publish.S3Bucket,
			S3Endpoint: cfg.Publish.S3Endpoint,
			S3Region:   cfg.Publish.S3Region,
			Prefix:     cfg.Publish.Prefix,
		})
		if err != nil {
			log.Warn("failed to create publish store, publication disabled", "error", err)
		} else {
			store = s
		}
	}

	state, err := runstate.NewManager(cfg.Run.WorkDir)
	if err != nil {
		log.Warn("failed to create run-state manager", "error", err)
		state, _ = runstate.NewManager("")
	}

	return &Runner{
		cfg:   cfg,
		reads: reads,
		ref:   ref,
		store: store,
		tool: cortex.New(
			cortex.Dirs{
				Cortex:   cfg.Tools.CortexDir,
				Stampy:   cfg.Tools.StampyDir,
				VCFTools: cfg.Tools.VCFToolsDir,
			},
			cortex.Params{
				Kmers:      cfg.Calling.Kmers,
				Ploidy:     cfg.Calling.Ploidy,
				QualThresh: cfg.Calling.QualThresh,
				MaxReadLen: cfg.Calling.MaxReadLen,
				MemHeight:  config.DefaultMemHeight,
				MemWidth:   config.DefaultMemWidth,
			},
		),
		emitter: events.NewEmitter(events.Config{
			Enabled:   cfg.Provenance.Enabled,
			BackupDir: cfg.Provenance.BackupDir,
			Endpoint:  cfg.Provenance.Endpoint,
		}),
		catalog: catalog.NewWriter(catalog.Config{
			PostgresDSN: cfg.Catalog.PostgresDSN,
			Namespace:   cfg.Catalog.Namespace,
		}),
		state: state,
		log:   log,
	}
}

// Close releases the runner's sidecar resources.
func (r *Runner) Close() error {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Warn("failed to close publish store", "error", err)
		}
	}
	if err := r.emitter.Close(); err != nil {
		r.log.Warn("failed to close event emitter", "error", err)
	}
	return r.catalog.Close()
}

// sample returns the configured sample name, falling back to the BAM
// read-group SM tag.
func (r *Runner) sample() string {
	if r.cfg.Sample.Name != "" {
		return r.cfg.Sample.Name
	}
	return r.reads.Sample()
}

// Run executes the whole calling pipeline. The final output path gates
// the run: if it already exists nothing is done.
func (r *Runner) Run(ctx context.Context) error {
	startTime := time.Now()
	sample := r.sample()
	outFile := r.cfg.Run.OutFile
	log := r.log.With("sample", sample, "out_file", outFile)

	if xopen.Exists(outFile) {
		log.Info("final output already exists, nothing to do")
		return nil
	}

	regs, err := regions.ReadFile(r.cfg.Calling.VariantRegions)
	if err != nil {
		return err
	}
	if r.cfg.Run.Window != "" {
		window, err := regions.ParseWindow(r.cfg.Run.Window)
		if err != nil {
			return err
		}
		before := len(regs)
		regs = regions.ClipAll(regs, window)
		log.Info("window applied", "window", window.Name(), "regions_before", before, "regions_after", len(regs))
	}

	if err := os.MkdirAll(r.cfg.Run.WorkDir, 0755); err != nil {
		return fmt.Errorf("create work directory %s: %w", r.cfg.Run.WorkDir, err)
	}

	runID, startedAt := r.loadOrStartRun(ctx, sample, outFile)
	ctx = logging.WithRunID(ctx, runID)
	log = log.With("run_id", runID)
	log.Info("starting run", "regions", len(regs), "workers", r.cfg.Run.Workers)

	if err := r.catalog.RecordRun(ctx, catalog.RunRecord{
		RunID:           runID,
		Sample:          sample,
		Reference:       r.cfg.Reference.FASTA,
		OutFile:         outFile,
		Regions:         len(regs),
		ProducerVersion: fmt.Sprintf("denovar@%s", Version),
		ProducerGitSHA:  GitSHA,
		StartedAt:       startedAt,
	}); err != nil {
		log.Warn("failed to record run start in catalog", "error", err)
		if m := metrics.Get(); m != nil {
			m.IncCatalogErrors(sample)
		}
	}

	var results []RegionResult
	if r.cfg.Run.Workers > 1 {
		results, err = r.runParallel(ctx, runID, regs)
	} else {
		results, err = r.runSequential(ctx, runID, regs)
	}
	if err != nil {
		return err
	}

	paths := make([]string, len(results))
	totalVariants := 0
	for i, res := range results {
		paths[i] = res.VCFPath
		totalVariants += res.VariantCount
	}
	if err := vcf.Merge(paths, outFile, sample); err != nil {
		return fmt.Errorf("merge region outputs: %w", err)
	}

	r.finishRun(ctx, runID, startedAt, regs, results, totalVariants)

	elapsed := time.Since(startTime)
	if m := metrics.Get(); m != nil {
		m.ObserveRunDuration(sample, elapsed.Seconds())
	}
	log.Info("run complete",
		"regions", len(regs),
		"variants", totalVariants,
		"duration", elapsed.String(),
	)
	return nil
}

// loadOrStartRun resumes the run identity from a saved state when one
// exists for this sample and output, otherwise mints a fresh run ID.
func (r *Runner) loadOrStartRun(ctx context.Context, sample, outFile string) (string, time.Time) {
	if state, err := r.state.Load(ctx, sample, outFile); err == nil && state.RunID != "" {
		r.log.Info("resuming run", "run_id", state.RunID, "completed_regions", len(state.CompletedRegions))
		return state.RunID, time.Now().UTC()
	}
	return uuid.New().String(), time.Now().UTC()
}

// runSequential processes regions one at a time, in input order.
func (r *Runner) runSequential(ctx context.Context, runID string, regs []regions.Region) ([]RegionResult, error) {
	results := make([]RegionResult, 0, len(regs))
	var completed []string

	for _, region := range regs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := r.runRegion(ctx, runID, region)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", region.Name(), err)
		}
		results = append(results, res)

		completed = append(completed, region.Name())
		r.saveProgress(ctx, runID, completed)
	}
	return results, nil
}

// saveProgress persists the advisory run state; failures only warn.
func (r *Runner) saveProgress(ctx context.Context, runID string, completed []string) {
	err := r.state.Save(ctx, &runstate.RunState{
		RunID:            runID,
		Sample:           r.sample(),
		OutFile:          r.cfg.Run.OutFile,
		CompletedRegions: completed,
	})
	if err != nil {
		r.log.Warn("failed to save run state", "error", err)
	}
}
