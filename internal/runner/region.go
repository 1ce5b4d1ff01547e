package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brentp/xopen"

	"github.com/strandlab/denovar/internal/alignment"
	"github.com/strandlab/denovar/internal/catalog"
	"github.com/strandlab/denovar/internal/logging"
	"github.com/strandlab/denovar/internal/metrics"
	"github.com/strandlab/denovar/internal/regions"
	"github.com/strandlab/denovar/internal/vcf"
)

// runRegion processes one region and records its outcome in metrics and
// the catalog. Errors abort the whole run; soft conditions come back as
// outcomes with an empty-but-valid VCF.
func (r *Runner) runRegion(ctx context.Context, runID string, region regions.Region) (RegionResult, error) {
	start := time.Now()
	if m := metrics.Get(); m != nil {
		m.RegionsInFlight.Inc()
		defer m.RegionsInFlight.Dec()
	}

	res, err := r.processRegion(ctx, runID, region)
	res.Elapsed = time.Since(start)
	if err != nil {
		return res, err
	}

	sample := r.sample()
	if m := metrics.Get(); m != nil {
		m.IncRegionsProcessed(sample, res.Outcome)
		m.ObserveRegionDuration(sample, res.Outcome, res.Elapsed.Seconds())
		if res.ReadCount > 0 {
			m.AddReadsExtracted(sample, float64(res.ReadCount))
		}
		if res.VariantCount > 0 {
			m.AddVariantsCalled(sample, float64(res.VariantCount))
		}
	}

	if cerr := r.catalog.RecordRegion(ctx, catalog.RegionRecord{
		RunID:        runID,
		Contig:       region.Contig,
		Start:        region.Start,
		End:          region.End,
		Outcome:      res.Outcome,
		ReadCount:    res.ReadCount,
		VariantCount: res.VariantCount,
		DurationMs:   res.Elapsed.Milliseconds(),
	}); cerr != nil {
		r.log.Warn("failed to record region in catalog", "region", region.Name(), "error", cerr)
		if m := metrics.Get(); m != nil {
			m.IncCatalogErrors(sample)
		}
	}

	return res, nil
}

// processRegion is the per-region state machine:
//
//	EXTRACT -> GATE -> [empty VCF | INDEX -> INVOKE -> (REMAP | empty VCF)]
//
// The region's final VCF path gates the whole region; every stage below
// it is additionally skip-if-output-exists, so a crashed run resumes
// where it stopped.
func (r *Runner) processRegion(ctx context.Context, runID string, region regions.Region) (RegionResult, error) {
	sample := r.sample()
	log := logging.RegionLogger(runID, sample, region.Contig, region.Start, region.End)

	regionDir := filepath.Join(r.cfg.Run.WorkDir, region.Name())
	outBase := filepath.Join(regionDir, fmt.Sprintf("%s-%s", sample, region.Name()))
	regionVCF := outBase + ".vcf"
	res := RegionResult{Region: region, VCFPath: regionVCF}

	if xopen.Exists(regionVCF) {
		count, err := vcf.CountRecords(regionVCF)
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeCached
		res.VariantCount = count
		log.Info("region output exists, skipping", "variants", count)
		return res, nil
	}

	if err := os.MkdirAll(regionDir, 0755); err != nil {
		return res, fmt.Errorf("create region directory %s: %w", regionDir, err)
	}

	fastq, err := alignment.ExtractReads(r.reads, region, outBase)
	if err != nil {
		return res, err
	}

	minReads := r.cfg.Calling.MinReads
	readCount, err := alignment.CountReads(fastq, minReads)
	if err != nil {
		return res, err
	}
	res.ReadCount = readCount

	if readCount < minReads {
		log.Info("insufficient reads, synthesizing empty VCF",
			"reads", readCount, "min_reads", minReads)
		if err := vcf.WriteEmpty(regionVCF, sample); err != nil {
			return res, err
		}
		res.Outcome = OutcomeInsufficientReads
		return res, nil
	}

	localRef, genomeSize, err := r.ref.LocalSlice(region, outBase)
	if err != nil {
		return res, err
	}

	bundle, err := r.tool.IndexLocalRef(ctx, localRef, r.cfg.Calling.Kmers)
	if err != nil {
		return res, err
	}

	rawVCF, ok, err := r.tool.Call(ctx, fastq, bundle, genomeSize, sample, outBase)
	if err != nil {
		return res, err
	}
	if !ok {
		log.Info("caller produced no result, synthesizing empty VCF")
		if err := vcf.WriteEmpty(regionVCF, sample); err != nil {
			return res, err
		}
		res.Outcome = OutcomeNoResult
		return res, nil
	}

	if err := vcf.Remap(rawVCF, region, regionVCF); err != nil {
		return res, err
	}
	count, err := vcf.CountRecords(regionVCF)
	if err != nil {
		return res, err
	}
	res.Outcome = OutcomeCalled
	res.VariantCount = count
	log.Info("region called", "variants", count, "reads", readCount)
	return res, nil
}
