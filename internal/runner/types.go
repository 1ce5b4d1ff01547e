package runner

import (
	"time"

	"github.com/strandlab/denovar/internal/regions"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

// Region outcomes as recorded in metrics, catalog rows and the run report.
const (
	// OutcomeCalled: the toolchain produced a result VCF that was
	// remapped into global coordinates.
	OutcomeCalled = "called"

	// OutcomeInsufficientReads: the region fell below the read-depth
	// gate; an empty VCF was synthesized without invoking the toolchain.
	OutcomeInsufficientReads = "insufficient_reads"

	// OutcomeNoResult: the caller ran but its output glob matched zero
	// or several files; an empty VCF was synthesized.
	OutcomeNoResult = "no_result"

	// OutcomeCached: the region's VCF already existed, so all work was
	// skipped.
	OutcomeCached = "cached"
)

// regionTask pairs a region with its position in the input list, so
// parallel results can be committed in input order.
type regionTask struct {
	Region regions.Region
	Index  int
}

// RegionResult is the outcome of processing one region.
type RegionResult struct {
	Region       regions.Region
	VCFPath      string
	Outcome      string
	ReadCount    int
	VariantCount int
	Elapsed      time.Duration
}

// regionOutcome carries a worker's result (or error) to the collector.
type regionOutcome struct {
	Task   regionTask
	Result RegionResult
	Err    error
}
