package runner

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/strandlab/denovar/internal/config"
	"github.com/strandlab/denovar/internal/util"
)

// ValidationResult accumulates preflight findings. Errors block the
// run; warnings do not.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

func (v *ValidationResult) errorf(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
	v.Passed = false
}

func (v *ValidationResult) warnf(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}

// Preflight checks the run inputs and toolchain layout up front, so a
// misconfigured run fails before any region work instead of partway
// through the first caller invocation.
func Preflight(cfg config.Config) ValidationResult {
	result := ValidationResult{Passed: true}

	checkFile(&result, "sample.align_bam", cfg.Sample.AlignBAM)
	if cfg.Sample.AlignBAM != "" && !anyExists(cfg.Sample.AlignBAM+".bai", util.TrimExt(cfg.Sample.AlignBAM)+".bai") {
		result.errorf("no BAM index found for %s (tried .bam.bai and .bai)", cfg.Sample.AlignBAM)
	}

	checkFile(&result, "reference.fasta", cfg.Reference.FASTA)
	if cfg.Reference.FASTA != "" && !anyExists(cfg.Reference.FASTA+".fai") {
		result.errorf("no FASTA index found at %s.fai", cfg.Reference.FASTA)
	}

	checkFile(&result, "calling.variant_regions", cfg.Calling.VariantRegions)

	if len(cfg.Calling.Kmers) > 1 {
		result.errorf("calling.kmers lists %d sizes; calling supports a single k-mer size", len(cfg.Calling.Kmers))
	}

	checkCortex(&result, cfg.Tools.CortexDir)
	checkStampy(&result, cfg.Tools.StampyDir)

	if _, err := exec.LookPath("perl"); err != nil {
		result.errorf("perl not found on PATH: %v", err)
	}

	if cfg.Tools.VCFToolsDir == "" {
		result.warnf("tools.vcftools_dir not set; the caller's VCF post-processing may fail")
	} else if !anyExists(cfg.Tools.VCFToolsDir) {
		result.warnf("tools.vcftools_dir %s does not exist", cfg.Tools.VCFToolsDir)
	}

	return result
}

func checkFile(v *ValidationResult, field, path string) {
	if path == "" {
		v.errorf("%s is not set", field)
		return
	}
	if _, err := os.Stat(path); err != nil {
		v.errorf("%s: %s not readable: %v", field, path, err)
	}
}

// checkCortex verifies the expected installation layout: versioned
// binaries under bin/ and the calling script tree.
func checkCortex(v *ValidationResult, dir string) {
	if dir == "" {
		v.errorf("tools.cortex_dir is not set")
		return
	}
	if _, err := os.Stat(dir); err != nil {
		v.errorf("tools.cortex_dir %s not readable: %v", dir, err)
		return
	}

	pattern := filepath.Join(dir, "bin", "cortex_var_*")
	matches, _ := filepath.Glob(pattern)
	if len(matches) == 0 {
		v.errorf("no cortex_var binaries under %s", pattern)
	}

	runCalls := filepath.Join(dir, "scripts", "calling", "run_calls.pl")
	if _, err := os.Stat(runCalls); err != nil {
		v.errorf("run_calls.pl not found at %s", runCalls)
	}
}

func checkStampy(v *ValidationResult, dir string) {
	if dir == "" {
		v.errorf("tools.stampy_dir is not set")
		return
	}
	stampy := filepath.Join(dir, "stampy.py")
	if _, err := os.Stat(stampy); err != nil {
		v.errorf("stampy.py not found at %s", stampy)
	}
}

func anyExists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
