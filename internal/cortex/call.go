package cortex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Call runs run_calls.pl over the extracted reads and returns the path
// of the produced region-local VCF. The boolean is false when the
// caller ran successfully but no unambiguous output was found; that is
// the soft no-result path, not an error. genomeSize is the local
// reference slice length.
func (t *Toolchain) Call(ctx context.Context, fastq string, bundle Bundle, genomeSize int, sample, outBase string) (string, bool, error) {
	if len(t.params.Kmers) != 1 {
		return "", false, fmt.Errorf("%w: configured k-mer sizes %v", ErrMultiKmer, t.params.Kmers)
	}

	fastaqIndex, refList, err := writeCallManifests(fastq, outBase, sample, bundle.Fastas)
	if err != nil {
		return "", false, err
	}

	outDir := filepath.Dir(outBase)
	outName := filepath.Base(outBase)
	runCalls := filepath.Join(t.dirs.Cortex, "scripts", "calling", "run_calls.pl")

	err = runCommand(ctx, t.log, perlEnv(t.dirs.Cortex, os.Environ()), "perl", runCalls,
		"--first_kmer", strconv.Itoa(t.params.Kmers[0]),
		"--fastaq_index", fastaqIndex,
		"--auto_cleaning", "yes", "--bc", "yes", "--pd", "yes",
		"--outdir", outDir, "--outvcf", outName,
		"--ploidy", strconv.Itoa(t.params.Ploidy),
		"--stampy_hash", bundle.StampyBase,
		"--stampy_bin", filepath.Join(t.dirs.Stampy, "stampy.py"),
		"--refbindir", filepath.Dir(bundle.Graphs[0]),
		"--list_ref_fasta", refList,
		"--genome_size", strconv.Itoa(genomeSize),
		"--max_read_len", strconv.Itoa(t.params.MaxReadLen),
		"--format", "FASTQ",
		"--qthresh", strconv.Itoa(t.params.QualThresh),
		"--do_union", "yes",
		"--mem_height", strconv.Itoa(t.params.MemHeight),
		"--mem_width", strconv.Itoa(t.params.MemWidth),
		"--ref", "CoordinatesAndInCalling",
		"--workflow", "independent",
		"--vcftools_dir", t.dirs.VCFTools,
		"--logfile", outBase+".logfile,f",
	)
	if err != nil {
		return "", false, fmt.Errorf("run_calls for %s: %w", outName, err)
	}

	return t.discoverOutput(outBase)
}

// writeCallManifests lays out the list files run_calls.pl reads. The
// paired-end index stays empty: only single-end reads are extracted, so
// the fastaq_index points both PE columns at the empty file.
func writeCallManifests(fastq, outBase, sample string, fastas []string) (fastaqIndex, refList string, err error) {
	seIndex := outBase + ".se_fastq"
	peIndex := outBase + ".pe_fastq"
	fastaqIndex = outBase + ".fastaq_index"
	refList = outBase + ".list_ref_fasta"

	files := []struct {
		path    string
		content string
	}{
		{seIndex, fastq + "\n"},
		{peIndex, ""},
		{fastaqIndex, fmt.Sprintf("%s\t%s\t%s\t%s\n", sample, seIndex, peIndex, peIndex)},
		{refList, strings.Join(fastas, "\n") + "\n"},
	}
	for _, f := range files {
		if err := os.WriteFile(f.path, []byte(f.content), 0644); err != nil {
			return "", "", fmt.Errorf("write %s: %w", f.path, err)
		}
	}
	return fastaqIndex, refList, nil
}

// perlEnv returns base with PERL5LIB pointing at the cortex helper
// script libraries, prepended to any pre-existing value. The overlay is
// per-command; the process environment is never mutated, so concurrent
// region workers cannot race on it.
func perlEnv(cortexDir string, base []string) []string {
	lib := filepath.Join(cortexDir, "scripts", "calling") +
		string(os.PathListSeparator) +
		filepath.Join(cortexDir, "scripts", "analyse_variants", "bioinf-perl", "lib")

	out := make([]string, 0, len(base)+1)
	found := false
	for _, kv := range base {
		if strings.HasPrefix(kv, "PERL5LIB=") {
			out = append(out, "PERL5LIB="+lib+string(os.PathListSeparator)+strings.TrimPrefix(kv, "PERL5LIB="))
			found = true
			continue
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PERL5LIB="+lib)
	}
	return out
}

// discoverOutput locates the caller's final VCF by its naming
// convention. Exactly one match is a result; zero or several matches
// are reported and treated as "no variants produced", since the naming
// convention is the only source of truth here.
func (t *Toolchain) discoverOutput(outBase string) (string, bool, error) {
	pattern := filepath.Join(filepath.Dir(outBase), "vcfs", filepath.Base(outBase)+"*FINAL*raw.vcf")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", false, fmt.Errorf("glob %s: %w", pattern, err)
	}

	switch len(matches) {
	case 1:
		return matches[0], true, nil
	case 0:
		t.log.Warn("caller produced no output VCF",
			"reason", "no_matches", "pattern", pattern)
		return "", false, nil
	default:
		t.log.Warn("caller output is ambiguous",
			"reason", "multiple_matches",
			"pattern", pattern,
			"matches", len(matches),
			"candidates", strings.Join(matches, ", "))
		return "", false, nil
	}
}
