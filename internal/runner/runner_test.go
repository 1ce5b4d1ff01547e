package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/strandlab/denovar/internal/alignment"
	"github.com/strandlab/denovar/internal/catalog"
	"github.com/strandlab/denovar/internal/config"
	"github.com/strandlab/denovar/internal/cortex"
	"github.com/strandlab/denovar/internal/events"
	"github.com/strandlab/denovar/internal/regions"
	"github.com/strandlab/denovar/internal/runstate"
)

// mockReads implements alignment.ReadSource and records fetch calls.
type mockReads struct {
	mu      sync.Mutex
	sample  string
	reads   []alignment.Read
	fetches int
}

func (m *mockReads) Fetch(_ regions.Region, fn func(alignment.Read) error) error {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()
	for _, rd := range m.reads {
		if err := fn(rd); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockReads) Sample() string { return m.sample }
func (m *mockReads) Close() error   { return nil }

func (m *mockReads) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

// mockSlicer implements RefSlicer, writing a fixed-length slice.
type mockSlicer struct {
	mu    sync.Mutex
	calls int
}

func (m *mockSlicer) LocalSlice(region regions.Region, outBase string) (string, int, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	outFile := outBase + ".fa"
	content := fmt.Sprintf(">%s\nACGTACGT\n", region.Name())
	if err := os.WriteFile(outFile, []byte(content), 0644); err != nil {
		return "", 0, err
	}
	return outFile, region.Length(), nil
}

// mockAssembler implements Assembler without spawning subprocesses.
type mockAssembler struct {
	mu         sync.Mutex
	indexCalls int
	callCalls  int
	produce    bool // whether Call yields a result VCF
}

func (m *mockAssembler) IndexLocalRef(_ context.Context, localRef string, kmers []int) (cortex.Bundle, error) {
	m.mu.Lock()
	m.indexCalls++
	m.mu.Unlock()
	return cortex.Bundle{
		StampyBase: strings.TrimSuffix(localRef, ".fa"),
		Graphs:     []string{strings.TrimSuffix(localRef, ".fa") + ".k31.ctx"},
		Fastas:     []string{localRef},
	}, nil
}

func (m *mockAssembler) Call(_ context.Context, _ string, _ cortex.Bundle, _ int, sample, outBase string) (string, bool, error) {
	m.mu.Lock()
	m.callCalls++
	produce := m.produce
	m.mu.Unlock()

	if !produce {
		return "", false, nil
	}

	rawVCF := outBase + ".raw.vcf"
	content := "##fileformat=VCFv4.1\n" +
		"##fileDate=20260823\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t" + sample + "\n" +
		"local\t1\t.\tA\tT\t.\tPASS\t.\tGT\t0/1\n"
	if err := os.WriteFile(rawVCF, []byte(content), 0644); err != nil {
		return "", false, err
	}
	return rawVCF, true, nil
}

func (m *mockAssembler) counts() (index, call int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexCalls, m.callCalls
}

func someReads(n int) []alignment.Read {
	out := make([]alignment.Read, n)
	for i := range out {
		out[i] = alignment.Read{
			Name: fmt.Sprintf("r%d", i),
			Seq:  []byte("ACGT"),
			Qual: []byte("IIII"),
		}
	}
	return out
}

func writeRegionList(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "regions.tsv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(t *testing.T, dir string, minReads, workers int) config.Config {
	t.Helper()
	return config.Config{
		Sample:    config.SampleConfig{Name: "NA12878", AlignBAM: filepath.Join(dir, "na12878.bam")},
		Reference: config.ReferenceConfig{FASTA: filepath.Join(dir, "ref.fa")},
		Calling: config.CallingConfig{
			VariantRegions: writeRegionList(t, dir, "chr1\t1000\t2000", "chr2\t500\t900"),
			Kmers:          []int{31},
			Ploidy:         2,
			MinReads:       minReads,
			QualThresh:     5,
			MaxReadLen:     10000,
		},
		Run: config.RunConfig{
			WorkDir: filepath.Join(dir, "work"),
			OutFile: filepath.Join(dir, "na12878-cortex.vcf"),
			Workers: workers,
		},
	}
}

func newTestRunner(cfg config.Config, reads alignment.ReadSource, tool Assembler) *Runner {
	state, _ := runstate.NewManager("")
	return &Runner{
		cfg:     cfg,
		reads:   reads,
		ref:     &mockSlicer{},
		tool:    tool,
		emitter: events.NewEmitter(events.Config{}),
		catalog: catalog.NewWriter(catalog.Config{}),
		state:   state,
		log:     slog.Default(),
	}
}

func TestRunSkipsWhenFinalOutputExists(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 1, 1)

	if err := os.WriteFile(cfg.Run.OutFile, []byte("##fileformat=VCFv4.1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	reads := &mockReads{sample: "NA12878", reads: someReads(5)}
	tool := &mockAssembler{produce: true}
	r := newTestRunner(cfg, reads, tool)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := reads.fetchCount(); got != 0 {
		t.Errorf("Fetch called %d times despite existing output", got)
	}
	index, call := tool.counts()
	if index != 0 || call != 0 {
		t.Errorf("toolchain invoked (%d index, %d call) despite existing output", index, call)
	}
}

func TestRegionOutcomeTotality(t *testing.T) {
	region := regions.Region{Contig: "chr1", Start: 1000, End: 2000}

	tests := []struct {
		name         string
		minReads     int
		readCount    int
		produce      bool
		wantOutcome  string
		wantVariants int
	}{
		{"called", 1, 3, true, OutcomeCalled, 1},
		{"insufficient reads", 5, 2, false, OutcomeInsufficientReads, 0},
		{"no result", 1, 3, false, OutcomeNoResult, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := testConfig(t, dir, tt.minReads, 1)
			reads := &mockReads{sample: "NA12878", reads: someReads(tt.readCount)}
			tool := &mockAssembler{produce: tt.produce}
			r := newTestRunner(cfg, reads, tool)

			if err := os.MkdirAll(cfg.Run.WorkDir, 0755); err != nil {
				t.Fatal(err)
			}
			res, err := r.runRegion(context.Background(), "run-1", region)
			if err != nil {
				t.Fatalf("runRegion: %v", err)
			}

			if res.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", res.Outcome, tt.wantOutcome)
			}
			if res.VariantCount != tt.wantVariants {
				t.Errorf("variants = %d, want %d", res.VariantCount, tt.wantVariants)
			}
			// Every path must leave a region VCF behind.
			if _, err := os.Stat(res.VCFPath); err != nil {
				t.Errorf("region VCF missing: %v", err)
			}
		})
	}
}

func TestGateSpawnsNoToolchain(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 10, 1)
	reads := &mockReads{sample: "NA12878", reads: someReads(2)}
	tool := &mockAssembler{produce: true}
	r := newTestRunner(cfg, reads, tool)

	if err := os.MkdirAll(cfg.Run.WorkDir, 0755); err != nil {
		t.Fatal(err)
	}
	region := regions.Region{Contig: "chr1", Start: 1000, End: 2000}
	res, err := r.runRegion(context.Background(), "run-1", region)
	if err != nil {
		t.Fatalf("runRegion: %v", err)
	}

	index, call := tool.counts()
	if index != 0 || call != 0 {
		t.Errorf("toolchain invoked (%d index, %d call) below the read threshold", index, call)
	}
	if res.Outcome != OutcomeInsufficientReads {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeInsufficientReads)
	}

	data, err := os.ReadFile(res.VCFPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "##fileformat=VCFv4.1\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tNA12878\n"
	if string(data) != want {
		t.Errorf("empty VCF content:\n%s\nwant:\n%s", data, want)
	}
}

func TestRegionVCFExistsSkipsAllWork(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 1, 1)
	reads := &mockReads{sample: "NA12878", reads: someReads(3)}
	tool := &mockAssembler{produce: true}
	r := newTestRunner(cfg, reads, tool)

	region := regions.Region{Contig: "chr1", Start: 1000, End: 2000}
	regionDir := filepath.Join(cfg.Run.WorkDir, region.Name())
	if err := os.MkdirAll(regionDir, 0755); err != nil {
		t.Fatal(err)
	}
	regionVCF := filepath.Join(regionDir, "NA12878-"+region.Name()+".vcf")
	content := "##fileformat=VCFv4.1\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tNA12878\n" +
		"chr1\t1049\t.\tA\tT\t.\tPASS\t.\tGT\t0/1\n"
	if err := os.WriteFile(regionVCF, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := r.runRegion(context.Background(), "run-1", region)
	if err != nil {
		t.Fatalf("runRegion: %v", err)
	}

	if res.Outcome != OutcomeCached {
		t.Errorf("outcome = %s, want %s", res.Outcome, OutcomeCached)
	}
	if res.VariantCount != 1 {
		t.Errorf("variants = %d, want 1", res.VariantCount)
	}
	if got := reads.fetchCount(); got != 0 {
		t.Errorf("Fetch called %d times despite cached region VCF", got)
	}
}

func TestRunMergesRegionsInInputOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 1, 1)
	reads := &mockReads{sample: "NA12878", reads: someReads(3)}
	tool := &mockAssembler{produce: true}
	r := newTestRunner(cfg, reads, tool)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(cfg.Run.OutFile)
	if err != nil {
		t.Fatal(err)
	}
	var records []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		records = append(records, line)
	}
	if len(records) != 2 {
		t.Fatalf("final VCF has %d records, want 2:\n%s", len(records), data)
	}
	// Local position 1 remaps to each region's start.
	if !strings.HasPrefix(records[0], "chr1\t1000\t") {
		t.Errorf("first record = %q, want chr1:1000", records[0])
	}
	if !strings.HasPrefix(records[1], "chr2\t500\t") {
		t.Errorf("second record = %q, want chr2:500", records[1])
	}
	if strings.Contains(string(data), "##fileDate") {
		t.Error("final VCF still carries the dropped ##fileDate header")
	}

	// A second run finds the final output and does nothing.
	before := reads.fetchCount()
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := reads.fetchCount(); got != before {
		t.Errorf("second run fetched reads (%d -> %d); want zero additional work", before, got)
	}
}

func TestRunParallelKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 1, 3)
	cfg.Calling.VariantRegions = writeRegionList(t, dir,
		"chr1\t100\t200",
		"chr1\t300\t400",
		"chr2\t100\t200",
		"chr3\t100\t200",
		"chr3\t500\t600",
	)
	reads := &mockReads{sample: "NA12878", reads: someReads(3)}
	tool := &mockAssembler{produce: true}
	r := newTestRunner(cfg, reads, tool)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(cfg.Run.OutFile)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		got = append(got, fields[0]+":"+fields[1])
	}
	want := []string{"chr1:100", "chr1:300", "chr2:100", "chr3:100", "chr3:500"}
	if len(got) != len(want) {
		t.Fatalf("records = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunAppliesWindow(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, 1, 1)
	cfg.Run.Window = "chr1:1-5000"
	reads := &mockReads{sample: "NA12878", reads: someReads(3)}
	tool := &mockAssembler{produce: true}
	r := newTestRunner(cfg, reads, tool)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the chr1 region overlaps the window.
	data, err := os.ReadFile(cfg.Run.OutFile)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "chr2") {
		t.Errorf("window did not exclude chr2:\n%s", data)
	}
	if !strings.Contains(string(data), "chr1\t1000\t") {
		t.Errorf("window dropped the overlapping chr1 region:\n%s", data)
	}
}
