package cortex

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func makeBins(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestSelectBinarySmallestSatisfying(t *testing.T) {
	dir := makeBins(t, "cortex_var_31_c1", "cortex_var_51_c1", "cortex_var_71_c1")

	tests := []struct {
		kmer int
		want string
	}{
		{31, "cortex_var_31_c1"},
		{33, "cortex_var_51_c1"},
		{51, "cortex_var_51_c1"},
		{71, "cortex_var_71_c1"},
	}
	for _, tt := range tests {
		got, err := SelectBinary(dir, tt.kmer)
		if err != nil {
			t.Fatalf("SelectBinary(k=%d): %v", tt.kmer, err)
		}
		if filepath.Base(got) != tt.want {
			t.Errorf("SelectBinary(k=%d) = %s, want %s", tt.kmer, filepath.Base(got), tt.want)
		}
	}
}

func TestSelectBinaryNumericCapacityOrder(t *testing.T) {
	// Lexically "63" sorts before "7"; capacity comparison must be numeric.
	dir := makeBins(t, "cortex_var_63_c1", "cortex_var_7_c1")

	got, err := SelectBinary(dir, 5)
	if err != nil {
		t.Fatalf("SelectBinary: %v", err)
	}
	if filepath.Base(got) != "cortex_var_7_c1" {
		t.Errorf("SelectBinary(k=5) = %s, want cortex_var_7_c1", filepath.Base(got))
	}
}

func TestSelectBinaryNoMatch(t *testing.T) {
	dir := makeBins(t, "cortex_var_31_c1")

	if _, err := SelectBinary(dir, 63); !errors.Is(err, ErrNoBinary) {
		t.Errorf("SelectBinary(k=63) error = %v, want ErrNoBinary", err)
	}
	if _, err := SelectBinary(t.TempDir(), 31); !errors.Is(err, ErrNoBinary) {
		t.Errorf("SelectBinary with empty dir error = %v, want ErrNoBinary", err)
	}
}

func TestCallRejectsMultiKmer(t *testing.T) {
	tc := New(Dirs{Cortex: "/opt/cortex", Stampy: "/opt/stampy"}, Params{Kmers: []int{31, 41}})

	_, _, err := tc.Call(context.Background(), "reads.fastq", Bundle{}, 1000, "NA12878", filepath.Join(t.TempDir(), "out"))
	if !errors.Is(err, ErrMultiKmer) {
		t.Errorf("Call error = %v, want ErrMultiKmer", err)
	}
}

func TestWriteCallManifests(t *testing.T) {
	outBase := filepath.Join(t.TempDir(), "NA12878-chr1-1000-2000")

	fastaqIndex, refList, err := writeCallManifests("/work/reads.fastq", outBase, "NA12878", []string{"/work/local.fa"})
	if err != nil {
		t.Fatalf("writeCallManifests: %v", err)
	}

	read := func(path string) string {
		t.Helper()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}

	if got := read(outBase + ".se_fastq"); got != "/work/reads.fastq\n" {
		t.Errorf("se_fastq = %q", got)
	}
	if got := read(outBase + ".pe_fastq"); got != "" {
		t.Errorf("pe_fastq = %q, want empty", got)
	}
	wantIndex := "NA12878\t" + outBase + ".se_fastq\t" + outBase + ".pe_fastq\t" + outBase + ".pe_fastq\n"
	if got := read(fastaqIndex); got != wantIndex {
		t.Errorf("fastaq_index = %q, want %q", got, wantIndex)
	}
	if got := read(refList); got != "/work/local.fa\n" {
		t.Errorf("list_ref_fasta = %q", got)
	}
}

func TestPerlEnvPrepends(t *testing.T) {
	sep := string(os.PathListSeparator)
	base := []string{"HOME=/home/u", "PERL5LIB=/existing/lib"}

	env := perlEnv("/opt/cortex", base)

	var perl5lib string
	for _, kv := range env {
		if strings.HasPrefix(kv, "PERL5LIB=") {
			if perl5lib != "" {
				t.Fatal("PERL5LIB appears more than once")
			}
			perl5lib = strings.TrimPrefix(kv, "PERL5LIB=")
		}
	}

	want := filepath.Join("/opt/cortex", "scripts", "calling") + sep +
		filepath.Join("/opt/cortex", "scripts", "analyse_variants", "bioinf-perl", "lib") + sep +
		"/existing/lib"
	if perl5lib != want {
		t.Errorf("PERL5LIB = %q, want %q", perl5lib, want)
	}
}

func TestPerlEnvWithoutExisting(t *testing.T) {
	env := perlEnv("/opt/cortex", []string{"HOME=/home/u"})

	found := false
	for _, kv := range env {
		if strings.HasPrefix(kv, "PERL5LIB=") {
			found = true
			if strings.HasSuffix(kv, string(os.PathListSeparator)) {
				t.Errorf("PERL5LIB has trailing separator: %q", kv)
			}
		}
	}
	if !found {
		t.Error("PERL5LIB not set")
	}
}

func TestDiscoverOutput(t *testing.T) {
	tc := &Toolchain{log: slog.Default()}

	dir := t.TempDir()
	outBase := filepath.Join(dir, "NA12878-chr1-1000-2000")
	vcfDir := filepath.Join(dir, "vcfs")
	if err := os.MkdirAll(vcfDir, 0755); err != nil {
		t.Fatal(err)
	}

	// Zero matches: soft no-result.
	path, ok, err := tc.discoverOutput(outBase)
	if err != nil || ok || path != "" {
		t.Errorf("zero matches: got (%q, %v, %v), want (\"\", false, nil)", path, ok, err)
	}

	// One match: the result.
	want := filepath.Join(vcfDir, "NA12878-chr1-1000-2000_union_FINAL_k31.decomp.raw.vcf")
	if err := os.WriteFile(want, []byte("##fileformat=VCFv4.1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	path, ok, err = tc.discoverOutput(outBase)
	if err != nil || !ok || path != want {
		t.Errorf("one match: got (%q, %v, %v), want (%q, true, nil)", path, ok, err, want)
	}

	// Multiple matches: ambiguous, soft no-result.
	other := filepath.Join(vcfDir, "NA12878-chr1-1000-2000_bc_FINAL_k31.decomp.raw.vcf")
	if err := os.WriteFile(other, []byte("##fileformat=VCFv4.1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	path, ok, err = tc.discoverOutput(outBase)
	if err != nil || ok || path != "" {
		t.Errorf("multiple matches: got (%q, %v, %v), want (\"\", false, nil)", path, ok, err)
	}
}
