package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := defaults()
	cfg.Sample.AlignBAM = "/data/NA12878.bam"
	cfg.Reference.FASTA = "/data/GRCh37.fa"
	cfg.Calling.VariantRegions = "/data/regions.tsv"
	cfg.Tools.CortexDir = "/opt/cortex"
	cfg.Tools.StampyDir = "/opt/stampy"
	cfg.normalize()
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if got := cfg.Calling.Kmers; len(got) != 1 || got[0] != DefaultKmer {
		t.Errorf("default kmers = %v, want [%d]", got, DefaultKmer)
	}
	if cfg.Calling.MinReads != DefaultMinReads {
		t.Errorf("default min_reads = %d, want %d", cfg.Calling.MinReads, DefaultMinReads)
	}
	if cfg.Calling.Ploidy != DefaultPloidy {
		t.Errorf("default ploidy = %d, want %d", cfg.Calling.Ploidy, DefaultPloidy)
	}
	if cfg.Run.Workers != 1 {
		t.Errorf("default workers = %d, want 1", cfg.Run.Workers)
	}
}

func TestNormalizeDerivesOutputs(t *testing.T) {
	cfg := validConfig()

	want := "/data/NA12878-cortex.vcf"
	if cfg.Run.OutFile != want {
		t.Errorf("derived out_file = %q, want %q", cfg.Run.OutFile, want)
	}
	if cfg.Run.WorkDir != "/data" {
		t.Errorf("derived work_dir = %q, want /data", cfg.Run.WorkDir)
	}
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "denovar.yaml")
	yaml := `
sample:
  align_bam: /data/sample.bam
reference:
  fasta: /data/ref.fa
calling:
  variant_regions: /data/regions.tsv
  min_reads: 250
tools:
  cortex_dir: /opt/cortex
  stampy_dir: /opt/stampy
run:
  workers: 4
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DENOVAR_CORTEX_DIR", "/usr/local/cortex")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Calling.MinReads != 250 {
		t.Errorf("min_reads = %d, want 250 from file", cfg.Calling.MinReads)
	}
	if cfg.Run.Workers != 4 {
		t.Errorf("workers = %d, want 4 from file", cfg.Run.Workers)
	}
	if cfg.Tools.CortexDir != "/usr/local/cortex" {
		t.Errorf("cortex_dir = %q, want env override", cfg.Tools.CortexDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing variant regions",
			mutate:  func(c *Config) { c.Calling.VariantRegions = "" },
			wantErr: ErrNoVariantRegions,
		},
		{
			name:    "missing stampy",
			mutate:  func(c *Config) { c.Tools.StampyDir = "" },
			wantErr: ErrNoToolchain,
		},
		{
			name:    "missing cortex",
			mutate:  func(c *Config) { c.Tools.CortexDir = "" },
			wantErr: ErrNoToolchain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsEvenKmer(t *testing.T) {
	cfg := validConfig()
	cfg.Calling.Kmers = []int{32}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for even k-mer size")
	}
}
