// Package config loads and validates the denovar run configuration.
//
// Configuration comes from a YAML file, with DENOVAR_* environment
// variables overriding individual fields so containerized runs can be
// tweaked without editing the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/strandlab/denovar/internal/logging"
)

// Workflow defaults matching the cortex_var regional calling parameters.
const (
	DefaultKmer       = 31
	DefaultMinReads   = 700
	DefaultPloidy     = 2
	DefaultQualThresh = 5
	DefaultMaxReadLen = 10000
	DefaultMemHeight  = 17
	DefaultMemWidth   = 100
)

var (
	// ErrNoVariantRegions indicates the required region whitelist is missing.
	ErrNoVariantRegions = errors.New("calling.variant_regions is required: only region-based calling is supported")
	// ErrNoToolchain indicates the required external tool paths are missing.
	ErrNoToolchain = errors.New("tools.cortex_dir and tools.stampy_dir must point to pre-built cortex and stampy")
)

type Config struct {
	Sample     SampleConfig     `yaml:"sample"`
	Reference  ReferenceConfig  `yaml:"reference"`
	Calling    CallingConfig    `yaml:"calling"`
	Tools      ToolsConfig      `yaml:"tools"`
	Run        RunConfig        `yaml:"run"`
	Publish    PublishConfig    `yaml:"publish"`
	Provenance ProvenanceConfig `yaml:"provenance"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Report     ReportConfig     `yaml:"report"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        logging.Config   `yaml:"log"`
}

type SampleConfig struct {
	// Name overrides the sample name; default is the BAM's first read group SM.
	Name string `yaml:"name"`
	// AlignBAM is the coordinate-sorted, indexed alignment file.
	AlignBAM string `yaml:"align_bam"`
}

type ReferenceConfig struct {
	// FASTA is the reference sequence, indexed with a .fai sidecar.
	FASTA string `yaml:"fasta"`
}

type CallingConfig struct {
	// VariantRegions is the TSV whitelist of regions to call in.
	VariantRegions string `yaml:"variant_regions"`
	Kmers          []int  `yaml:"kmers"`
	Ploidy         int    `yaml:"ploidy"`
	MinReads       int    `yaml:"min_reads"`
	QualThresh     int    `yaml:"qual_thresh"`
	MaxReadLen     int    `yaml:"max_read_len"`
}

type ToolsConfig struct {
	CortexDir   string `yaml:"cortex_dir"`
	StampyDir   string `yaml:"stampy_dir"`
	VCFToolsDir string `yaml:"vcftools_dir"`
}

type RunConfig struct {
	WorkDir string `yaml:"work_dir"`
	OutFile string `yaml:"out_file"`
	Workers int    `yaml:"workers"`
	// Window restricts the run to regions overlapping contig:start-end.
	Window string `yaml:"window"`
}

type PublishConfig struct {
	// Backend is "local", "gcs" or "s3"; empty disables publication.
	Backend    string `yaml:"backend"`
	LocalDir   string `yaml:"local_dir"`
	GCSBucket  string `yaml:"gcs_bucket"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	Prefix     string `yaml:"prefix"`
}

type ProvenanceConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BackupDir string `yaml:"backup_dir"`
	Endpoint  string `yaml:"endpoint"`
}

type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
	Namespace   string `yaml:"namespace"`
}

type ReportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MetricsConfig struct {
	// Port serves /metrics when nonzero.
	Port int `yaml:"port"`
}

// Load reads the YAML file at path (optional), applies environment
// overrides and fills derived defaults. Call Validate before running.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

// MustLoad is Load plus Validate for the CLI path, exiting the process
// on failure: a bad configuration has no recovery.
func MustLoad(path string) Config {
	cfg, err := Load(path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func defaults() Config {
	return Config{
		Calling: CallingConfig{
			Kmers:      []int{DefaultKmer},
			Ploidy:     DefaultPloidy,
			MinReads:   DefaultMinReads,
			QualThresh: DefaultQualThresh,
			MaxReadLen: DefaultMaxReadLen,
		},
		Run: RunConfig{
			Workers: 1,
		},
		Publish: PublishConfig{
			Prefix: "calls/",
		},
		Catalog: CatalogConfig{
			Namespace: "denovar",
		},
		Log: logging.Config{
			Format: "text",
			Level:  "info",
		},
	}
}

// applyEnv overlays DENOVAR_* environment variables on the loaded file.
func (c *Config) applyEnv() {
	c.Sample.Name = getenvDefault("DENOVAR_SAMPLE", c.Sample.Name)
	c.Sample.AlignBAM = getenvDefault("DENOVAR_ALIGN_BAM", c.Sample.AlignBAM)
	c.Reference.FASTA = getenvDefault("DENOVAR_REFERENCE", c.Reference.FASTA)
	c.Calling.VariantRegions = getenvDefault("DENOVAR_VARIANT_REGIONS", c.Calling.VariantRegions)
	c.Tools.CortexDir = getenvDefault("DENOVAR_CORTEX_DIR", c.Tools.CortexDir)
	c.Tools.StampyDir = getenvDefault("DENOVAR_STAMPY_DIR", c.Tools.StampyDir)
	c.Tools.VCFToolsDir = getenvDefault("DENOVAR_VCFTOOLS_DIR", c.Tools.VCFToolsDir)
	c.Run.WorkDir = getenvDefault("DENOVAR_WORK_DIR", c.Run.WorkDir)
	c.Run.OutFile = getenvDefault("DENOVAR_OUT_FILE", c.Run.OutFile)
	c.Run.Workers = getenvInt("DENOVAR_WORKERS", c.Run.Workers)
	c.Catalog.PostgresDSN = getenvDefault("DENOVAR_CATALOG_DSN", c.Catalog.PostgresDSN)
	c.Metrics.Port = getenvInt("DENOVAR_METRICS_PORT", c.Metrics.Port)
	c.Log.Level = getenvDefault("DENOVAR_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenvDefault("DENOVAR_LOG_FORMAT", c.Log.Format)
}

// normalize fills paths derived from other settings.
func (c *Config) normalize() {
	if c.Run.OutFile == "" && c.Sample.AlignBAM != "" {
		base := strings.TrimSuffix(c.Sample.AlignBAM, filepath.Ext(c.Sample.AlignBAM))
		c.Run.OutFile = base + "-cortex.vcf"
	}
	if c.Run.WorkDir == "" && c.Run.OutFile != "" {
		c.Run.WorkDir = filepath.Dir(c.Run.OutFile)
	}
	if c.Report.Enabled && c.Report.Path == "" && c.Run.OutFile != "" {
		c.Report.Path = strings.TrimSuffix(c.Run.OutFile, ".vcf") + "-report.parquet"
	}
	if c.Run.Workers < 1 {
		c.Run.Workers = 1
	}
}

// Validate enforces the settings without which a run cannot start.
func (c *Config) Validate() error {
	if c.Sample.AlignBAM == "" {
		return fmt.Errorf("sample.align_bam is required")
	}
	if c.Reference.FASTA == "" {
		return fmt.Errorf("reference.fasta is required")
	}
	if c.Calling.VariantRegions == "" {
		return ErrNoVariantRegions
	}
	if c.Tools.CortexDir == "" || c.Tools.StampyDir == "" {
		return ErrNoToolchain
	}
	if len(c.Calling.Kmers) == 0 {
		return fmt.Errorf("calling.kmers must list at least one k-mer size")
	}
	for _, k := range c.Calling.Kmers {
		if k < 1 || k%2 == 0 {
			return fmt.Errorf("calling.kmers: %d is not a valid odd k-mer size", k)
		}
	}
	if c.Calling.Ploidy < 1 {
		return fmt.Errorf("calling.ploidy must be >= 1, got %d", c.Calling.Ploidy)
	}
	if c.Run.OutFile == "" {
		return fmt.Errorf("run.out_file is required")
	}
	switch c.Publish.Backend {
	case "", "local", "gcs", "s3":
	default:
		return fmt.Errorf("publish.backend: unknown backend %q", c.Publish.Backend)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
