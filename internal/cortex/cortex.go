// Package cortex drives the cortex_var / stampy toolchain: per-region
// reference indexing and the run_calls.pl variant-calling subprocess.
// The command lines and manifest layouts are a fixed contract with the
// external tools and must track the installed toolchain version.
package cortex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/strandlab/denovar/internal/logging"
	"github.com/strandlab/denovar/internal/metrics"
)

var (
	// ErrMultiKmer indicates more than one k-mer size was configured for
	// the calling step, which only supports a single-k-mer workflow.
	ErrMultiKmer = errors.New("only a single k-mer calling workflow is supported")

	// ErrNoBinary indicates no versioned cortex_var executable can handle
	// the requested k-mer size.
	ErrNoBinary = errors.New("no cortex_var executable satisfies the requested k-mer size")
)

// Dirs locates the external toolchain installations.
type Dirs struct {
	Cortex   string
	Stampy   string
	VCFTools string
}

// Params carries the calling parameters forwarded to the external tools.
type Params struct {
	Kmers      []int
	Ploidy     int
	QualThresh int
	MaxReadLen int
	MemHeight  int
	MemWidth   int
}

// Bundle is the set of index artifacts built for one local reference.
// All paths must exist before Call runs.
type Bundle struct {
	// StampyBase is the path base of the .stidx/.sthash pair.
	StampyBase string
	// Graphs holds one .ctx binary per requested k-mer size.
	Graphs []string
	// Fastas lists the source reference files, in .list_ref_fasta order.
	Fastas []string
}

// Toolchain runs the external assembler/caller for one configured
// parameter set. Safe for concurrent use by region workers: it holds no
// mutable state and never touches the process environment.
type Toolchain struct {
	dirs   Dirs
	params Params
	log    *slog.Logger
}

// New returns a Toolchain for the given installation and parameters.
func New(dirs Dirs, params Params) *Toolchain {
	return &Toolchain{
		dirs:   dirs,
		params: params,
		log:    logging.Component("cortex"),
	}
}

// logWriter forwards subprocess output lines to the logger.
type logWriter struct {
	log *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.log.Debug(line)
		}
	}
	return len(p), nil
}

// runCommand executes one toolchain subprocess, streaming its output to
// the logger. env, when non-nil, replaces the inherited environment.
func runCommand(ctx context.Context, log *slog.Logger, env []string, name string, args ...string) error {
	if id := logging.RunID(ctx); id != "" {
		log = log.With("run_id", id)
	}
	log.Debug("exec", "cmd", name, "args", strings.Join(args, " "))
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	if env != nil {
		cmd.Env = env
	}
	out := logWriter{log: log}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if m := metrics.Get(); m != nil {
		m.ObserveSubprocessDuration(filepath.Base(name), time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
