package cortex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brentp/xopen"

	"github.com/strandlab/denovar/internal/util"
)

// SelectBinary picks the cortex_var executable for the requested k-mer
// size. Executables are compiled per maximum k-mer capacity, encoded as
// the third underscore-separated field of the basename
// (cortex_var_31_c1). The smallest capacity that still satisfies the
// request wins; an oversized binary wastes memory.
func SelectBinary(cortexDir string, kmer int) (string, error) {
	pattern := filepath.Join(cortexDir, "bin", "cortex_var_*")
	candidates, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}

	best := ""
	bestCap := 0
	for _, bin := range candidates {
		fields := strings.Split(filepath.Base(bin), "_")
		if len(fields) < 3 {
			continue
		}
		capacity, err := strconv.Atoi(fields[2])
		if err != nil || capacity < kmer {
			continue
		}
		if best == "" || capacity < bestCap {
			best = bin
			bestCap = capacity
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w: searched %s for k=%d", ErrNoBinary, pattern, kmer)
	}
	return best, nil
}

// IndexLocalRef builds the index artifacts the caller needs for one
// local reference FASTA: a cortex graph binary per k-mer size and the
// stampy hash pair. Every artifact is skip-if-exists; the stampy pair is
// gated on the .stidx sentinel. A nonzero exit from any index build is a
// hard error, since calling without the index is meaningless.
func (t *Toolchain) IndexLocalRef(ctx context.Context, localRef string, kmers []int) (Bundle, error) {
	base := util.TrimExt(localRef)

	var graphs []string
	for _, kmer := range kmers {
		outFile := fmt.Sprintf("%s.k%d.ctx", base, kmer)
		if !xopen.Exists(outFile) {
			bin, err := SelectBinary(t.dirs.Cortex, kmer)
			if err != nil {
				return Bundle{}, err
			}
			seList := base + ".se_list"
			if err := os.WriteFile(seList, []byte(localRef+"\n"), 0644); err != nil {
				return Bundle{}, fmt.Errorf("write %s: %w", seList, err)
			}
			if err := runCommand(ctx, t.log, nil, bin,
				"--kmer_size", strconv.Itoa(kmer),
				"--mem_height", strconv.Itoa(t.params.MemHeight),
				"--se_list", seList,
				"--format", "FASTA",
				"--max_read_len", strconv.Itoa(t.params.MaxReadLen),
				"--sample_id", base,
				"--dump_binary", outFile,
			); err != nil {
				return Bundle{}, fmt.Errorf("build cortex graph k=%d for %s: %w", kmer, localRef, err)
			}
		}
		graphs = append(graphs, outFile)
	}

	if !xopen.Exists(base + ".stidx") {
		stampy := filepath.Join(t.dirs.Stampy, "stampy.py")
		if err := runCommand(ctx, t.log, nil, stampy, "-G", base, localRef); err != nil {
			return Bundle{}, fmt.Errorf("build stampy genome for %s: %w", localRef, err)
		}
		if err := runCommand(ctx, t.log, nil, stampy, "-g", base, "-H", base); err != nil {
			return Bundle{}, fmt.Errorf("build stampy hash for %s: %w", localRef, err)
		}
	}

	return Bundle{
		StampyBase: base,
		Graphs:     graphs,
		Fastas:     []string{localRef},
	}, nil
}
