package vcf

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brentp/xopen"

	"github.com/strandlab/denovar/internal/regions"
	"github.com/strandlab/denovar/internal/util"
)

// Remap streams the region-local caller output at inPath and writes it
// to outPath in global coordinates: the contig column becomes the
// region's contig and region.Start-1 is added to each position,
// converting 1-based-local to 1-based-global. Header lines pass through
// unchanged and in order, except the ##fileDate line, which is dropped
// so reruns produce byte-identical output.
func Remap(inPath string, region regions.Region, outPath string) error {
	in, err := xopen.Ropen(inPath)
	if err != nil {
		return fmt.Errorf("open caller output %s: %w", inPath, err)
	}
	defer in.Close()

	tmpPath := outPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}

	w := bufio.NewWriter(out)
	offset := region.Start - 1
	scanner := newLineScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "##fileDate"):
			continue
		case strings.HasPrefix(line, "#"):
			_, err = fmt.Fprintln(w, line)
		default:
			var mapped string
			mapped, err = remapLine(line, region.Contig, offset)
			if err == nil {
				_, err = fmt.Fprintln(w, mapped)
			}
		}
		if err != nil {
			break
		}
	}
	if err == nil {
		err = scanner.Err()
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("remap %s for %s: %w", inPath, region.Name(), err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", outPath, err)
	}
	return nil
}

// remapLine rewrites the first two columns of one record. All other
// columns pass through untouched.
func remapLine(line, contig string, offset int) (string, error) {
	parts := strings.Split(line, "\t")
	if len(parts) < 2 {
		return "", fmt.Errorf("malformed record %q: need at least CHROM and POS columns", line)
	}
	pos, err := util.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("record %q: position column: %w", line, err)
	}
	parts[0] = contig
	parts[1] = fmt.Sprintf("%d", pos+offset)
	return strings.Join(parts, "\t"), nil
}
