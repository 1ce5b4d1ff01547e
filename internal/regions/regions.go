// Package regions parses and manipulates the target-region whitelist that
// drives regional calling.
package regions

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/brentp/xopen"

	"github.com/strandlab/denovar/internal/util"
)

// ErrNoRegions is returned when a whitelist has no usable region lines.
var ErrNoRegions = errors.New("region list contains no regions")

// Region is a contiguous target interval on a reference contig.
// Start and End are 1-based inclusive, matching the input list.
type Region struct {
	Contig string
	Start  int
	End    int
}

// Name returns the canonical "contig-start-end" label used for per-region
// directories and artifact basenames.
func (r Region) Name() string {
	return fmt.Sprintf("%s-%d-%d", r.Contig, r.Start, r.End)
}

// ZeroBased returns the half-open [start, end) coordinates used when
// querying BAM and FASTA stores.
func (r Region) ZeroBased() (start, end int) {
	return r.Start - 1, r.End
}

// Length returns the span in bases.
func (r Region) Length() int {
	return r.End - r.Start + 1
}

// Overlaps reports whether r and other share any bases.
func (r Region) Overlaps(other Region) bool {
	return r.Contig == other.Contig && r.Start <= other.End && other.Start <= r.End
}

// Clip returns r limited to window. The second return is false when the
// two do not overlap at all.
func (r Region) Clip(window Region) (Region, bool) {
	if !r.Overlaps(window) {
		return Region{}, false
	}
	out := r
	if window.Start > out.Start {
		out.Start = window.Start
	}
	if window.End < out.End {
		out.End = window.End
	}
	return out, true
}

func (r Region) check() error {
	if r.Contig == "" {
		return errors.New("empty contig name")
	}
	if r.Start < 1 {
		return fmt.Errorf("start %d is before position 1", r.Start)
	}
	if r.End < r.Start {
		return fmt.Errorf("end %d is before start %d", r.End, r.Start)
	}
	return nil
}

// ReadFile parses a region whitelist: tab-separated text, first three
// columns contig, start, end (1-based inclusive), one region per line.
// Gzipped input is handled transparently; blank and #-comment lines are
// skipped. Order is preserved.
func ReadFile(path string) ([]Region, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open region list %s: %w", path, err)
	}
	defer fh.Close()

	var out []Region
	scanner := bufio.NewScanner(fh)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		region, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read region list %s: %w", path, err)
	}
	return out, nil
}

func parseLine(line string) (Region, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 3 {
		return Region{}, fmt.Errorf("need contig, start and end columns, got %d fields", len(fields))
	}

	start, err := util.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return Region{}, fmt.Errorf("start column: %w", err)
	}
	end, err := util.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return Region{}, fmt.Errorf("end column: %w", err)
	}

	region := Region{Contig: strings.TrimSpace(fields[0]), Start: start, End: end}
	if err := region.check(); err != nil {
		return Region{}, err
	}
	return region, nil
}

// ParseWindow parses a "contig:start-end" restriction as used by the
// --window flag. Coordinates may carry thousands separators.
func ParseWindow(s string) (Region, error) {
	contig, span, ok := strings.Cut(s, ":")
	if !ok || contig == "" {
		return Region{}, fmt.Errorf("window %q: want contig:start-end", s)
	}
	startStr, endStr, ok := strings.Cut(span, "-")
	if !ok {
		return Region{}, fmt.Errorf("window %q: want contig:start-end", s)
	}

	start, err := util.ParseCoord(startStr)
	if err != nil {
		return Region{}, fmt.Errorf("window %q start: %w", s, err)
	}
	end, err := util.ParseCoord(endStr)
	if err != nil {
		return Region{}, fmt.Errorf("window %q end: %w", s, err)
	}

	region := Region{Contig: contig, Start: start, End: end}
	if err := region.check(); err != nil {
		return Region{}, fmt.Errorf("window %q: %w", s, err)
	}
	return region, nil
}

// ClipAll intersects regions with window, dropping entries that fall
// outside it and trimming partial overlaps. Order is preserved.
func ClipAll(rs []Region, window Region) []Region {
	var out []Region
	for _, r := range rs {
		if clipped, ok := r.Clip(window); ok {
			out = append(out, clipped)
		}
	}
	return out
}
