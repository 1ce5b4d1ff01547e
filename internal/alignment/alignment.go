// Package alignment provides range access to aligned sequencing reads.
package alignment

import (
	"fmt"
	"os"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/strandlab/denovar/internal/regions"
	"github.com/strandlab/denovar/internal/util"
)

// Read is the minimal view of an aligned read needed for FASTQ export.
// Qual is ASCII-encoded (phred+33).
type Read struct {
	Name    string
	Seq     []byte
	Qual    []byte
	Reverse bool
}

// ReadSource provides range access to the aligned reads of one sample.
type ReadSource interface {
	// Fetch streams the reads overlapping region, in file order.
	Fetch(region regions.Region, fn func(Read) error) error

	// Sample returns the sample name from the store's metadata.
	Sample() string

	// Close releases store resources.
	Close() error
}

// Store reads a coordinate-sorted, indexed BAM file.
type Store struct {
	path   string
	index  *bam.Index
	sample string
}

// Open loads the BAM header and BAI index for path. The sample name is
// taken from the SM tag of the first read group.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open BAM %s: %w", path, err)
	}
	defer f.Close()

	br, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, fmt.Errorf("read BAM header %s: %w", path, err)
	}
	defer br.Close()

	sample, err := sampleName(br.Header())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	index, err := readIndex(path)
	if err != nil {
		return nil, err
	}

	return &Store{path: path, index: index, sample: sample}, nil
}

// Sample returns the sample name extracted from the BAM read groups.
func (s *Store) Sample() string {
	return s.sample
}

// Fetch streams reads overlapping region. Each call opens its own
// reader, so concurrent fetches from region workers are safe.
func (s *Store) Fetch(region regions.Region, fn func(Read) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open BAM %s: %w", s.path, err)
	}
	defer f.Close()

	br, err := bam.NewReader(f, 1)
	if err != nil {
		return fmt.Errorf("read BAM %s: %w", s.path, err)
	}
	defer br.Close()

	ref := refByName(br.Header(), region.Contig)
	if ref == nil {
		return fmt.Errorf("contig %q not in BAM header of %s", region.Contig, s.path)
	}

	beg, end := region.ZeroBased()
	chunks, err := s.index.Chunks(ref, beg, end)
	if err != nil || len(chunks) == 0 {
		// No aligned data indexed for this region.
		return nil
	}

	it, err := bam.NewIterator(br, chunks)
	if err != nil {
		return fmt.Errorf("seek %s in %s: %w", region.Name(), s.path, err)
	}
	for it.Next() {
		rec := it.Record()
		if rec.Start() >= end || rec.End() <= beg {
			continue
		}
		qual := make([]byte, len(rec.Qual))
		for i, q := range rec.Qual {
			qual[i] = q + 33
		}
		read := Read{
			Name:    rec.Name,
			Seq:     rec.Seq.Expand(),
			Qual:    qual,
			Reverse: rec.Flags&sam.Reverse != 0,
		}
		if err := fn(read); err != nil {
			it.Close()
			return err
		}
	}
	return it.Close()
}

// Close releases the store. The index is held in memory, so there is
// nothing to release today; kept for interface symmetry.
func (s *Store) Close() error {
	return nil
}

// readIndex loads the BAI sidecar, accepting both naming conventions
// (align.bam.bai and align.bai).
func readIndex(bamPath string) (*bam.Index, error) {
	candidates := []string{bamPath + ".bai", util.TrimExt(bamPath) + ".bai"}
	for _, p := range candidates {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		idx, err := bam.ReadIndex(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read BAM index %s: %w", p, err)
		}
		return idx, nil
	}
	return nil, fmt.Errorf("no BAM index found for %s (tried %s)", bamPath, strings.Join(candidates, ", "))
}

func refByName(h *sam.Header, contig string) *sam.Reference {
	for _, ref := range h.Refs() {
		if ref.Name() == contig {
			return ref
		}
	}
	return nil
}

// sampleName extracts the SM tag from the first read group line.
func sampleName(h *sam.Header) (string, error) {
	rgs := h.RGs()
	if len(rgs) == 0 {
		return "", fmt.Errorf("BAM header has no read groups")
	}
	for _, field := range strings.Split(rgs[0].String(), "\t") {
		if strings.HasPrefix(field, "SM:") {
			return strings.TrimPrefix(field, "SM:"), nil
		}
	}
	return "", fmt.Errorf("first read group %q has no SM tag", rgs[0].Name())
}
