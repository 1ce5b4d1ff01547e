// Package refseq provides range access to an indexed reference sequence
// and materializes per-region FASTA slices for the assembler.
package refseq

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brentp/faidx"
	"github.com/brentp/xopen"

	"github.com/strandlab/denovar/internal/regions"
)

// Store reads slices from a FASTA file with a .fai sidecar.
type Store struct {
	fai  *faidx.Faidx
	path string
}

// Open loads the FASTA index for path.
func Open(path string) (*Store, error) {
	fai, err := faidx.New(path)
	if err != nil {
		return nil, fmt.Errorf("open reference %s: %w", path, err)
	}
	return &Store{fai: fai, path: path}, nil
}

// Path returns the reference FASTA location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the index handle.
func (s *Store) Close() error {
	s.fai.Close()
	return nil
}

// LocalSlice writes the reference bases covering region to outBase.fa as a
// single-sequence FASTA whose header is "contig-start-end". It returns the
// file path and the slice length, which later serves as the assembler's
// genome-size parameter (the local span, a deliberate simplification).
//
// The length is read back from the file so the cached and fresh paths
// agree; if the canonical path already exists the fetch is skipped.
func (s *Store) LocalSlice(region regions.Region, outBase string) (string, int, error) {
	outFile := outBase + ".fa"
	if !xopen.Exists(outFile) {
		beg, end := region.ZeroBased()
		seq, err := s.fai.Get(region.Contig, beg, end)
		if err != nil {
			return "", 0, fmt.Errorf("fetch reference %s: %w", region.Name(), err)
		}

		tmpPath := outFile + ".tmp"
		content := fmt.Sprintf(">%s\n%s\n", region.Name(), seq)
		if err := os.WriteFile(tmpPath, []byte(content), 0644); err != nil {
			return "", 0, fmt.Errorf("write %s: %w", tmpPath, err)
		}
		if err := os.Rename(tmpPath, outFile); err != nil {
			os.Remove(tmpPath)
			return "", 0, fmt.Errorf("finalize %s: %w", outFile, err)
		}
	}

	length, err := sliceLength(outFile)
	if err != nil {
		return "", 0, err
	}
	return outFile, length, nil
}

// sliceLength reads the sequence length from the second line of a
// single-sequence FASTA.
func sliceLength(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	if !scanner.Scan() {
		return 0, fmt.Errorf("%s: missing FASTA header", path)
	}
	if !strings.HasPrefix(scanner.Text(), ">") {
		return 0, fmt.Errorf("%s: not a FASTA file", path)
	}
	if !scanner.Scan() {
		return 0, fmt.Errorf("%s: missing sequence line", path)
	}
	return len(strings.TrimSpace(scanner.Text())), nil
}
