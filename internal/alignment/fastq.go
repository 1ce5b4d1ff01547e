package alignment

import (
	"bufio"
	"fmt"
	"os"

	"github.com/brentp/xopen"

	"github.com/strandlab/denovar/internal/regions"
)

var complement [256]byte

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	for _, p := range [][2]byte{{'A', 'T'}, {'C', 'G'}, {'a', 't'}, {'c', 'g'}} {
		complement[p[0]], complement[p[1]] = p[1], p[0]
	}
}

// ReverseComplement returns the reverse complement of seq in a new
// slice. Bases without a complement (N and friends) pass through.
func ReverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		out[len(seq)-1-i] = complement[b]
	}
	return out
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// ExtractReads materializes the reads overlapping region as a
// single-end FASTQ file at outBase.fastq. Reads mapped to the reverse
// strand are flipped back to their original orientation: the sequence
// is reverse-complemented and the quality string reversed in lockstep.
//
// The file is written to a temporary path and renamed into place, so a
// crash mid-write never leaves a partial artifact at the canonical
// path. If the canonical path already exists the extraction is skipped.
func ExtractReads(src ReadSource, region regions.Region, outBase string) (string, error) {
	outFile := outBase + ".fastq"
	if xopen.Exists(outFile) {
		return outFile, nil
	}

	tmpPath := outFile + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", tmpPath, err)
	}

	w := bufio.NewWriter(f)
	err = src.Fetch(region, func(read Read) error {
		seq, qual := read.Seq, read.Qual
		if read.Reverse {
			seq = ReverseComplement(seq)
			qual = reverseBytes(qual)
		}
		if _, err := fmt.Fprintf(w, "@%s\n%s\n+\n%s\n", read.Name, seq, qual); err != nil {
			return err
		}
		return nil
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("extract reads for %s: %w", region.Name(), err)
	}

	if err := os.Rename(tmpPath, outFile); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize %s: %w", outFile, err)
	}
	return outFile, nil
}
