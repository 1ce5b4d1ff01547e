// Package vcf handles the line-oriented VCF plumbing around the external
// caller: coordinate remapping, empty-result synthesis, the fan-in merge
// and compressed copies. It is deliberately not a general VCF parser;
// records pass through as tab-separated lines.
package vcf

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/brentp/xopen"
)

const fileformatHeader = "##fileformat=VCFv4.1"

// columnsHeader returns the #CHROM line, with FORMAT and a sample column
// when the sample name is known.
func columnsHeader(sample string) string {
	base := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO"
	if sample != "" {
		return base + "\tFORMAT\t" + sample
	}
	return base
}

// WriteEmpty writes a structurally valid, zero-record VCF at path. Every
// region contributes exactly one output file; this is the file for
// regions with no data or no result.
func WriteEmpty(path, sample string) error {
	content := fileformatHeader + "\n" + columnsHeader(sample) + "\n"
	return writeAtomic(path, []byte(content))
}

// CountRecords returns the number of data lines in a VCF.
func CountRecords(path string) (int, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	n := 0
	scanner := newLineScanner(fh)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	return n, nil
}

// newLineScanner returns a scanner sized for long VCF lines.
func newLineScanner(fh *xopen.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	return scanner
}

// writeAtomic writes data to a temporary sibling and renames it into
// place, so a crash never leaves a partial file at the canonical path.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}
