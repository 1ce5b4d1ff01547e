package vcf

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/brentp/xopen"
)

// Merge fans the ordered per-region VCFs at paths into one file at
// outPath. The header block is taken from the first input; later
// headers are suppressed and data lines are appended in input order, so
// the output follows the region list order. With no inputs, or only
// empty inputs, the result is still a valid header-only VCF.
func Merge(paths []string, outPath, sample string) error {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	wroteHeader := false
	for _, path := range paths {
		in, err := xopen.Ropen(path)
		if err != nil {
			return fmt.Errorf("open region VCF %s: %w", path, err)
		}

		scanner := newLineScanner(in)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "#") {
				if !wroteHeader {
					fmt.Fprintln(w, line)
				}
				continue
			}
			if line == "" {
				continue
			}
			fmt.Fprintln(w, line)
		}
		err = scanner.Err()
		if cerr := in.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("read region VCF %s: %w", path, err)
		}
		wroteHeader = true
	}

	if !wroteHeader {
		// Empty region list: synthesize the header.
		fmt.Fprintln(w, fileformatHeader)
		fmt.Fprintln(w, columnsHeader(sample))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return writeAtomic(outPath, buf.Bytes())
}
