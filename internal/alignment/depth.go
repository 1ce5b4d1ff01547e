package alignment

import (
	"bufio"
	"fmt"
	"io"

	"github.com/brentp/xopen"
)

// HasSufficientReads reports whether the FASTQ at path holds at least
// minReads records. Counting stops at the threshold, so deep regions
// are never scanned in full.
func HasSufficientReads(path string, minReads int) (bool, error) {
	n, err := CountReads(path, minReads)
	if err != nil {
		return false, err
	}
	return n >= minReads, nil
}

// CountReads counts FASTQ records at path, capped at limit. The cap
// keeps the gate cheap; callers that want an exact count on shallow
// regions get one, since those never reach the cap.
func CountReads(path string, limit int) (int, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	n, err := CountRecords(fh, limit)
	if err != nil {
		return 0, fmt.Errorf("count reads in %s: %w", path, err)
	}
	return n, nil
}

// CountRecords counts 4-line FASTQ records from r, stopping once limit
// records have been seen. Input past the limit-th record is not
// consumed.
func CountRecords(r io.Reader, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	br := bufio.NewReader(r)
	records := 0
	lines := 0
	for records < limit {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lines++
			if lines == 4 {
				records++
				lines = 0
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	return records, nil
}
