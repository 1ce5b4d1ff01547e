package alignment

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func fastqRecords(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("@r\nACGT\n+\nIIII\n")
	}
	return b.String()
}

func writeFastq(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reads.fastq")
	if err := os.WriteFile(path, []byte(fastqRecords(n)), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHasSufficientReads(t *testing.T) {
	tests := []struct {
		records  int
		minReads int
		want     bool
	}{
		{0, 1, false},
		{2, 3, false},
		{3, 3, true},
		{10, 3, true},
	}

	for _, tt := range tests {
		path := writeFastq(t, tt.records)
		got, err := HasSufficientReads(path, tt.minReads)
		if err != nil {
			t.Fatalf("HasSufficientReads(%d records, min %d): %v", tt.records, tt.minReads, err)
		}
		if got != tt.want {
			t.Errorf("HasSufficientReads(%d records, min %d) = %v, want %v", tt.records, tt.minReads, got, tt.want)
		}
	}
}

func TestCountReadsIsCapped(t *testing.T) {
	path := writeFastq(t, 10)
	n, err := CountReads(path, 3)
	if err != nil {
		t.Fatalf("CountReads: %v", err)
	}
	if n != 3 {
		t.Errorf("CountReads = %d, want cap 3", n)
	}
}

// poisonedReader fails any read past the prefix, proving the counter
// never consumes input beyond the records it needs.
type poisonedReader struct{}

func (poisonedReader) Read([]byte) (int, error) {
	return 0, errors.New("read past the counting threshold")
}

func TestCountRecordsStopsAtThreshold(t *testing.T) {
	limit := 3
	r := io.MultiReader(
		strings.NewReader(fastqRecords(limit)),
		poisonedReader{},
	)

	n, err := CountRecords(r, limit)
	if err != nil {
		t.Fatalf("CountRecords consumed input past the threshold: %v", err)
	}
	if n != limit {
		t.Errorf("CountRecords = %d, want %d", n, limit)
	}
}
