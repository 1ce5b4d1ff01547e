// Package report writes the optional per-region parquet run summary,
// one row per region, placed next to the final VCF.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
)

// RegionRow is one region's summary in the run report.
type RegionRow struct {
	RunID        string    `parquet:"run_id"`
	Sample       string    `parquet:"sample"`
	Contig       string    `parquet:"contig"`
	StartPos     int64     `parquet:"start_pos"`
	EndPos       int64     `parquet:"end_pos"`
	Outcome      string    `parquet:"outcome"`
	ReadCount    int32     `parquet:"read_count"`
	VariantCount int32     `parquet:"variant_count"`
	DurationMs   int64     `parquet:"duration_ms"`
	FinishedAt   time.Time `parquet:"finished_at,timestamp(millisecond)"`
}

// Write materializes the run report at path, atomically. Rows keep
// their input (region list) order.
func Write(path string, rows []RegionRow) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmpPath, err)
	}

	w := parquet.NewGenericWriter[RegionRow](f)
	_, err = w.Write(rows)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write report %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

// Read loads a run report, used by tests and ad-hoc inspection.
func Read(path string) ([]RegionRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	rows, err := parquet.Read[RegionRow](f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return rows, nil
}
