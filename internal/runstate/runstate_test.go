package runstate

import (
	"context"
	"errors"
	"testing"
)

func TestFileManagerRoundTrip(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	if _, err := mgr.Load(ctx, "NA12878", "/out/NA12878-cortex.vcf"); !errors.Is(err, ErrNoState) {
		t.Errorf("Load before Save error = %v, want ErrNoState", err)
	}

	state := &RunState{
		RunID:            "run-1",
		Sample:           "NA12878",
		OutFile:          "/out/NA12878-cortex.vcf",
		CompletedRegions: []string{"chr1-1000-2000", "chr2-500-900"},
	}
	if err := mgr.Save(ctx, state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if state.UpdatedAt.IsZero() {
		t.Error("Save should stamp UpdatedAt")
	}

	got, err := mgr.Load(ctx, "NA12878", "/out/NA12878-cortex.vcf")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %s, want run-1", got.RunID)
	}
	if len(got.CompletedRegions) != 2 || got.CompletedRegions[0] != "chr1-1000-2000" {
		t.Errorf("CompletedRegions = %v", got.CompletedRegions)
	}
}

func TestStatesKeyedByOutFile(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	if err := mgr.Save(ctx, &RunState{RunID: "run-a", Sample: "NA12878", OutFile: "/out/a.vcf"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mgr.Save(ctx, &RunState{RunID: "run-b", Sample: "NA12878", OutFile: "/out/b.vcf"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := mgr.Load(ctx, "NA12878", "/out/a.vcf")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.RunID != "run-a" {
		t.Errorf("RunID = %s, want run-a", got.RunID)
	}
}

func TestNoopManager(t *testing.T) {
	mgr, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	if err := mgr.Save(ctx, &RunState{RunID: "run-1", Sample: "s", OutFile: "o"}); err != nil {
		t.Errorf("noop Save error = %v", err)
	}
	if _, err := mgr.Load(ctx, "s", "o"); !errors.Is(err, ErrNoState) {
		t.Errorf("noop Load error = %v, want ErrNoState", err)
	}
}
