package events

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestComputeEventHash(t *testing.T) {
	event := RunEvent{
		Version:   "1.0",
		EventType: "run_completed",
		Timestamp: time.Now(),
		Run: RunInfo{
			RunID:        "run-1",
			Sample:       "NA12878",
			Reference:    "GRCh37.fa",
			Regions:      12,
			VariantCount: 42,
		},
		Files: map[string]FileInfo{
			"NA12878-cortex.vcf": {
				Checksum:    "sha256:abc123",
				ByteSize:    1234,
				StoragePath: "calls/NA12878/run=run-1/NA12878-cortex.vcf",
			},
		},
		Producer: ProducerInfo{
			Name:    "denovar",
			Version: "v0.1.0",
			GitSHA:  "abcdef",
		},
	}

	// First in chain: empty prev hash.
	event.SetChainHashes("")

	if event.Chain.EventHash == "" {
		t.Error("EventHash should be computed")
	}
	if len(event.Chain.EventHash) < 7 || event.Chain.EventHash[:7] != "sha256:" {
		t.Errorf("EventHash should start with 'sha256:', got: %s", event.Chain.EventHash)
	}
	if event.Chain.PrevEventHash != "" {
		t.Errorf("PrevEventHash should be empty for first in chain, got: %s", event.Chain.PrevEventHash)
	}
}

func TestHashChainDeterminism(t *testing.T) {
	createEvent := func() RunEvent {
		return RunEvent{
			Version:   "1.0",
			EventType: "run_completed",
			Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Run: RunInfo{
				RunID:  "run-2",
				Sample: "NA12878",
			},
			Files: map[string]FileInfo{
				"a.vcf":    {Checksum: "sha256:aaa"},
				"a.vcf.gz": {Checksum: "sha256:bbb"},
			},
			Producer: ProducerInfo{Name: "test"},
		}
	}

	event1 := createEvent()
	event1.SetChainHashes("prev_hash_123")

	event2 := createEvent()
	event2.SetChainHashes("prev_hash_123")

	if event1.Chain.EventHash != event2.Chain.EventHash {
		t.Errorf("Identical events should produce identical hashes.\n  Event1: %s\n  Event2: %s",
			event1.Chain.EventHash, event2.Chain.EventHash)
	}
}

func TestHashChainDifferentPrevHash(t *testing.T) {
	createEvent := func() RunEvent {
		return RunEvent{
			Version:   "1.0",
			EventType: "run_completed",
			Run: RunInfo{
				RunID:  "run-3",
				Sample: "NA12878",
			},
			Files: map[string]FileInfo{
				"out.vcf": {Checksum: "sha256:xyz"},
			},
		}
	}

	event1 := createEvent()
	event1.SetChainHashes("prev_hash_A")

	event2 := createEvent()
	event2.SetChainHashes("prev_hash_B")

	if event1.Chain.EventHash == event2.Chain.EventHash {
		t.Error("Different prev_hash should produce different event_hash")
	}
}

func TestHashChainDifferentContent(t *testing.T) {
	event1 := RunEvent{
		Version:   "1.0",
		EventType: "run_completed",
		Run:       RunInfo{RunID: "run-4", Sample: "NA12878"},
		Files: map[string]FileInfo{
			"out.vcf": {Checksum: "sha256:checksum_A"},
		},
	}
	event1.SetChainHashes("")

	event2 := RunEvent{
		Version:   "1.0",
		EventType: "run_completed",
		Run:       RunInfo{RunID: "run-4", Sample: "NA12878"},
		Files: map[string]FileInfo{
			"out.vcf": {Checksum: "sha256:checksum_B"},
		},
	}
	event2.SetChainHashes("")

	if event1.Chain.EventHash == event2.Chain.EventHash {
		t.Error("Different content should produce different event_hash")
	}
}

func TestFileOrderingDeterminism(t *testing.T) {
	// JSON map marshaling sorts keys, so insertion order must not
	// change the digest.
	event1 := RunEvent{
		Run: RunInfo{RunID: "run-5", Sample: "NA12878"},
		Files: map[string]FileInfo{
			"zebra.vcf":  {Checksum: "sha256:z"},
			"alpha.vcf":  {Checksum: "sha256:a"},
			"middle.vcf": {Checksum: "sha256:m"},
		},
	}
	event1.SetChainHashes("")

	event2 := RunEvent{
		Run: RunInfo{RunID: "run-5", Sample: "NA12878"},
		Files: map[string]FileInfo{
			"alpha.vcf":  {Checksum: "sha256:a"},
			"zebra.vcf":  {Checksum: "sha256:z"},
			"middle.vcf": {Checksum: "sha256:m"},
		},
	}
	event2.SetChainHashes("")

	if event1.Chain.EventHash != event2.Chain.EventHash {
		t.Errorf("File order should not affect hash.\n  Event1: %s\n  Event2: %s",
			event1.Chain.EventHash, event2.Chain.EventHash)
	}
}

func TestChainKey(t *testing.T) {
	r := RunInfo{RunID: "run-6", Sample: "NA12878"}
	if r.ChainKey() != "NA12878" {
		t.Errorf("ChainKey() = %s, want NA12878", r.ChainKey())
	}
}

func TestFileOnlyEmitterChainsEvents(t *testing.T) {
	dir := t.TempDir()

	emitter, err := NewFileOnlyEmitter(dir)
	if err != nil {
		t.Fatalf("NewFileOnlyEmitter: %v", err)
	}

	ctx := context.Background()
	first := &RunEvent{Run: RunInfo{RunID: "run-a", Sample: "NA12878"}}
	if err := emitter.EmitRun(ctx, first); err != nil {
		t.Fatalf("EmitRun first: %v", err)
	}
	if first.Chain.PrevEventHash != "" {
		t.Errorf("first event prev hash = %q, want empty", first.Chain.PrevEventHash)
	}

	second := &RunEvent{Run: RunInfo{RunID: "run-b", Sample: "NA12878"}}
	if err := emitter.EmitRun(ctx, second); err != nil {
		t.Fatalf("EmitRun second: %v", err)
	}
	if second.Chain.PrevEventHash != first.Chain.EventHash {
		t.Errorf("second event prev hash = %q, want %q",
			second.Chain.PrevEventHash, first.Chain.EventHash)
	}

	// Both backup files and the chain-head file must exist.
	for _, name := range []string{"NA12878_run-a.json", "NA12878_run-b.json", "denovar-chain-heads.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}
