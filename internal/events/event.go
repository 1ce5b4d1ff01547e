package events

import (
	"time"
)

// RunEvent is the audit record emitted when a calling run completes.
// Events for one sample form a hash chain, so a tampered or missing
// run is detectable downstream.
type RunEvent struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	Run      RunInfo             `json:"run"`
	Files    map[string]FileInfo `json:"files"`
	Producer ProducerInfo        `json:"producer"`
	Chain    ChainInfo           `json:"chain"`
}

// RunInfo identifies the run being audited.
type RunInfo struct {
	RunID        string `json:"run_id"`
	Sample       string `json:"sample"`
	Reference    string `json:"reference"`
	Regions      int    `json:"regions"`
	VariantCount int    `json:"variant_count"`
}

// FileInfo carries the checksum and location of one published artifact.
type FileInfo struct {
	Checksum    string `json:"checksum"`
	ByteSize    int64  `json:"byte_size"`
	StoragePath string `json:"storage_path"`
}

// ProducerInfo identifies the software that produced the run.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha"`
}

// ChainInfo links this event to the previous one for the same sample.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the unique key for this run's chain.
func (r RunInfo) ChainKey() string {
	return r.Sample
}

// SetChainHashes links the event to prevHash and computes its own hash.
func (e *RunEvent) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = ComputeEventHash(e)
}
