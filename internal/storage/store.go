// Package storage publishes finished run artifacts (final VCF, compressed
// copy, run manifest) to a configurable backend.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// ObjectRef identifies one published artifact of a run.
type ObjectRef struct {
	Sample string
	RunID  string
	Name   string // artifact file name, e.g. "NA12878-cortex.vcf"
}

// Key returns the storage key for this artifact.
func (r ObjectRef) Key(prefix string) string {
	return fmt.Sprintf("%s%s/run=%s/%s", prefix, r.Sample, r.RunID, r.Name)
}

// ManifestKey returns the storage key for the run manifest.
func (r ObjectRef) ManifestKey(prefix string) string {
	return fmt.Sprintf("%s%s/run=%s/_manifest.json", prefix, r.Sample, r.RunID)
}

// DirKey returns the key prefix shared by all of a run's artifacts.
func (r ObjectRef) DirKey(prefix string) string {
	return fmt.Sprintf("%s%s/run=%s", prefix, r.Sample, r.RunID)
}

// Manifest describes the contents of a published run.
type Manifest struct {
	Run       RunInfo             `json:"run"`
	Files     map[string]FileInfo `json:"files"`
	Producer  ProducerInfo        `json:"producer"`
	CreatedAt time.Time           `json:"created_at"`
}

// RunInfo describes the run that produced the artifacts.
type RunInfo struct {
	RunID        string `json:"run_id"`
	Sample       string `json:"sample"`
	Reference    string `json:"reference"`
	Regions      int    `json:"regions"`
	VariantCount int    `json:"variant_count"`
}

// FileInfo describes a single published file.
type FileInfo struct {
	File     string `json:"file"`
	Checksum string `json:"checksum"`
	ByteSize int64  `json:"byte_size"`
}

// ProducerInfo describes the software that produced the run.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	GitSHA  string `json:"git_sha,omitempty"`
}

// MarshalJSON returns the manifest as indented JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// Checksum returns the canonical "sha256:<hex>" digest of data, as
// recorded in manifests, events and catalog rows.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", sum)
}

// Store abstracts writing run artifacts to a backend.
type Store interface {
	// Write writes artifact bytes to storage.
	Write(ctx context.Context, ref ObjectRef, data []byte) error

	// WriteManifest writes the run manifest.
	WriteManifest(ctx context.Context, ref ObjectRef, manifest *Manifest) error

	// Exists checks whether the artifact is already published.
	Exists(ctx context.Context, ref ObjectRef) (bool, error)

	// URI returns the canonical URI for the given key.
	// Local: file:///path, GCS: gs://bucket/key, S3: s3://bucket/key.
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// AtomicStore extends Store with temp-key + finalize publication, so a
// half-written run never appears at the canonical keys.
type AtomicStore interface {
	Store

	// WriteTemp writes artifact bytes to a temporary key.
	WriteTemp(ctx context.Context, ref ObjectRef, data []byte) (tempKey string, err error)

	// WriteManifestTemp writes the manifest to a temporary key.
	WriteManifestTemp(ctx context.Context, ref ObjectRef, manifest *Manifest) (tempKey string, err error)

	// Finalize atomically moves temp keys to their canonical locations.
	// Object stores copy+delete; the local backend renames. On failure
	// everything already copied is rolled back.
	Finalize(ctx context.Context, finalKeys, tempKeys []string) error

	// Abort removes temporary keys without publishing.
	Abort(ctx context.Context, tempKeys []string) error

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// List returns all keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // backend checksum, empty for local
	ModTime time.Time
}

// Config selects and parameterizes the publication backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS
	GCSBucket string

	// S3-compatible (AWS, B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// Common key prefix, e.g. "calls/".
	Prefix string
}

// NewStore creates the configured publication backend.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("publish.local_dir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("publish.gcs_bucket required for gcs backend")
		}
		return NewGCSStore(cfg.GCSBucket, cfg.Prefix)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("publish.s3_bucket required for s3 backend")
		}
		return NewS3Store(cfg.S3Bucket, cfg.Prefix, cfg.S3Endpoint, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown publish backend: %s", cfg.Backend)
	}
}

// AsAtomic attempts to cast a Store to AtomicStore. Returns nil if the
// backend does not support atomic publication.
func AsAtomic(store Store) AtomicStore {
	if atomic, ok := store.(AtomicStore); ok {
		return atomic
	}
	return nil
}
