package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore publishes run artifacts to the local filesystem.
type LocalStore struct {
	baseDir string
	prefix  string
}

// NewLocalStore creates a local filesystem store rooted at baseDir.
func NewLocalStore(baseDir, prefix string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create base directory %s: %w", baseDir, err)
	}
	return &LocalStore{baseDir: baseDir, prefix: prefix}, nil
}

// Write writes artifact bytes atomically via temp file + rename.
func (s *LocalStore) Write(ctx context.Context, ref ObjectRef, data []byte) error {
	return s.writeKey(ref.Key(s.prefix), data)
}

// WriteManifest writes the run manifest atomically.
func (s *LocalStore) WriteManifest(ctx context.Context, ref ObjectRef, manifest *Manifest) error {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return s.writeKey(ref.ManifestKey(s.prefix), data)
}

func (s *LocalStore) writeKey(key string, data []byte) error {
	path := filepath.Join(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}

// Exists checks whether the artifact is already published.
func (s *LocalStore) Exists(ctx context.Context, ref ObjectRef) (bool, error) {
	_, err := os.Stat(filepath.Join(s.baseDir, ref.Key(s.prefix)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	return "file://" + filepath.Join(s.baseDir, key)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}

// --- AtomicStore implementation ---

// WriteTemp writes artifact bytes to a uuid-suffixed temporary key.
func (s *LocalStore) WriteTemp(ctx context.Context, ref ObjectRef, data []byte) (string, error) {
	tempKey := ref.Key(s.prefix) + ".tmp." + uuid.New().String()
	if err := s.writeTempKey(tempKey, data); err != nil {
		return "", err
	}
	return tempKey, nil
}

// WriteManifestTemp writes the manifest to a temporary key.
func (s *LocalStore) WriteManifestTemp(ctx context.Context, ref ObjectRef, manifest *Manifest) (string, error) {
	data, err := manifest.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	tempKey := ref.ManifestKey(s.prefix) + ".tmp." + uuid.New().String()
	if err := s.writeTempKey(tempKey, data); err != nil {
		return "", err
	}
	return tempKey, nil
}

func (s *LocalStore) writeTempKey(key string, data []byte) error {
	path := filepath.Join(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write temp file %s: %w", path, err)
	}
	return nil
}

// Finalize renames temp keys to their canonical locations. Renames are
// atomic per file; on failure already-renamed files are rolled back.
func (s *LocalStore) Finalize(ctx context.Context, finalKeys, tempKeys []string) error {
	if len(tempKeys) != len(finalKeys) {
		return fmt.Errorf("expected %d temp keys, got %d", len(finalKeys), len(tempKeys))
	}

	for i, tempKey := range tempKeys {
		src := filepath.Join(s.baseDir, tempKey)
		dst := filepath.Join(s.baseDir, finalKeys[i])
		if err := os.Rename(src, dst); err != nil {
			for j := 0; j < i; j++ {
				os.Remove(filepath.Join(s.baseDir, finalKeys[j]))
			}
			s.Abort(ctx, tempKeys[i:])
			return fmt.Errorf("finalize %s -> %s: %w", tempKey, finalKeys[i], err)
		}
	}
	return nil
}

// Abort removes temporary files without publishing.
func (s *LocalStore) Abort(ctx context.Context, tempKeys []string) error {
	var lastErr error
	for _, key := range tempKeys {
		if err := os.Remove(filepath.Join(s.baseDir, key)); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}

// Head returns metadata about a stored object.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(filepath.Join(s.baseDir, key))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// List returns all keys under the given prefix, temp files excluded.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(s.baseDir, prefix)
	var keys []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.Contains(info.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// Verify LocalStore implements AtomicStore.
var _ AtomicStore = (*LocalStore)(nil)
