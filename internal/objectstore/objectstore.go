// Package objectstore reads uploaded documents from bucket storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned when a bucket or key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Store is read access to object storage.
type Store interface {
	// Open streams an object's bytes. Callers must close the reader.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// FileStore keeps each bucket as a directory under Root, and each key as a
// file path inside it.
type FileStore struct {
	Root string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at root, creating it if missing.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileStore{Root: abs}, nil
}

// Open implements Store.
func (s *FileStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.Resolve(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s/%s is a folder", ErrObjectNotFound, bucket, key)
	}
	return f, nil
}

// Put writes an object, creating parent folders. Used by the CLI and tests.
func (s *FileStore) Put(bucket, key string, content []byte) error {
	path, err := s.Resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object folder: %w", err)
	}
	return os.WriteFile(path, content, 0o644)
}

// Remove deletes an object. A missing object is not an error.
func (s *FileStore) Remove(bucket, key string) error {
	path, err := s.Resolve(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Resolve maps bucket/key to a file path, rejecting keys that escape the bucket.
func (s *FileStore) Resolve(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	bucketDir := filepath.Join(s.Root, bucket)
	path := filepath.Join(bucketDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(bucketDir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes bucket %q", key, bucket)
	}
	return path, nil
}

// Locate is the inverse of Resolve: it splits a file path under Root into
// bucket and key. ok is false for paths outside any bucket.
func (s *FileStore) Locate(path string) (bucket, key string, ok bool) {
	rel, err := filepath.Rel(s.Root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", "", false
	}
	bucket, key, ok = strings.Cut(filepath.ToSlash(rel), "/")
	if !ok || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
