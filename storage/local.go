package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// stagingDir is the subdirectory of the upload root holding staged writes.
const stagingDir = ".staging"

// localStore stores objects as plain files under a root directory.
type localStore struct {
	root string
}

// NewLocalStore creates a filesystem-backed Store rooted at dir, creating
// the directory layout if needed.
func NewLocalStore(dir string) (Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, stagingDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &localStore{root: dir}, nil
}

func (s *localStore) livePath(name string) string {
	return filepath.Join(s.root, name)
}

func (s *localStore) stagedPath(name string) string {
	return filepath.Join(s.root, stagingDir, name)
}

// SaveStaged writes the stream to the staging area. A failed or short write
// leaves nothing behind.
func (s *localStore) SaveStaged(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	path := s.stagedPath(name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create staged file %s: %w", name, err)
	}

	written, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && size > 0 && written != size {
		err = fmt.Errorf("short write: got %d bytes, want %d", written, size)
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write staged file %s: %w", name, err)
	}
	return nil
}

// Promote renames a staged object into the live directory. Rename is atomic
// on the same filesystem.
func (s *localStore) Promote(ctx context.Context, name string) error {
	if err := os.Rename(s.stagedPath(name), s.livePath(name)); err != nil {
		return fmt.Errorf("failed to promote staged file %s: %w", name, err)
	}
	return nil
}

// DiscardStaged removes a staged object.
func (s *localStore) DiscardStaged(ctx context.Context, name string) error {
	if err := os.Remove(s.stagedPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard staged file %s: %w", name, err)
	}
	return nil
}

// Open opens a live object for reading. Only regular files qualify; the
// staging directory itself lives under the root and must never be served.
func (s *localStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	path := s.livePath(name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	return f, nil
}

// Remove deletes a live object.
func (s *localStore) Remove(ctx context.Context, name string) error {
	if err := os.Remove(s.livePath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file %s: %w", name, err)
	}
	return nil
}

// List returns every live and staged object with its modification time.
func (s *localStore) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, ObjectInfo{Name: entry.Name(), ModTime: info.ModTime()})
	}

	staged, err := os.ReadDir(filepath.Join(s.root, stagingDir))
	if err != nil {
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}
	for _, entry := range staged {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, ObjectInfo{Name: entry.Name(), ModTime: info.ModTime(), Staged: true})
	}

	return objects, nil
}
