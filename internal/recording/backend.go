package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"callqa/internal/fileutil"
)

// ErrNotFound reports a key the backend does not hold.
var ErrNotFound = errors.New("recording not found")

// Backend persists merged recordings under opaque keys.
type Backend interface {
	Name() string
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Check verifies the backend accepts writes.
	Check(ctx context.Context) error
}

// FilesystemBackend stores recordings as files in one directory.
type FilesystemBackend struct {
	dir string
}

// NewFilesystemBackend returns a backend rooted at dir. The directory is
// created on first write.
func NewFilesystemBackend(dir string) *FilesystemBackend {
	return &FilesystemBackend{dir: dir}
}

func (b *FilesystemBackend) Name() string { return "file" }

// Dir returns the root directory.
func (b *FilesystemBackend) Dir() string { return b.dir }

func (b *FilesystemBackend) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid recording key %q", key)
	}
	return filepath.Join(b.dir, key), nil
}

func (b *FilesystemBackend) Put(_ context.Context, key string, data []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}

func (b *FilesystemBackend) Get(_ context.Context, key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func (b *FilesystemBackend) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	return fileutil.RemoveIfExists(path)
}

func (b *FilesystemBackend) Check(_ context.Context) error {
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	probe, err := os.CreateTemp(b.dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("recordings dir not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	return fileutil.RemoveIfExists(name)
}
