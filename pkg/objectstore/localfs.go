package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS is the filesystem-backed Backend, used as the default/dev
// storage backend and grounded in the original implementation's
// storage/local.rs for the key-to-path layout: objects live under a root
// directory, one file per key holding the raw CachedResponse encoding
// with no additional framing, and prefix deletion walks and removes
// matching files.
type LocalFS struct {
	root string
}

// NewLocalFS constructs a LocalFS rooted at root, creating it if absent.
func NewLocalFS(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root %s: %w", root, err)
	}
	return &LocalFS{root: root}, nil
}

func (l *LocalFS) pathFor(key string) (string, error) {
	for _, part := range strings.Split(filepath.ToSlash(key), "/") {
		if part == ".." {
			return "", fmt.Errorf("objectstore: key %q escapes store root", key)
		}
	}
	clean := filepath.Clean("/" + key) // neutralize ".." traversal
	full := filepath.Join(l.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(l.root)+string(filepath.Separator)) && full != filepath.Clean(l.root) {
		return "", fmt.Errorf("objectstore: key %q escapes store root", key)
	}
	return full, nil
}

func (l *LocalFS) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := l.pathFor(key)
	if err != nil {
		return nil, err
	}

	body, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return body, nil
}

// Put writes body atomically: it's written to a temp file in the same
// directory, then renamed into place, so a concurrent Get never observes
// a partially written object.
func (l *LocalFS) Put(ctx context.Context, key string, body []byte) error {
	path, err := l.pathFor(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// DeletePrefix removes every file whose path (relative to root) starts
// with prefix.
func (l *LocalFS) DeletePrefix(ctx context.Context, prefix string) error {
	prefixPath, err := l.pathFor(prefix)
	if err != nil {
		return err
	}

	return filepath.Walk(l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(path, prefixPath) {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				return rmErr
			}
		}
		return nil
	})
}

// Probe checks that the root directory is still accessible.
func (l *LocalFS) Probe(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("objectstore: root %s is not a directory", l.root)
	}
	return nil
}

// IsAvailabilityError treats any error other than ErrMiss as an
// availability problem (disk full, permission denied, root removed); a
// key rejected for escaping the store root is counted the same way.
func (l *LocalFS) IsAvailabilityError(err error) bool {
	return err != nil && !errors.Is(err, ErrMiss)
}
