// Package storage keeps the raw bytes of uploaded statements.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/statements-ledger/internal/common"
)

// BlobStore stores immutable statement bytes under a caller-chosen key.
type BlobStore interface {
	// Put writes data under key. It reports created=false when the key already
	// held content, in which case nothing is overwritten.
	Put(ctx context.Context, key string, data []byte) (path string, created bool, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// LocalStore is a BlobStore rooted at a directory on the local filesystem.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{root: abs, logger: logger}, nil
}

// Root returns the absolute storage directory.
func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	clean := filepath.Clean(path)
	if clean != s.root && !strings.HasPrefix(clean, s.root+string(os.PathSeparator)) {
		return "", common.NewAppError("STORAGE_PATH", fmt.Sprintf("path %q escapes storage root", path), common.ErrInvalidInput)
	}
	return clean, nil
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if key == "" || strings.ContainsAny(key, `/\`) {
		return "", false, common.NewAppError("STORAGE_KEY", fmt.Sprintf("invalid key %q", key), common.ErrInvalidInput)
	}
	path := filepath.Join(s.root, key)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return path, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("create blob: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", false, fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", false, fmt.Errorf("close blob: %w", err)
	}
	s.logger.Debug("stored statement bytes", "path", path, "size", len(data))
	return path, true, nil
}

func (s *LocalStore) Open(_ context.Context, path string) (io.ReadCloser, error) {
	p, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", filepath.Base(p), common.ErrNotFound)
	}
	return f, err
}

func (s *LocalStore) Delete(_ context.Context, path string) error {
	p, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("failed to delete statement bytes", "path", p, "error", err)
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
