package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"contractanalyzer/internal/domain"
	"contractanalyzer/internal/port"
	"contractanalyzer/internal/storage"
)

// BlobStore keeps documents as files under a root directory. Handles are
// slash-separated paths relative to the root.
type BlobStore struct {
	fs     afero.Fs
	root   string
	policy *storage.ExtensionPolicy
}

var _ port.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates the root directory if needed.
func NewBlobStore(fsys afero.Fs, root string, policy *storage.ExtensionPolicy) (*BlobStore, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload dir: %w", err)
	}
	return &BlobStore{fs: fsys, root: root, policy: policy}, nil
}

func (s *BlobStore) Put(ctx context.Context, input port.PutInput) (string, error) {
	ext, err := s.policy.Check(input.Filename)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle := storage.NewHandle(ext)
	p, err := s.resolve(handle)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("local put: %w", err)
	}
	if err := afero.WriteFile(s.fs, p, input.Body, 0o644); err != nil {
		return "", fmt.Errorf("local put: %w", err)
	}
	return handle, nil
}

func (s *BlobStore) Get(ctx context.Context, handle string) ([]byte, error) {
	p, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("local get %s: %w", handle, domain.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("local get: %w", err)
	}
	return data, nil
}

func (s *BlobStore) Delete(ctx context.Context, handle string) (bool, error) {
	p, err := s.resolve(handle)
	if err != nil {
		return false, err
	}
	exists, err := afero.Exists(s.fs, p)
	if err != nil {
		return false, fmt.Errorf("local delete: %w", err)
	}
	if !exists {
		return false, nil
	}
	if err := s.fs.Remove(p); err != nil {
		return false, fmt.Errorf("local delete: %w", err)
	}
	return true, nil
}

// resolve maps a handle to a path under root, rejecting handles that escape it.
func (s *BlobStore) resolve(handle string) (string, error) {
	clean := path.Clean(handle)
	if handle == "" || path.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid blob handle %q: %w", handle, domain.ErrBlobNotFound)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
