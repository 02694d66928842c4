package docstore

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

// LocalStore keeps documents under a directory on disk.
type LocalStore struct {
	root string
}

// NewLocalStore creates root if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocalStore: create %q: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Upload writes r to root/objectName and returns objectName.
func (s *LocalStore) Upload(ctx context.Context, objectName string, r io.Reader) (string, error) {
	full, err := s.resolve(objectName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("Upload: create directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("Upload: create %q: %w", full, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("Upload: write %q: %w", full, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("Upload: close %q: %w", full, err)
	}
	return filepath.ToSlash(objectName), nil
}

// Download reads root/p.
func (s *LocalStore) Download(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Download: %s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("Download: %w", err)
	}
	return data, nil
}

// resolve maps a document path to a file under root, rejecting paths that escape it.
func (s *LocalStore) resolve(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(p))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid document path: %q", p)
	}
	return filepath.Join(s.root, clean), nil
}
