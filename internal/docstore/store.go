// Package docstore stores uploaded statement files.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Store saves and fetches statement files. Upload returns the path to record
// on the upload; Download accepts that same path.
type Store interface {
	Upload(ctx context.Context, objectName string, r io.Reader) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
}

// ParseGCSURI splits gs://bucket/object into its parts.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Filename returns the last element of a document path or URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func Filename(p string) string {
	if strings.HasPrefix(p, "gs://") {
		if _, object, err := ParseGCSURI(p); err == nil {
			return path.Base(object)
		}
		return strings.TrimPrefix(p, "gs://")
	}
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}
