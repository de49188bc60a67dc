// Package storage moves archive members between object storage and a local
// per-invocation workspace.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrObjectNotFound is returned (wrapped) when the requested key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the subset of object storage the stages need.
type ObjectStore interface {
	// DownloadFile writes the object to localPath, creating or truncating it.
	DownloadFile(ctx context.Context, bucket, key, localPath string) error
	UploadFile(ctx context.Context, bucket, key, localPath string) error
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
	// Backend names the implementation, e.g. "s3".
	Backend() string
}

// Workspace is a scratch directory owned by a single invocation.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under parent (os.TempDir when empty).
// Callers must Close it on every exit path.
func NewWorkspace(parent string) (*Workspace, error) {
	dir, err := os.MkdirTemp(parent, "verification-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory. Names that would escape the
// workspace are rejected.
func (w *Workspace) Path(name string) (string, error) {
	clean := filepath.Clean(name)
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("path %q escapes workspace", name)
	}
	return filepath.Join(w.dir, clean), nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}
