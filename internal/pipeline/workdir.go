package pipeline

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ScopedDir is a working directory owned by exactly one render job.
type ScopedDir struct {
	Path string
}

// newScopedDir creates a fresh directory under root (the OS temp dir when empty).
// MkdirTemp adds a random suffix, so concurrent jobs never share a directory
// and no locking is needed.
func newScopedDir(root string, jobID uuid.UUID) (*ScopedDir, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0700); err != nil {
			return nil, fmt.Errorf("failed to create work root: %w", err)
		}
	}
	path, err := os.MkdirTemp(root, fmt.Sprintf("render-%s-*", jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to create scoped directory: %w", err)
	}
	return &ScopedDir{Path: path}, nil
}

// Release removes the directory and everything in it.
func (d *ScopedDir) Release() error {
	if d == nil || d.Path == "" {
		return nil
	}
	return os.RemoveAll(d.Path)
}
