// Package filesystem contains filesystem-based adapter implementations.
package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/baton/internal/ports/secondary"
)

// WorkspaceInspector implements secondary.WorkspaceInspector against the
// local filesystem. Relative paths resolve against the project root, the
// same base workers run in.
type WorkspaceInspector struct {
	baseDir string
}

// NewWorkspaceInspector creates a workspace inspector rooted at baseDir.
func NewWorkspaceInspector(baseDir string) *WorkspaceInspector {
	return &WorkspaceInspector{baseDir: baseDir}
}

// FileNonEmpty reports whether path exists, is a regular file, and has
// non-zero size. A missing file is not an error, just false.
func (w *WorkspaceInspector) FileNonEmpty(ctx context.Context, path string) (bool, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.baseDir, path)
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	return info.Size() > 0, nil
}

// Ensure WorkspaceInspector implements the interface
var _ secondary.WorkspaceInspector = (*WorkspaceInspector)(nil)
