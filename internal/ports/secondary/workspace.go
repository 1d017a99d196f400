// Package secondary defines the secondary ports (driven adapters) for the application.
package secondary

import "context"

// WorkspaceInspector defines the secondary port for checking artifacts a
// worker claims to have produced.
type WorkspaceInspector interface {
	// FileNonEmpty reports whether path exists, is a regular file, and
	// has non-zero size.
	FileNonEmpty(ctx context.Context, path string) (bool, error)
}
