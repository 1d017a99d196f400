// Package secondary defines the secondary ports (driven adapters) for the application.
package secondary

import "context"

// TMuxAdapter defines the secondary port for the optional tmux surface:
// a long-lived session the engine runs in so an operator can detach and
// reattach while a run is in flight.
type TMuxAdapter interface {
	// SessionExists reports whether a session with the given name exists.
	SessionExists(ctx context.Context, name string) bool

	// CreateSession creates a detached session running command in workDir.
	CreateSession(ctx context.Context, name, workDir, command string) error

	// KillSession kills the named session.
	KillSession(ctx context.Context, name string) error

	// CapturePane returns the last lines of the session's active pane.
	CapturePane(ctx context.Context, name string, lines int) (string, error)

	// AttachInstructions returns the command a user runs to attach.
	AttachInstructions(name string) string
}
