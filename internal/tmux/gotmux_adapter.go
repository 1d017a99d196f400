// Package tmux wraps the gotmux library so runs can live in a detached
// session an operator attaches to and walks away from.
package tmux

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/GianlucaP106/gotmux/gotmux"

	"github.com/example/baton/internal/ports/secondary"
)

// GotmuxAdapter implements the TMuxAdapter port on top of gotmux.
type GotmuxAdapter struct {
	tmux *gotmux.Tmux
}

// NewGotmuxAdapter creates a new gotmux adapter.
func NewGotmuxAdapter() (*GotmuxAdapter, error) {
	t, err := gotmux.DefaultTmux()
	if err != nil {
		return nil, fmt.Errorf("failed to create tmux client: %w", err)
	}
	return &GotmuxAdapter{tmux: t}, nil
}

// escapeShellCommand works around a gotmux quoting bug where ShellCommand is
// wrapped in single quotes (e.g. 'baton run'). The shell interprets that as a
// single token, so multi-word commands fail with "command not found" (status 127).
// By replacing spaces with ' ' (close-quote, space, open-quote), gotmux's wrapping
// produces 'baton' 'run' which the shell correctly parses as separate words.
func escapeShellCommand(cmd string) string {
	return strings.ReplaceAll(cmd, " ", "' '")
}

// SessionExists reports whether a session with the given name exists.
func (g *GotmuxAdapter) SessionExists(ctx context.Context, name string) bool {
	session, err := g.tmux.GetSessionByName(name)
	return err == nil && session != nil
}

// CreateSession creates a detached session running command in workDir.
// The session survives the creating terminal; the engine keeps driving
// the run inside it.
func (g *GotmuxAdapter) CreateSession(ctx context.Context, name, workDir, command string) error {
	_, err := g.tmux.NewSession(&gotmux.SessionOptions{
		Name:           name,
		StartDirectory: workDir,
		ShellCommand:   escapeShellCommand(command),
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// KillSession kills the named session.
func (g *GotmuxAdapter) KillSession(ctx context.Context, name string) error {
	session, err := g.tmux.GetSessionByName(name)
	if err != nil || session == nil {
		return fmt.Errorf("session %s not found", name)
	}
	if err := session.Kill(); err != nil {
		return fmt.Errorf("failed to kill session: %w", err)
	}
	return nil
}

// CapturePane returns the last lines of the session's active pane.
// gotmux has no capture-pane wrapper, so this shells out.
func (g *GotmuxAdapter) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-p", "-t", name, "-S", "-"+strconv.Itoa(lines))
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to capture pane: %w", err)
	}
	return string(output), nil
}

// AttachInstructions returns user-friendly instructions for attaching.
func (g *GotmuxAdapter) AttachInstructions(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attach to the run: tmux attach -t %s\n", name)
	b.WriteString("Detach again with Ctrl+b then d; the run keeps going.\n")
	return b.String()
}

// Ensure GotmuxAdapter implements the port.
var _ secondary.TMuxAdapter = (*GotmuxAdapter)(nil)
