package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/baton/internal/wire"
)

// AttachCmd returns the attach command
func AttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Attach to the tmux session of a detached run",
		Long: `Attach to the tmux session a detached run is executing in. The
session name comes from .baton/config.json (default "baton").

Detach again with Ctrl+b then d; the run keeps going.

Examples:
  baton attach`,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := wire.TMuxAdapter()
			if err != nil {
				return err
			}

			session := wire.ProjectConfig().Session
			if !adapter.SessionExists(context.Background(), session) {
				return fmt.Errorf("no session named %s; start one with 'baton run --detach'", session)
			}

			tmuxPath, err := exec.LookPath("tmux")
			if err != nil {
				return fmt.Errorf("tmux not found in PATH: %w", err)
			}

			// Replace the current process with tmux attach so the user
			// lands directly in the session.
			execArgs := []string{"tmux", "attach", "-t", session}
			if err := syscall.Exec(tmuxPath, execArgs, os.Environ()); err != nil {
				return fmt.Errorf("failed to exec tmux attach: %w", err)
			}

			// This line never executes if exec succeeds
			return nil
		},
	}

	return cmd
}

// KillCmd returns the kill command
func KillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill",
		Short: "Kill the tmux session of a detached run",
		Long: `Kill the tmux session a detached run is executing in, terminating the
engine and its workers. The interrupted run can be picked up again with
'baton resume'.

Examples:
  baton kill`,
		RunE: func(cmd *cobra.Command, args []string) error {
			adapter, err := wire.TMuxAdapter()
			if err != nil {
				return err
			}

			session := wire.ProjectConfig().Session
			if !adapter.SessionExists(context.Background(), session) {
				return fmt.Errorf("no session named %s", session)
			}
			if err := adapter.KillSession(context.Background(), session); err != nil {
				return fmt.Errorf("failed to kill session %s: %w", session, err)
			}

			fmt.Printf("Killed session %s. Pick the run back up with 'baton resume'.\n", session)
			return nil
		},
	}

	return cmd
}
