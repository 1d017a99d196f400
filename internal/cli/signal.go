package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/wire"
)

// DoneCmd returns the done command. Workers run it to report a phase
// outcome; it only writes a spool file and never touches the database.
func DoneCmd() *cobra.Command {
	var runID, phaseID, status, reason string

	cmd := &cobra.Command{
		Use:   "done",
		Short: "Report a phase outcome from inside a worker session",
		Long: `Signal the engine that the current phase is finished. The status is
one of completed, blocked, or failed; blocked and failed require a
--reason the engine records verbatim.

Examples:
  baton done --run RUN-003 --phase phase-2 --status completed
  baton done --run RUN-003 --phase phase-2 --status blocked --reason "need prod credentials"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := wire.SignalService().Done(context.Background(), primary.DoneRequest{
				RunID:   runID,
				PhaseID: phaseID,
				Status:  status,
				Reason:  reason,
			})
			if err != nil {
				return fmt.Errorf("failed to signal: %w", err)
			}
			fmt.Printf("Signaled %s for %s\n", status, phaseID)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (required)")
	cmd.Flags().StringVar(&phaseID, "phase", "", "phase ID (required)")
	cmd.Flags().StringVar(&status, "status", "", "completed, blocked, or failed (required)")
	cmd.Flags().StringVar(&reason, "reason", "", "why the phase is blocked or failed")

	return cmd
}

// ProgressCmd returns the progress command. Progress reports are
// advisory heartbeats; they reset the engine's stall timer.
func ProgressCmd() *cobra.Command {
	var runID, phaseID, step string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Report an intermediate step from inside a worker session",
		Long: `Record a progress note for the phase's audit trail.

Examples:
  baton progress --run RUN-003 --phase phase-2 --step "schema migrated"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := wire.SignalService().Progress(context.Background(), primary.ProgressRequest{
				RunID:   runID,
				PhaseID: phaseID,
				Step:    step,
			})
			if err != nil {
				return fmt.Errorf("failed to signal: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (required)")
	cmd.Flags().StringVar(&phaseID, "phase", "", "phase ID (required)")
	cmd.Flags().StringVar(&step, "step", "", "what just happened (required)")

	return cmd
}
