package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/wire"
)

// StatusCmd returns the status command
func StatusCmd() *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the state of a run, phase by phase",
		Long: `Display the latest attempt of every phase in a run: status, attempt
number, session, cost, and the failure reason if there is one.

Without a run ID the most recent run is shown.

Examples:
  baton status
  baton status RUN-003`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}

			status, err := wire.RunService().Status(context.Background(), runID)
			if err != nil {
				return fmt.Errorf("failed to get run status: %w", err)
			}

			fmt.Printf("Run %s [%s]\n", status.RunID, colorStatus(status.Status))
			fmt.Printf("  Plan: %s\n", status.PlanPath)
			fmt.Printf("  Started: %s\n", status.CreatedAt)
			fmt.Println()

			if len(status.Phases) == 0 {
				fmt.Println("No phase attempts recorded yet.")
			} else {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "PHASE\tATTEMPT\tSTATUS\tCOST\tREASON")
				for _, line := range status.Phases {
					reason := line.FailureReason
					if reason == "" {
						reason = "-"
					}
					cost := "-"
					if line.TotalCostUSD > 0 {
						cost = fmt.Sprintf("$%.4f", line.TotalCostUSD)
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", line.PhaseID, line.Attempt, line.Status, cost, reason)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if tail > 0 {
				return printSessionTail(tail)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 0, "also show the last N lines of the detached session's pane")

	return cmd
}

// printSessionTail shows the end of the detached run's tmux pane, so a
// quick status check does not require attaching.
func printSessionTail(lines int) error {
	adapter, err := wire.TMuxAdapter()
	if err != nil {
		return err
	}

	session := wire.ProjectConfig().Session
	if !adapter.SessionExists(context.Background(), session) {
		return fmt.Errorf("no session named %s; start one with 'baton run --detach'", session)
	}

	pane, err := adapter.CapturePane(context.Background(), session, lines)
	if err != nil {
		return fmt.Errorf("failed to capture session %s: %w", session, err)
	}

	fmt.Println()
	fmt.Printf("Session %s (last %d lines):\n", session, lines)
	fmt.Print(pane)
	return nil
}

// HistoryCmd returns the history command
func HistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := wire.RunService().History(context.Background(), limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				fmt.Println()
				fmt.Println("Start your first run:")
				fmt.Println("  baton run plans/master-plan.md")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tPLAN\tSTARTED\tFINISHED")
			for _, run := range runs {
				finished := run.CompletedAt
				if finished == "" {
					finished = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", run.RunID, run.Status, run.PlanPath, run.CreatedAt, finished)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func colorStatus(status string) string {
	switch status {
	case models.RunStatusCompleted:
		return color.New(color.FgGreen).Sprint(status)
	case models.RunStatusRunning:
		return color.New(color.FgCyan).Sprint(status)
	case models.RunStatusCancelled:
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgRed).Sprint(status)
	}
}
