package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/wire"
)

// RunCmd returns the run command
func RunCmd() *cobra.Command {
	var only []string
	var detach bool

	cmd := &cobra.Command{
		Use:   "run [master-plan]",
		Short: "Audit a plan and execute it phase by phase",
		Long: `Start a new run: audit the plan, then drive every phase through a
worker session in dependency order. The command blocks until the run
reaches a terminal state; interrupt it with Ctrl+C and pick it up
later with 'baton resume'.

With --detach the run is started inside a tmux session instead, so it
survives the terminal. Use 'baton attach' to watch it.

Examples:
  baton run plans/master-plan.md
  baton run --only phase-3 --only phase-4
  baton run plans/master-plan.md --detach`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePlanPath(args)
			if err != nil {
				return err
			}

			if detach {
				return runDetached(path, only)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := wire.RunService().Start(ctx, primary.StartRunRequest{
				MasterPath: path,
				OnlyPhases: only,
			})
			if err != nil {
				return fmt.Errorf("failed to run plan: %w", err)
			}

			printRunResult(result)
			if result.Status != models.RunStatusCompleted {
				return fmt.Errorf("run %s ended %s", result.RunID, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&only, "only", nil, "run only the named phase (repeatable)")
	cmd.Flags().BoolVar(&detach, "detach", false, "start the run inside a tmux session")

	return cmd
}

// ResumeCmd returns the resume command
func ResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Resume an interrupted run",
		Long: `Resume a run from its recorded state. Completed phases are skipped,
blocked and failed phases keep their verdicts, and phases that were
mid-attempt when the engine stopped are scheduled again.

Without a run ID the most recent run is resumed.

Examples:
  baton resume
  baton resume RUN-003`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := wire.RunService().Resume(ctx, primary.ResumeRunRequest{RunID: runID})
			if err != nil {
				return fmt.Errorf("failed to resume run: %w", err)
			}

			printRunResult(result)
			if result.Status != models.RunStatusCompleted {
				return fmt.Errorf("run %s ended %s", result.RunID, result.Status)
			}
			return nil
		},
	}

	return cmd
}

// CancelCmd returns the cancel command
func CancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel [run-id]",
		Short: "Mark a running run as cancelled",
		Long: `Mark a run as cancelled so a fresh run can be started. Without a
run ID the most recent run is cancelled.

Examples:
  baton cancel
  baton cancel RUN-003`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) > 0 {
				runID = args[0]
			}

			if err := wire.RunService().Cancel(context.Background(), runID); err != nil {
				return fmt.Errorf("failed to cancel run: %w", err)
			}

			fmt.Printf("%s Run cancelled\n", color.New(color.FgGreen).Sprint("✓"))
			return nil
		},
	}

	return cmd
}

// runDetached hands the run to a tmux session and returns immediately.
func runDetached(planPath string, only []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	adapter, err := wire.TMuxAdapter()
	if err != nil {
		return err
	}

	cfg := wire.ProjectConfig()
	ctx := context.Background()
	if adapter.SessionExists(ctx, cfg.Session) {
		return fmt.Errorf("session %s already exists; attach with 'baton attach' or kill it first", cfg.Session)
	}

	command := fmt.Sprintf("baton run %s", planPath)
	for _, id := range only {
		command += " --only " + id
	}
	if err := adapter.CreateSession(ctx, cfg.Session, cwd, command); err != nil {
		return err
	}

	fmt.Printf("%s Run started in tmux session %s\n", color.New(color.FgGreen).Sprint("✓"), cfg.Session)
	fmt.Print(adapter.AttachInstructions(cfg.Session))
	return nil
}

func printRunResult(result *primary.RunResult) {
	fmt.Println()
	switch result.Status {
	case models.RunStatusCompleted:
		fmt.Printf("%s Run %s completed\n", color.New(color.FgGreen).Sprint("✓"), result.RunID)
	case models.RunStatusCancelled:
		fmt.Printf("%s Run %s cancelled\n", color.New(color.FgYellow).Sprint("!"), result.RunID)
	default:
		fmt.Printf("%s Run %s %s\n", color.New(color.FgRed).Sprint("✗"), result.RunID, result.Status)
	}

	fmt.Printf("  Phases: %d completed", len(result.Completed))
	if len(result.Blocked) > 0 {
		fmt.Printf(", %d blocked (%s)", len(result.Blocked), strings.Join(result.Blocked, ", "))
	}
	if len(result.Failed) > 0 {
		fmt.Printf(", %d failed (%s)", len(result.Failed), strings.Join(result.Failed, ", "))
	}
	fmt.Printf(" of %d\n", result.PhaseCount)
	fmt.Printf("  Worker sessions: %d\n", result.AttemptsRun)
	if result.TotalCost > 0 {
		fmt.Printf("  Total cost: $%.4f\n", result.TotalCost)
	}

	if len(result.Blocked) > 0 {
		fmt.Println()
		fmt.Println("Blocked phases need a human decision; see 'baton status' for reasons.")
	}
}

// resolvePlanPath picks the plan path from args or the project config.
func resolvePlanPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg := wire.ProjectConfig()
	if cfg.PlanPath != "" {
		return cfg.PlanPath, nil
	}
	return "", fmt.Errorf("no plan given and no plan_path in .baton/config.json")
}
