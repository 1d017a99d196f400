package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/baton/internal/cli"
	"github.com/example/baton/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "baton",
		Short:   "baton - plan orchestrator for ephemeral worker sessions",
		Version: version.String(),
		Long: `baton drives multi-phase plans through short-lived worker sessions.
It audits the plan, runs phases in dependency order, verifies every
completion claim independently, and records enough state to resume an
interrupted run exactly where it stopped.`,
	}

	// Operator commands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.AuditCmd())
	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.ResumeCmd())
	rootCmd.AddCommand(cli.CancelCmd())
	rootCmd.AddCommand(cli.StatusCmd())
	rootCmd.AddCommand(cli.HistoryCmd())
	rootCmd.AddCommand(cli.AttachCmd())
	rootCmd.AddCommand(cli.KillCmd())

	// Worker-side signal commands
	rootCmd.AddCommand(cli.DoneCmd())
	rootCmd.AddCommand(cli.ProgressCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
