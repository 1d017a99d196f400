package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/baton/internal/config"
	"github.com/example/baton/internal/db"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	var planPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the baton project in the current directory",
		Long: `Create .baton/ in the current directory with the run database and a
config.json pinning project defaults.

Examples:
  baton init
  baton init --plan plans/master-plan.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := db.GetDBPath()
			if err != nil {
				return fmt.Errorf("failed to get database path: %w", err)
			}

			fmt.Printf("Initializing baton database at %s\n", dbPath)
			if _, err := db.GetDB(); err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			fmt.Println("✓ Database initialized successfully")

			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			if _, err := config.LoadConfig(cwd); err != nil {
				cfg := &config.Config{
					Version:    "1",
					PlanPath:   planPath,
					PolicyPath: config.DefaultPolicyPath,
					Session:    config.DefaultSession,
				}
				if err := config.SaveConfig(cwd, cfg); err != nil {
					return err
				}
				fmt.Println("✓ Config created at .baton/config.json")
			}

			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  baton audit plans/master-plan.md")
			fmt.Println("  baton run plans/master-plan.md")

			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "default master plan for run and audit")

	return cmd
}
