package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/baton/internal/models"
	"github.com/example/baton/internal/ports/primary"
	"github.com/example/baton/internal/wire"
)

// AuditCmd returns the audit command
func AuditCmd() *cobra.Command {
	var (
		asJSON   bool
		verbose  bool
		showPlan bool
	)

	cmd := &cobra.Command{
		Use:   "audit [master-plan]",
		Short: "Validate a plan without executing anything",
		Long: `Audit a master plan and every phase file it references.

The audit checks the same invariants the engine enforces before a run:
phase files exist and parse, dependencies resolve without cycles, and
each phase declares verification gates and a notes output.

Examples:
  baton audit plans/master-plan.md
  baton audit`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvePlanPath(args)
			if err != nil {
				return err
			}

			result, err := wire.AuditService().Audit(context.Background(), primary.AuditRequest{MasterPath: path})
			if err != nil {
				return fmt.Errorf("failed to audit plan: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printAuditResult(result, verbose)
			}

			if showPlan && result.Passed {
				master, phases, err := wire.AuditService().Load(context.Background(), primary.AuditRequest{MasterPath: path})
				if err != nil {
					return err
				}
				printParsedPlan(master, phases)
			}

			if !result.Passed {
				return fmt.Errorf("audit failed with %d error(s)", result.ErrorCount())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show fix suggestions for each issue")
	cmd.Flags().BoolVar(&showPlan, "show-plan", false, "Dump the parsed plan structure after a passing audit")

	return cmd
}

func printAuditResult(result *models.AuditResult, verbose bool) {
	fmt.Printf("Plan: %s\n", result.Summary.MasterPlan)
	fmt.Printf("Phases: %d found, %d valid, %d gates total\n",
		result.Summary.PhasesFound, result.Summary.PhasesValid, result.Summary.GatesTotal)
	fmt.Println()

	for _, issue := range result.Issues {
		var marker string
		switch issue.Severity {
		case models.SeverityError:
			marker = color.New(color.FgRed).Sprint("✗")
		case models.SeverityWarning:
			marker = color.New(color.FgYellow).Sprint("!")
		default:
			marker = color.New(color.FgBlue).Sprint("i")
		}
		fmt.Printf("%s [%s] %s\n", marker, issue.Code, issue.Message)
		if issue.Location != "" {
			fmt.Printf("    at %s\n", issue.Location)
		}
		if verbose && issue.Suggestion != "" {
			fmt.Printf("    hint: %s\n", issue.Suggestion)
		}
	}
	if len(result.Issues) > 0 {
		fmt.Println()
	}

	if result.Passed {
		fmt.Printf("%s Plan is valid\n", color.New(color.FgGreen).Sprint("✓"))
	} else {
		fmt.Printf("%s Plan is not runnable (%d errors, %d warnings)\n",
			color.New(color.FgRed).Sprint("✗"), result.Summary.Errors, result.Summary.Warnings)
	}
}

func printParsedPlan(master *models.PlanDocument, phases []models.Phase) {
	fmt.Println()
	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Plan:"), master.Name)
	for _, phase := range phases {
		fmt.Printf("\n%s %s (%s)\n", color.New(color.Bold).Sprint("Phase"), phase.ID, phase.Title)
		fmt.Printf("  file: %s\n", phase.Path)
		if len(phase.DependsOn) > 0 {
			fmt.Printf("  depends on: %s\n", strings.Join(phase.DependsOn, ", "))
		}
		for _, gate := range phase.Gates {
			fmt.Printf("  gate %s [%s]: %s\n", gate.Name, gate.Kind, gate.Command)
			if gate.Kind == models.GateOutputMatch {
				fmt.Printf("    must output: %q\n", gate.Criterion)
			}
		}
		for _, c := range phase.RequiredCollaborators {
			fmt.Printf("  collaborator: %s\n", c)
		}
		if phase.NotesOutput != "" {
			fmt.Printf("  notes: %s\n", phase.NotesOutput)
		}
	}
}
