package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/ir"
)

var statusRunID string

var statusCmd = &cobra.Command{
	Use:   "status [dir]",
	Short: "Show the recorded outcome of a run",
	Long: `Prints the per-step outcomes of the latest run, or of the run named
by --run-id, from the durable progress store.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusRunID, "run-id", "", "Show a specific run")
}

func runStatus(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveManifest(args)
	if err != nil {
		return err
	}

	run, err := loadPriorRun(wd, statusRunID)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Println(styleHeader.Render(fmt.Sprintf("Run %s", run.ID)))
	fmt.Printf("  manifest: %s\n", run.Manifest)
	fmt.Printf("  state:    %s\n", run.State)
	fmt.Printf("  started:  %s\n", run.StartedAt.Format(time.RFC3339))
	if run.EndedAt != nil {
		fmt.Printf("  ended:    %s (%s)\n", run.EndedAt.Format(time.RFC3339),
			run.EndedAt.Sub(run.StartedAt).Round(time.Second))
	}
	fmt.Println()

	for _, o := range run.Outcomes {
		label, style := outcomeSymbol(o)
		fmt.Printf("  %-28s %s", o.Step, style.Render(label))
		if o.Attempts > 0 {
			fmt.Printf("  attempts=%d", o.Attempts)
		}
		if o.StartedAt != nil && o.EndedAt != nil {
			fmt.Printf("  %s", o.EndedAt.Sub(*o.StartedAt).Round(time.Millisecond))
		}
		fmt.Println()
		if o.LastError != nil {
			fmt.Printf("      %s: %s\n", o.LastError.Kind, o.LastError.Message)
			if o.LastError.StderrTail != "" {
				fmt.Printf("      stderr: %s\n", o.LastError.StderrTail)
			}
		}
	}

	if run.State == ir.RunAborted {
		fmt.Printf("\nResume with: provisor run --resume --run-id %s\n", run.ID)
	}
	return nil
}
