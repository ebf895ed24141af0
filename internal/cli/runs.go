package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/ir"
)

var runsCmd = &cobra.Command{
	Use:   "runs [dir]",
	Short: "List recorded runs",
	RunE:  runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveManifest(args)
	if err != nil {
		return err
	}

	runs, err := openStore(wd).List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-12s %-20s %s\n", "RUN", "MANIFEST", "STATE", "STARTED", "STEPS")
	for _, run := range runs {
		counts := run.Counts()
		fmt.Printf("%-38s %-20s %-12s %-20s %d ok / %d skipped / %d failed\n",
			run.ID, run.Manifest, run.State,
			run.StartedAt.Format(time.DateTime),
			counts[ir.StateSucceeded], counts[ir.StateSkipped], counts[ir.StateFailed])
	}
	return nil
}
