package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/engine"
	"github.com/provisor-io/provisor/internal/eval"
	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/platform"
)

var (
	planRunID      string
	planProperties map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan [manifest]",
	Short: "Preview what a run would execute",
	Long: `Shows the steps a run would execute, in order, without side effects.

When recorded progress exists (the latest run, or the run named by
--run-id), steps that already succeeded are marked done. Idempotency
checks are not executed by plan; steps whose checks would pass are
still listed as pending.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planRunID, "run-id", "", "Compare against a specific recorded run")
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveManifest(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	facts := platform.Collect()
	evaluator := eval.NewEvaluator(wd)
	manifest, err := evaluator.LoadManifest(ctx, entryPoint, mergeProperties(facts.Properties(), planProperties))
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	graph := engine.NewRegistry()
	if err := graph.Load(engine.ExpandSteps(manifest.Steps)); err != nil {
		return err
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return err
	}

	prior, err := loadPriorRun(wd, planRunID)
	if err != nil {
		return err
	}

	done := 0
	fmt.Printf("Manifest %s: %d steps\n\n", manifest.Name, len(order))
	for _, name := range order {
		step := graph.Get(name)
		status := "pending"
		style := styleSkip
		if prior != nil {
			if o := prior.Outcome(name); o != nil && o.State == ir.StateSucceeded {
				status = "done"
				style = styleOK
				done++
			}
		}
		line := fmt.Sprintf("  %-28s %s", name, style.Render(status))
		if len(step.DependsOn) > 0 {
			line += fmt.Sprintf("  after: %v", step.DependsOn)
		}
		fmt.Println(line)
	}

	if prior != nil {
		fmt.Printf("\n%d of %d steps already succeeded in run %s.\n", done, len(order), prior.ID)
	} else {
		fmt.Println("\nNo recorded progress; a run would evaluate every step.")
	}
	return nil
}

func loadPriorRun(wd, id string) (*ir.Run, error) {
	store := openStore(wd)
	if id != "" {
		return store.Load(id)
	}
	return latestRun(store)
}
