package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/engine"
	"github.com/provisor-io/provisor/internal/eval"
	"github.com/provisor-io/provisor/internal/platform"
)

var validateProperties map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [manifest]",
	Short: "Validate a provisioning manifest",
	Long: `Evaluates the manifest and verifies the step graph: unique names,
known dependencies, and no dependency cycles. No step is executed.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveManifest(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	facts := platform.Collect()
	evaluator := eval.NewEvaluator(wd)
	manifest, err := evaluator.LoadManifest(ctx, entryPoint, mergeProperties(facts.Properties(), validateProperties))
	if err != nil {
		return fmt.Errorf("manifest evaluation failed: %w", err)
	}
	if manifest.Name == "" {
		return fmt.Errorf("manifest has no name")
	}
	if len(manifest.Steps) == 0 {
		return fmt.Errorf("manifest %s declares no steps", manifest.Name)
	}

	steps := engine.ExpandSteps(manifest.Steps)
	graph := engine.NewRegistry()
	if err := graph.Load(steps); err != nil {
		return err
	}
	if _, err := graph.TopologicalOrder(); err != nil {
		return err
	}

	for _, step := range steps {
		if step.Action == nil && step.Check == nil {
			return fmt.Errorf("step %s declares neither an action nor a check", step.Name)
		}
	}

	fmt.Printf("Manifest %s is valid (%d steps).\n", manifest.Name, len(steps))
	return nil
}
