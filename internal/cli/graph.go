package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/engine"
	"github.com/provisor-io/provisor/internal/eval"
	"github.com/provisor-io/provisor/internal/platform"
)

var graphCmd = &cobra.Command{
	Use:   "graph [manifest]",
	Short: "Output the step dependency graph in DOT format",
	Long: `Generates a visual representation of the step dependency graph in
Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  provisor graph | dot -Tpng > graph.png`,
	RunE: runGraphCmd,
}

func runGraphCmd(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveManifest(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	facts := platform.Collect()
	evaluator := eval.NewEvaluator(wd)
	manifest, err := evaluator.LoadManifest(ctx, entryPoint, facts.Properties())
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	graph := engine.NewRegistry()
	if err := graph.Load(engine.ExpandSteps(manifest.Steps)); err != nil {
		return err
	}

	fmt.Println("digraph provisor {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, step := range graph.Steps() {
		fmt.Printf("  %q;\n", step.Name)
	}
	fmt.Println()

	for _, step := range graph.Steps() {
		for _, dep := range step.DependsOn {
			fmt.Printf("  %q -> %q;\n", step.Name, dep)
		}
	}

	fmt.Println("}")
	return nil
}
