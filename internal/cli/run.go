package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/engine"
	"github.com/provisor-io/provisor/internal/eval"
	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/logging"
	"github.com/provisor-io/provisor/internal/platform"
	"github.com/provisor-io/provisor/internal/provider"
)

var (
	runID          string
	runResume      bool
	runAutoApprove bool
	runProperties  map[string]string
)

var runCmd = &cobra.Command{
	Use:   "run [manifest]",
	Short: "Execute a provisioning manifest",
	Long: `Executes the steps of a provisioning manifest in dependency order.

Every step's idempotency check runs before its action, so re-running a
manifest against a partially provisioned host only performs the work
that is still missing. Use --resume with --run-id to continue a run
that crashed or was interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Name the run, or identify the run to resume")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume a previously recorded run (requires --run-id)")
	runCmd.Flags().BoolVarP(&runAutoApprove, "yes", "y", false, "Skip interactive approval of the step plan")
	runCmd.Flags().StringToStringVarP(&runProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runRun(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveManifest(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if runResume && runID == "" {
		return fmt.Errorf("--resume requires --run-id")
	}

	if err := logging.Init(logLevel, runLogPath(wd)); err != nil {
		return err
	}
	logging.Info("log file", "path", logging.Path())

	facts := platform.Collect()

	fmt.Print("Loading manifest... ")
	evaluator := eval.NewEvaluator(wd)
	manifest, err := evaluator.LoadManifest(ctx, entryPoint, mergeProperties(facts.Properties(), runProperties))
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load manifest: %w", err)
	}
	fmt.Println("OK")

	if manifest.RequireRoot && !facts.Privileged {
		return fmt.Errorf("manifest %s requires root privileges; re-run with sudo", manifest.Name)
	}

	env, secretKeys, err := resolveSecrets(manifest, facts)
	if err != nil {
		return err
	}

	graph := engine.NewRegistry()
	if err := graph.Load(engine.ExpandSteps(manifest.Steps)); err != nil {
		return err
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return err
	}

	fmt.Printf("\nProvisor will execute %d steps:\n", len(order))
	for _, name := range order {
		step := graph.Get(name)
		line := fmt.Sprintf("  %s", name)
		if step.Description != "" {
			line += fmt.Sprintf("  (%s)", step.Description)
		}
		fmt.Println(line)
	}

	if !runAutoApprove {
		fmt.Print("\nDo you want to proceed? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Run cancelled.")
			return nil
		}
	}
	fmt.Println()

	orch := engine.NewOrchestrator(provider.NewRegistry(), openStore(wd))
	run, err := orch.Execute(ctx, graph, manifest.Name, engine.Options{
		RunID:      runID,
		Resume:     runResume,
		Env:        env,
		SecretKeys: secretKeys,
	})
	if err != nil {
		_ = writeAuditLog(wd, AuditEntry{Operation: "run", Manifest: manifest.Name, Error: err.Error()})
		return err
	}

	_ = writeAuditLog(wd, AuditEntry{
		Operation: "run",
		RunID:     run.ID,
		Manifest:  manifest.Name,
		Summary:   summaryCounts(run),
	})

	renderRunSummary(run, manifest.Endpoints)

	if run.State == ir.RunAborted {
		failed := failedSteps(run)
		if len(failed) > 0 {
			return fmt.Errorf("run aborted: step(s) %s failed; inspect %s and re-run with --resume --run-id %s",
				strings.Join(failed, ", "), logging.Path(), run.ID)
		}
		return fmt.Errorf("run aborted; re-run with --resume --run-id %s", run.ID)
	}
	return nil
}

func mergeProperties(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// resolveSecrets builds the run environment: platform facts plus the
// secrets the manifest declares, read from the process environment.
// Secret values never touch the manifest, the progress store, or logs.
func resolveSecrets(manifest *ir.Manifest, facts *platform.Facts) (map[string]string, []string, error) {
	env := facts.Env()

	var missing []string
	for _, name := range manifest.Secrets {
		value := os.Getenv(name)
		if value == "" {
			missing = append(missing, name)
			continue
		}
		env[name] = value
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("missing required secrets in environment: %s", strings.Join(missing, ", "))
	}
	return env, manifest.Secrets, nil
}

func summaryCounts(run *ir.Run) map[string]int {
	counts := make(map[string]int)
	for state, n := range run.Counts() {
		if n > 0 {
			counts[string(state)] = n
		}
	}
	return counts
}
