package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/provisor-io/provisor/internal/engine"
	"github.com/provisor-io/provisor/internal/eval"
	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/platform"
)

var lintStrict bool

var lintCmd = &cobra.Command{
	Use:   "lint [manifest]",
	Short: "Check a manifest against security and hygiene rules",
	Long: `Evaluates the manifest and checks every step against built-in rules:

  - plaintext-credential: credentials passed as literal command arguments
  - pipe-to-shell:        downloads piped straight into a shell
  - insecure-download:    artifacts fetched over plain http://
  - world-writable:       chmod 777 style permission grants
  - missing-check:        steps without an idempotency check

Warnings do not fail the command unless --strict is set.`,
	RunE: runLint,
}

func init() {
	lintCmd.Flags().BoolVar(&lintStrict, "strict", false, "Treat warnings as errors")
}

type lintFinding struct {
	Rule     string
	Severity string // "error" or "warning"
	Step     string
	Message  string
}

var (
	credentialArg = regexp.MustCompile(`(?i)\b(password|passwd|secret|token|passphrase|api[-_]?key)\s*=\s*[^$\s'"]+`)
	insecureURL   = regexp.MustCompile(`\bhttp://[^\s'"]+`)
	pipeToShell   = regexp.MustCompile(`(curl|wget)\b[^|]*\|\s*(sudo\s+)?(ba)?sh\b`)
	worldWritable = regexp.MustCompile(`chmod\s+(-R\s+)?0?777\b`)
)

func runLint(cmd *cobra.Command, args []string) error {
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

	var findings []lintFinding
	for _, step := range engine.ExpandSteps(manifest.Steps) {
		findings = append(findings, lintStep(step)...)
	}

	errors := 0
	warnings := 0
	for _, f := range findings {
		if f.Severity == "error" {
			errors++
			fmt.Printf("%s %s: %s (%s)\n", styleFail.Render("[ERROR]"), f.Step, f.Message, f.Rule)
		} else {
			warnings++
			fmt.Printf("%s %s: %s (%s)\n", styleBlocked.Render("[WARN]"), f.Step, f.Message, f.Rule)
		}
	}

	fmt.Printf("\nLint complete: %d error(s), %d warning(s)\n", errors, warnings)

	if errors > 0 {
		return fmt.Errorf("lint failed with %d error(s)", errors)
	}
	if lintStrict && warnings > 0 {
		return fmt.Errorf("lint failed with %d warning(s) (--strict)", warnings)
	}
	return nil
}

func lintStep(step *ir.Step) []lintFinding {
	var findings []lintFinding

	for _, cmdText := range stepCommandText(step) {
		if credentialArg.MatchString(cmdText) {
			findings = append(findings, lintFinding{
				Rule:     "plaintext-credential",
				Severity: "error",
				Step:     step.Name,
				Message:  "credential passed as a literal argument; declare it under secrets and reference the environment variable",
			})
		}
		if pipeToShell.MatchString(cmdText) {
			findings = append(findings, lintFinding{
				Rule:     "pipe-to-shell",
				Severity: "error",
				Step:     step.Name,
				Message:  "download piped directly into a shell; fetch to a file and verify it first",
			})
		}
		if insecureURL.MatchString(cmdText) {
			findings = append(findings, lintFinding{
				Rule:     "insecure-download",
				Severity: "warning",
				Step:     step.Name,
				Message:  "plain http:// URL; use https",
			})
		}
		if worldWritable.MatchString(cmdText) {
			findings = append(findings, lintFinding{
				Rule:     "world-writable",
				Severity: "warning",
				Step:     step.Name,
				Message:  "grants world-writable permissions",
			})
		}
	}

	if step.Check == nil && step.Kind != "probe" {
		findings = append(findings, lintFinding{
			Rule:     "missing-check",
			Severity: "warning",
			Step:     step.Name,
			Message:  "no idempotency check; the action runs on every invocation",
		})
	}
	return findings
}

func stepCommandText(step *ir.Step) []string {
	var texts []string
	for _, c := range []*ir.Command{step.Check, step.Action} {
		if c == nil {
			continue
		}
		texts = append(texts, strings.Join(append([]string{c.Program}, c.Args...), " "))
	}
	return texts
}
