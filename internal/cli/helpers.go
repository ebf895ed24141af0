package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/state"
)

const defaultEntryPoint = "main.pkl"

func provisorDir(wd string) string {
	return filepath.Join(wd, ".provisor")
}

func runStateDir(wd string) string {
	return filepath.Join(provisorDir(wd), "runs")
}

func runLogPath(wd string) string {
	return filepath.Join(provisorDir(wd), "logs",
		fmt.Sprintf("provisor-%s.log", time.Now().Format("20060102-150405")))
}

func openStore(wd string) *state.Store {
	return state.NewStore(runStateDir(wd))
}

// resolveManifest maps an optional positional argument to a working
// directory and manifest entry point, mirroring how every command accepts
// either a directory or a manifest file.
func resolveManifest(args []string) (wd string, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = defaultEntryPoint

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// latestRun returns the most recently started run, or nil.
func latestRun(store *state.Store) (*ir.Run, error) {
	runs, err := store.List()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}

var (
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleFail    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleSkip    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleHeader  = lipgloss.NewStyle().Bold(true)
)

// outcomeSymbol maps a step outcome to its summary glyph and style.
func outcomeSymbol(o *ir.StepOutcome) (string, lipgloss.Style) {
	switch o.State {
	case ir.StateSucceeded:
		return "ok", styleOK
	case ir.StateFailed:
		return "failed", styleFail
	case ir.StateSkipped:
		if o.Reason == ir.SkipBlocked {
			return "blocked", styleBlocked
		}
		return "satisfied", styleSkip
	case ir.StateRunning:
		return "running", styleBlocked
	default:
		return "pending", styleSkip
	}
}

// renderRunSummary prints the per-step outcome table and declared
// endpoints after a run.
func renderRunSummary(run *ir.Run, endpoints map[string]string) {
	fmt.Println()
	fmt.Println(styleHeader.Render(fmt.Sprintf("Run %s (%s): %s", run.ID, run.Manifest, run.State)))
	for _, o := range run.Outcomes {
		label, style := outcomeSymbol(o)
		line := fmt.Sprintf("  %-28s %s", o.Step, style.Render(label))
		if o.Attempts > 1 {
			line += fmt.Sprintf("  (attempts: %d)", o.Attempts)
		}
		if o.Reason == ir.SkipBlocked && o.BlockedBy != "" {
			line += fmt.Sprintf("  blocked by %s", o.BlockedBy)
		}
		if o.State == ir.StateFailed && o.LastError != nil {
			line += fmt.Sprintf("  %s", o.LastError.Message)
		}
		fmt.Println(line)
	}

	counts := run.Counts()
	fmt.Printf("\nSteps: %d succeeded, %d skipped, %d failed.\n",
		counts[ir.StateSucceeded], counts[ir.StateSkipped], counts[ir.StateFailed])

	if run.State == ir.RunCompleted && len(endpoints) > 0 {
		fmt.Println("\nEndpoints:")
		for name, url := range endpoints {
			fmt.Printf("  %s = %s\n", name, url)
		}
	}
}

// failedSteps lists failed step names for the final error report.
func failedSteps(run *ir.Run) []string {
	var failed []string
	for _, o := range run.Outcomes {
		if o.State == ir.StateFailed {
			failed = append(failed, o.Step)
		}
	}
	return failed
}
