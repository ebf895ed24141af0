package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/logging"
	"github.com/provisor-io/provisor/internal/provider"
	"github.com/provisor-io/provisor/internal/runner"
	"github.com/provisor-io/provisor/internal/state"
)

// Orchestrator walks the step graph in topological order, one step at a
// time on one control thread. Steps mutate shared host state (package
// managers, service registries), so there is deliberately no cross-step
// concurrency.
type Orchestrator struct {
	registry *provider.Registry
	store    *state.Store
}

func NewOrchestrator(registry *provider.Registry, store *state.Store) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		store:    store,
	}
}

// Options configures one invocation of Execute.
type Options struct {
	// RunID resumes or names the run; empty generates a fresh ID.
	RunID string
	// Resume loads the persisted run and re-evaluates everything that did
	// not reach succeeded. A step recorded as running at crash time is
	// never trusted: its idempotency check runs again.
	Resume bool
	// Env is the run-level environment merged into every command:
	// platform facts and resolved secrets.
	Env map[string]string
	// SecretKeys names env entries whose values must never appear in logs.
	SecretKeys []string
}

// Execute runs the step graph to completion. Definition and store errors
// are returned; step failures are not. Failures are recorded in the
// returned Run, whose State tells the caller whether the run completed or
// aborted.
func (o *Orchestrator) Execute(ctx context.Context, graph *Registry, manifestName string, opts Options) (*ir.Run, error) {
	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	for _, step := range graph.Steps() {
		if err := o.registry.LoadRunner(step.Kind); err != nil {
			return nil, err
		}
	}

	run, err := o.prepareRun(graph, order, manifestName, opts)
	if err != nil {
		return nil, err
	}

	if err := o.store.Lock(run.ID); err != nil {
		return nil, err
	}
	defer o.store.Unlock(run.ID)

	if err := o.store.Save(run); err != nil {
		return nil, err
	}

	logging.Info("starting run", "run", run.ID, "manifest", manifestName, "steps", len(order))

	cancelled := false
	for _, name := range order {
		outcome := run.Outcome(name)
		if outcome.State == ir.StateSucceeded {
			logging.Debug("already succeeded, skipping", "step", name)
			continue
		}

		// Cancellation is honored at step boundaries; nothing new starts
		// after the operator interrupts.
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		step := graph.Get(name)
		logging.Step(name, "run", run.ID)

		if blocker := o.blockedBy(run, step); blocker != "" {
			o.markBlocked(run, outcome, blocker)
			continue
		}

		if o.checkSatisfied(ctx, run, step, outcome, opts) {
			continue
		}

		if err := o.executeStep(ctx, run, step, outcome, opts); err != nil {
			return nil, err
		}
		if outcome.State == ir.StateFailed && outcome.LastError != nil && outcome.LastError.Kind == ir.ErrCancelled {
			cancelled = true
			break
		}
	}

	now := time.Now().UTC()
	run.EndedAt = &now
	run.State = ir.RunCompleted
	if cancelled {
		run.State = ir.RunAborted
	}
	for _, outcome := range run.Outcomes {
		if outcome.State == ir.StateFailed {
			run.State = ir.RunAborted
			break
		}
	}
	if err := o.store.Save(run); err != nil {
		return nil, err
	}

	logging.Info("run finished", "run", run.ID, "state", run.State)
	return run, nil
}

// prepareRun loads or creates the run record and aligns its outcome list
// with the topological order.
func (o *Orchestrator) prepareRun(graph *Registry, order []string, manifestName string, opts Options) (*ir.Run, error) {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	var prior *ir.Run
	if opts.Resume {
		loaded, err := o.store.Load(runID)
		if err != nil {
			return nil, fmt.Errorf("cannot resume: %w", err)
		}
		prior = loaded
	} else if opts.RunID != "" {
		if _, err := o.store.Load(runID); err == nil {
			return nil, fmt.Errorf("run %s already recorded; use resume to continue it", runID)
		}
	}

	run := &ir.Run{
		ID:        runID,
		Manifest:  manifestName,
		State:     ir.RunInProgress,
		StartedAt: time.Now().UTC(),
	}
	if prior != nil {
		run.StartedAt = prior.StartedAt
	}

	for _, name := range order {
		outcome := &ir.StepOutcome{Step: name, State: ir.StatePending}
		if prior != nil {
			// Only succeeded survives a process boundary. A step left
			// running, failed, or skipped is re-evaluated from scratch.
			if p := prior.Outcome(name); p != nil && p.State == ir.StateSucceeded {
				outcome = p
			}
		}
		run.Outcomes = append(run.Outcomes, outcome)
	}
	return run, nil
}

// blockedBy returns the name of a failed or blocked dependency, or "".
func (o *Orchestrator) blockedBy(run *ir.Run, step *ir.Step) string {
	for _, dep := range step.DependsOn {
		outcome := run.Outcome(dep)
		if outcome == nil {
			continue
		}
		if outcome.Terminal() && !outcome.Resolved() {
			return dep
		}
	}
	return ""
}

func (o *Orchestrator) markBlocked(run *ir.Run, outcome *ir.StepOutcome, blocker string) {
	now := time.Now().UTC()
	outcome.State = ir.StateSkipped
	outcome.Reason = ir.SkipBlocked
	outcome.BlockedBy = blocker
	outcome.EndedAt = &now
	logging.Warn("step blocked", "step", outcome.Step, "blocked_by", blocker)
	o.persist(run, outcome)
}

// checkSatisfied evaluates the idempotency probe. It runs before the action
// and is what makes a full re-invocation safe after a crash or partial
// failure. Returns true when the step's effect is already present.
func (o *Orchestrator) checkSatisfied(ctx context.Context, run *ir.Run, step *ir.Step, outcome *ir.StepOutcome, opts Options) bool {
	if step.Check == nil || step.Kind == "probe" {
		return false
	}
	p, err := o.registry.Get(step.Kind)
	if err != nil {
		return false
	}

	res, err := p.Run(ctx, step.Check, runner.Options{
		Label:         step.Name,
		Env:           runner.MergeEnv(opts.Env, step.Env),
		Timeout:       StepTimeout(step),
		Quiet:         true,
		RedactEnvKeys: opts.SecretKeys,
	})
	if err != nil {
		logging.Warn("idempotency check could not run", "step", step.Name, "error", err)
		return false
	}
	if res.ExitCode != 0 {
		return false
	}

	now := time.Now().UTC()
	outcome.State = ir.StateSkipped
	outcome.Reason = ir.SkipSatisfied
	outcome.EndedAt = &now
	logging.Info("already satisfied, skipping", "step", step.Name)
	o.persist(run, outcome)
	return true
}

// executeStep drives the action through the retry loop. The idempotency
// check is not re-evaluated between attempts: the environment is assumed
// unchanged inside one retry loop.
func (o *Orchestrator) executeStep(ctx context.Context, run *ir.Run, step *ir.Step, outcome *ir.StepOutcome, opts Options) error {
	action := step.Action
	if action == nil && step.Kind == "probe" {
		action = step.Check
	}
	if action == nil {
		o.fail(run, outcome, &ir.StepError{
			Kind:    ir.ErrFatal,
			Message: "step has no action",
		})
		return nil
	}

	p, err := o.registry.Get(step.Kind)
	if err != nil {
		return err
	}

	policy := PolicyFor(step)
	timeout := StepTimeout(step)

	started := time.Now().UTC()
	outcome.State = ir.StateRunning
	outcome.StartedAt = &started
	outcome.Attempts = 0
	outcome.Reason = ""
	outcome.LastError = nil
	o.persist(run, outcome)

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		outcome.Attempts = attempt

		res, err := p.Run(ctx, action, runner.Options{
			Label:         step.Name,
			Env:           runner.MergeEnv(opts.Env, step.Env),
			Timeout:       timeout,
			RedactEnvKeys: opts.SecretKeys,
		})
		if ctx.Err() != nil {
			o.fail(run, outcome, &ir.StepError{
				Kind:    ir.ErrCancelled,
				Message: "cancelled by operator",
			})
			return nil
		}
		if err != nil {
			// Malformed invocation (program missing, client unavailable):
			// nothing to retry.
			o.fail(run, outcome, &ir.StepError{
				Kind:    ir.ErrFatal,
				Message: err.Error(),
			})
			return nil
		}

		if res.ExitCode == 0 {
			now := time.Now().UTC()
			outcome.State = ir.StateSucceeded
			outcome.EndedAt = &now
			outcome.LastError = nil
			logging.Info("step succeeded", "step", step.Name, "attempts", attempt, "duration", res.Duration.Round(time.Millisecond))
			o.persist(run, outcome)
			return nil
		}

		stepErr := classify(policy, res, attempt)
		if step.Kind == "probe" && stepErr.Kind == ir.ErrFatal {
			// A probe is expected to fail until the service comes up; its
			// retry budget is the poll loop.
			stepErr.Kind = ir.ErrTransient
		}
		retryable := stepErr.Kind == ir.ErrTransient || stepErr.Kind == ir.ErrTimeout

		if retryable && attempt < policy.MaxAttempts {
			delay := policy.Backoff(attempt)
			logging.Warn("step attempt failed, retrying",
				"step", step.Name, "attempt", attempt, "exit", res.ExitCode, "backoff", delay.Round(time.Millisecond))
			outcome.LastError = stepErr
			o.persist(run, outcome)
			select {
			case <-ctx.Done():
				o.fail(run, outcome, &ir.StepError{
					Kind:    ir.ErrCancelled,
					Message: "cancelled by operator",
				})
				return nil
			case <-time.After(delay):
			}
			continue
		}

		o.fail(run, outcome, stepErr)
		return nil
	}
	return nil
}

func (o *Orchestrator) fail(run *ir.Run, outcome *ir.StepOutcome, stepErr *ir.StepError) {
	now := time.Now().UTC()
	outcome.State = ir.StateFailed
	outcome.EndedAt = &now
	outcome.LastError = stepErr
	logging.Error("step failed",
		"step", outcome.Step, "attempts", outcome.Attempts, "kind", stepErr.Kind, "error", stepErr.Message)
	if stepErr.StderrTail != "" {
		logging.Error("stderr tail", "step", outcome.Step, "output", stepErr.StderrTail)
	}
	o.persist(run, outcome)
}

func (o *Orchestrator) persist(run *ir.Run, outcome *ir.StepOutcome) {
	if err := o.store.Append(run, outcome); err != nil {
		logging.Error("failed to persist step outcome", "step", outcome.Step, "error", err)
	}
}

func classify(policy *RetryPolicy, res *runner.Result, attempt int) *ir.StepError {
	stepErr := &ir.StepError{
		ExitCode:   res.ExitCode,
		StderrTail: tail(res.Stderr, 2048),
	}
	switch {
	case res.TimedOut:
		stepErr.Kind = ir.ErrTimeout
		stepErr.Message = fmt.Sprintf("attempt %d timed out", attempt)
	case policy.IsTransient(res):
		stepErr.Kind = ir.ErrTransient
		stepErr.Message = fmt.Sprintf("attempt %d exited with code %d (transient)", attempt, res.ExitCode)
	default:
		stepErr.Kind = ir.ErrFatal
		stepErr.Message = fmt.Sprintf("attempt %d exited with code %d", attempt, res.ExitCode)
	}
	return stepErr
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
