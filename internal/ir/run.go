package ir

import "time"

// StepState is the lifecycle state of one step within a run.
type StepState string

const (
	StatePending   StepState = "pending"
	StateRunning   StepState = "running"
	StateSucceeded StepState = "succeeded"
	StateFailed    StepState = "failed"
	StateSkipped   StepState = "skipped"
)

// SkipReason distinguishes the two non-fatal terminal skip variants.
type SkipReason string

const (
	// SkipSatisfied means the idempotency check found the effect present.
	SkipSatisfied SkipReason = "satisfied"
	// SkipBlocked means an upstream dependency failed; propagates
	// transitively to downstream steps.
	SkipBlocked SkipReason = "blocked"
)

// ErrorKind classifies a step failure.
type ErrorKind string

const (
	ErrTransient ErrorKind = "transient"
	ErrFatal     ErrorKind = "fatal"
	ErrTimeout   ErrorKind = "timeout"
	ErrCancelled ErrorKind = "cancelled"
)

// StepError summarizes why a step failed. Captured output is truncated to a
// tail; the full stream lives in the log file.
type StepError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	ExitCode   int       `json:"exitCode,omitempty"`
	StderrTail string    `json:"stderrTail,omitempty"`
}

func (e *StepError) Error() string {
	return e.Message
}

// StepOutcome is the durable per-step record. Persisted after every state
// transition.
type StepOutcome struct {
	Step      string     `json:"step"`
	State     StepState  `json:"state"`
	Reason    SkipReason `json:"reason,omitempty"`
	BlockedBy string     `json:"blockedBy,omitempty"`
	Attempts  int        `json:"attempts"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	LastError *StepError `json:"lastError,omitempty"`
}

// Terminal reports whether the outcome can no longer change within this run.
func (o *StepOutcome) Terminal() bool {
	switch o.State {
	case StateSucceeded, StateFailed, StateSkipped:
		return true
	}
	return false
}

// Resolved reports whether dependents of this step may execute.
func (o *StepOutcome) Resolved() bool {
	return o.State == StateSucceeded || (o.State == StateSkipped && o.Reason == SkipSatisfied)
}

// RunState is the overall state of one traversal of the step graph.
type RunState string

const (
	RunInProgress RunState = "in_progress"
	RunCompleted  RunState = "completed"
	RunAborted    RunState = "aborted"
)

// Run is one execution of the full step graph. The progress store is the
// sole durable owner of its serialized form between process invocations.
type Run struct {
	ID        string         `json:"id"`
	Manifest  string         `json:"manifest"`
	State     RunState       `json:"state"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
	Outcomes  []*StepOutcome `json:"outcomes"`
}

// Outcome returns the recorded outcome for a step name, or nil.
func (r *Run) Outcome(step string) *StepOutcome {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return o
		}
	}
	return nil
}

// Counts tallies outcomes by state for summary rendering.
func (r *Run) Counts() map[StepState]int {
	counts := make(map[StepState]int)
	for _, o := range r.Outcomes {
		counts[o.State]++
	}
	return counts
}
