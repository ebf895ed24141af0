package ir

// Step is a single named unit of provisioning work. Steps are constructed
// when the manifest is evaluated and never mutated during a run.
type Step struct {
	Name        string `pkl:"name"`
	Description string `pkl:"description"`

	// Kind selects the runner: "shell" (default), "probe", or "docker".
	Kind string `pkl:"kind"`

	DependsOn []string `pkl:"dependsOn"`

	// Check is the idempotency probe: exit 0 means the step's effect is
	// already present and the action is skipped.
	Check *Command `pkl:"check"`

	// Action performs the work. Probe steps may omit it, in which case
	// Check doubles as the polled command.
	Action *Command `pkl:"action"`

	Retry *RetrySpec `pkl:"retry"`

	// Timeout is the wall-clock budget for one attempt, as a Go duration
	// string ("10m"). Empty means the engine default.
	Timeout string `pkl:"timeout"`

	// ForEach expands the step into one derived step per item, with
	// "${each.value}" substituted in the command fields.
	ForEach []string `pkl:"forEach"`

	// Env is merged into the command environment for both check and action.
	Env map[string]string `pkl:"env"`
}

// Command is one external invocation.
type Command struct {
	Program string            `pkl:"program"`
	Args    []string          `pkl:"args"`
	Dir     string            `pkl:"dir"`
	Env     map[string]string `pkl:"env"`

	// Docker runner fields.
	Image    string   `pkl:"image"`
	Ports    []string `pkl:"ports"`
	Platform string   `pkl:"platform"`
}

// RetrySpec is the manifest-level retry configuration for a step.
type RetrySpec struct {
	MaxAttempts int    `pkl:"maxAttempts"`
	BaseDelay   string `pkl:"baseDelay"`
	MaxDelay    string `pkl:"maxDelay"`

	// TransientPatterns extend the default substring classifier applied to
	// captured stderr/stdout.
	TransientPatterns []string `pkl:"transientPatterns"`

	// TransientExitCodes are exit codes classified as retryable.
	TransientExitCodes []int `pkl:"transientExitCodes"`
}
