package engine

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/runner"
)

// DefaultTimeout is the default per-attempt wall-clock budget.
const DefaultTimeout = 30 * time.Minute

// DefaultMaxAttempts bounds retries of transiently failing steps.
const DefaultMaxAttempts = 3

// RetryPolicy defines how many attempts a step gets and how failures are
// classified as transient.
type RetryPolicy struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	MaxDelay           time.Duration
	TransientPatterns  []string
	TransientExitCodes []int
}

// DefaultRetryPolicy returns a sensible default.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

// PolicyFor builds the effective policy for a step, falling back to the
// defaults for anything the manifest leaves unset.
func PolicyFor(step *ir.Step) *RetryPolicy {
	policy := DefaultRetryPolicy()
	spec := step.Retry
	if spec == nil {
		return policy
	}
	if spec.MaxAttempts > 0 {
		policy.MaxAttempts = spec.MaxAttempts
	}
	if d, err := time.ParseDuration(spec.BaseDelay); err == nil && d > 0 {
		policy.BaseDelay = d
	}
	if d, err := time.ParseDuration(spec.MaxDelay); err == nil && d > 0 {
		policy.MaxDelay = d
	}
	policy.TransientPatterns = spec.TransientPatterns
	policy.TransientExitCodes = spec.TransientExitCodes
	return policy
}

// StepTimeout parses the step's per-attempt timeout.
func StepTimeout(step *ir.Step) time.Duration {
	if d, err := time.ParseDuration(step.Timeout); err == nil && d > 0 {
		return d
	}
	return DefaultTimeout
}

// Backoff returns the exponential backoff with full jitter before the next
// attempt. attempt is 1-based.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	return time.Duration(rand.Float64() * backoff)
}

// defaultTransientPatterns match the service-not-ready and network blips a
// provisioning run routinely rides out.
var defaultTransientPatterns = []string{
	"connection refused",
	"connection reset",
	"temporary failure",
	"timeout",
	"timed out",
	"could not get lock",
	"resource temporarily unavailable",
	"service unavailable",
	"is another process using it",
	"network is unreachable",
	"tls handshake",
	"i/o timeout",
}

// IsTransient classifies a failed command result as retryable. Timeouts are
// transient until the attempt budget runs out.
func (p *RetryPolicy) IsTransient(res *runner.Result) bool {
	if res == nil {
		return false
	}
	if res.TimedOut {
		return true
	}
	for _, code := range p.TransientExitCodes {
		if res.ExitCode == code {
			return true
		}
	}
	output := strings.ToLower(res.Stderr + "\n" + res.Stdout)
	for _, pattern := range defaultTransientPatterns {
		if strings.Contains(output, pattern) {
			return true
		}
	}
	for _, pattern := range p.TransientPatterns {
		if pattern != "" && strings.Contains(output, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
