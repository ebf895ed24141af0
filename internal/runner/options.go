package runner

import "time"

// Options carries the engine-side execution parameters a step runner needs
// beyond the command itself.
type Options struct {
	// Label attributes log output to a step.
	Label string
	// Env is the run-level environment (platform facts, resolved secrets)
	// merged under the command's own env.
	Env map[string]string
	// Timeout bounds this attempt.
	Timeout time.Duration
	// Quiet demotes streamed output to debug level.
	Quiet bool
	// RedactEnvKeys lists env names whose values must never be logged.
	RedactEnvKeys []string
}

// MergeEnv layers a command's own environment over the run-level one.
func MergeEnv(base, overlay map[string]string) map[string]string {
	if len(base) == 0 {
		return overlay
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
