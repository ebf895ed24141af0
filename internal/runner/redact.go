package runner

import (
	"regexp"
	"strings"
)

const mask = "********"

// sensitiveKey matches argument and env names that carry credentials.
var sensitiveKey = regexp.MustCompile(`(?i)(password|passwd|secret|token|passphrase|credential|api[-_]?key|private[-_]?key)`)

// CommandLine renders a command for logging with sensitive values masked.
func CommandLine(program string, args []string) string {
	return program + " " + strings.Join(RedactArgs(args), " ")
}

// RedactArgs masks values of KEY=VALUE arguments whose key looks sensitive,
// and the value following a sensitive --flag.
func RedactArgs(args []string) []string {
	safe := make([]string, len(args))
	maskNext := false
	for i, arg := range args {
		if maskNext {
			safe[i] = mask
			maskNext = false
			continue
		}
		if eq := strings.Index(arg, "="); eq > 0 {
			if sensitiveKey.MatchString(arg[:eq]) {
				safe[i] = arg[:eq] + "=" + mask
				continue
			}
		} else if strings.HasPrefix(arg, "-") && sensitiveKey.MatchString(arg) {
			safe[i] = arg
			maskNext = true
			continue
		}
		safe[i] = arg
	}
	return safe
}

// SensitiveEnvKey reports whether an env var name should be masked, either
// by the builtin pattern or because it appears in extra.
func SensitiveEnvKey(name string, extra []string) bool {
	if sensitiveKey.MatchString(name) {
		return true
	}
	for _, k := range extra {
		if k == name {
			return true
		}
	}
	return false
}
