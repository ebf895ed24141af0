package ir

// Manifest is the top-level step manifest.
type Manifest struct {
	Name string `pkl:"name"`

	// RequireRoot refuses to start a run unless the process is privileged.
	RequireRoot bool `pkl:"requireRoot"`

	// Secrets names environment variables resolved at run time, injected
	// into step environments and always redacted from logs. Secret values
	// are never written to the progress store.
	Secrets []string `pkl:"secrets"`

	// Endpoints are printed in the completion summary (e.g. console URL).
	Endpoints map[string]string `pkl:"endpoints"`

	Steps []*Step `pkl:"steps"`
}
