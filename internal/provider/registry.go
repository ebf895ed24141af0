package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/runner"
	"github.com/provisor-io/provisor/providers/docker"
	"github.com/provisor-io/provisor/providers/probe"
	"github.com/provisor-io/provisor/providers/shell"
)

// Runner executes one command on behalf of a step kind.
type Runner interface {
	Run(ctx context.Context, cmd *ir.Command, opts runner.Options) (*runner.Result, error)
}

// Registry manages the lifecycle of step runners.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

func NewRegistry() *Registry {
	return &Registry{
		runners: make(map[string]Runner),
	}
}

// LoadRunner initializes and registers the runner for a step kind. Only
// built-in kinds exist; an empty kind means shell.
func (r *Registry) LoadRunner(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := normalize(kind)
	if _, exists := r.runners[name]; exists {
		return nil
	}

	var p Runner
	switch name {
	case "shell":
		p = shell.New()
	case "probe":
		p = probe.New()
	case "docker":
		p = docker.New()
	default:
		return fmt.Errorf("unknown step kind: %s", kind)
	}

	r.runners[name] = p
	return nil
}

// Get returns the registered runner for a step kind.
func (r *Registry) Get(kind string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.runners[normalize(kind)]
	if !ok {
		return nil, fmt.Errorf("step kind not loaded: %s", kind)
	}
	return p, nil
}

func normalize(kind string) string {
	if kind == "" {
		return "shell"
	}
	return kind
}
