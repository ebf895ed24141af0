package engine

import (
	"fmt"
	"strings"
)

// Definition errors are programming errors in the orchestration definition.
// They are always fatal, surface before any step executes, and are never
// retried.

type DuplicateStepError struct {
	Name string
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("duplicate step %q", e.Name)
}

type UnknownDependencyError struct {
	Step       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("step %q depends on unknown step %q", e.Step, e.Dependency)
}

type CycleDetectedError struct {
	Steps []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving steps: %s", strings.Join(e.Steps, ", "))
}
