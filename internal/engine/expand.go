package engine

import (
	"fmt"
	"strings"

	"github.com/provisor-io/provisor/internal/ir"
)

// ExpandSteps flattens forEach steps into one derived step per item, with
// "${each.value}" and "${each.index}" substituted in command fields.
// Dependencies on an expanded step are rewritten to depend on every derived
// step. Must run before the registry is loaded.
func ExpandSteps(steps []*ir.Step) []*ir.Step {
	expandedNames := make(map[string][]string)
	var expanded []*ir.Step

	for _, step := range steps {
		if len(step.ForEach) == 0 {
			expanded = append(expanded, step)
			continue
		}
		for i, item := range step.ForEach {
			clone := cloneStep(step)
			clone.Name = fmt.Sprintf("%s[%s]", step.Name, item)
			clone.ForEach = nil
			substituteStep(clone, map[string]string{
				"${each.value}": item,
				"${each.index}": fmt.Sprintf("%d", i),
			})
			expanded = append(expanded, clone)
			expandedNames[step.Name] = append(expandedNames[step.Name], clone.Name)
		}
	}

	for _, step := range expanded {
		var deps []string
		for _, dep := range step.DependsOn {
			if derived, ok := expandedNames[dep]; ok {
				deps = append(deps, derived...)
			} else {
				deps = append(deps, dep)
			}
		}
		step.DependsOn = deps
	}

	return expanded
}

func cloneStep(step *ir.Step) *ir.Step {
	clone := *step
	clone.DependsOn = append([]string{}, step.DependsOn...)
	clone.Check = cloneCommand(step.Check)
	clone.Action = cloneCommand(step.Action)
	clone.Env = cloneMap(step.Env)
	if step.Retry != nil {
		retry := *step.Retry
		retry.TransientPatterns = append([]string{}, step.Retry.TransientPatterns...)
		retry.TransientExitCodes = append([]int{}, step.Retry.TransientExitCodes...)
		clone.Retry = &retry
	}
	return &clone
}

func cloneCommand(cmd *ir.Command) *ir.Command {
	if cmd == nil {
		return nil
	}
	clone := *cmd
	clone.Args = append([]string{}, cmd.Args...)
	clone.Ports = append([]string{}, cmd.Ports...)
	clone.Env = cloneMap(cmd.Env)
	return &clone
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func substituteStep(step *ir.Step, replacements map[string]string) {
	step.Description = substitute(step.Description, replacements)
	substituteCommand(step.Check, replacements)
	substituteCommand(step.Action, replacements)
	for k, v := range step.Env {
		step.Env[k] = substitute(v, replacements)
	}
}

func substituteCommand(cmd *ir.Command, replacements map[string]string) {
	if cmd == nil {
		return
	}
	cmd.Program = substitute(cmd.Program, replacements)
	for i, arg := range cmd.Args {
		cmd.Args[i] = substitute(arg, replacements)
	}
	cmd.Dir = substitute(cmd.Dir, replacements)
	cmd.Image = substitute(cmd.Image, replacements)
	for k, v := range cmd.Env {
		cmd.Env[k] = substitute(v, replacements)
	}
}

func substitute(s string, replacements map[string]string) string {
	for old, repl := range replacements {
		s = strings.ReplaceAll(s, old, repl)
	}
	return s
}
