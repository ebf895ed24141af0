// Package probe implements the readiness-check step kind: the command is
// expected to exit nonzero until a service comes up, so output stays at
// debug level and the engine's retry policy supplies the poll loop.
package probe

import (
	"context"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/runner"
)

type Provider struct {
	exec *runner.Runner
}

func New() *Provider {
	return &Provider{exec: runner.New()}
}

func (p *Provider) Run(ctx context.Context, cmd *ir.Command, opts runner.Options) (*runner.Result, error) {
	opts.Quiet = true
	return p.exec.Run(ctx, runner.Spec{
		Label:         opts.Label,
		Program:       cmd.Program,
		Args:          cmd.Args,
		Dir:           cmd.Dir,
		Env:           runner.MergeEnv(opts.Env, cmd.Env),
		Timeout:       opts.Timeout,
		Quiet:         true,
		RedactEnvKeys: opts.RedactEnvKeys,
	})
}
