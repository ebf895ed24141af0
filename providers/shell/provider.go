// Package shell runs step commands directly on the host. It is the default
// step kind: package managers, service managers, vendor installers and
// certificate tooling are all reached this way.
package shell

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
	return p.exec.Run(ctx, runner.Spec{
		Label:         opts.Label,
		Program:       cmd.Program,
		Args:          cmd.Args,
		Dir:           cmd.Dir,
		Env:           runner.MergeEnv(opts.Env, cmd.Env),
		Timeout:       opts.Timeout,
		Quiet:         opts.Quiet,
		RedactEnvKeys: opts.RedactEnvKeys,
	})
}
