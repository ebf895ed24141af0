// Package docker runs step commands inside a container. It backs the
// sandbox proof-of-concept manifests: an install can be rehearsed against a
// disposable image without touching the host.
package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/provisor-io/provisor/internal/ir"
	"github.com/provisor-io/provisor/internal/logging"
	"github.com/provisor-io/provisor/internal/runner"
)

type Provider struct {
	client *client.Client
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	p.client = cli
	return nil
}

// Run pulls the step's image, runs the command in a fresh container, waits
// for exit, and demultiplexes the captured logs into the result.
func (p *Provider) Run(ctx context.Context, cmd *ir.Command, opts runner.Options) (*runner.Result, error) {
	if cmd.Image == "" {
		return nil, fmt.Errorf("docker step requires an image")
	}
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()

	reader, err := p.client.ImagePull(ctx, cmd.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", cmd.Image, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	var command []string
	if cmd.Program != "" {
		command = append([]string{cmd.Program}, cmd.Args...)
	}
	env := runner.MergeEnv(opts.Env, cmd.Env)
	var envSlice []string
	for k, v := range env {
		envSlice = append(envSlice, k+"="+v)
	}

	cfg := &container.Config{
		Image:      cmd.Image,
		Cmd:        strslice.StrSlice(command),
		Env:        envSlice,
		WorkingDir: cmd.Dir,
	}
	hostCfg := &container.HostConfig{}

	if len(cmd.Ports) > 0 {
		exposed, bindings, err := nat.ParsePortSpecs(cmd.Ports)
		if err != nil {
			return nil, fmt.Errorf("invalid port spec: %w", err)
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	platform := parsePlatform(cmd.Platform)

	logging.Info("sandbox run", "step", opts.Label, "image", cmd.Image,
		"cmd", runner.CommandLine(cmd.Program, cmd.Args))

	created, err := p.client.ContainerCreate(ctx, cfg, hostCfg, nil, platform, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		// Removal uses a fresh context so a timed-out step still cleans up.
		rmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.client.ContainerRemove(rmCtx, created.ID, container.RemoveOptions{Force: true})
	}()

	if err := p.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	res := &runner.Result{}
	statusCh, errCh := p.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			res.ExitCode = runner.ExitTimedOut
			res.Duration = time.Since(start)
			return res, nil
		}
		return nil, fmt.Errorf("failed waiting for container: %w", err)
	case status := <-statusCh:
		res.ExitCode = int(status.StatusCode)
	}

	logs, err := p.client.ContainerLogs(ctx, created.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		var outBuf, errBuf bytes.Buffer
		stdcopy.StdCopy(&outBuf, &errBuf, logs)
		logs.Close()
		res.Stdout = outBuf.String()
		res.Stderr = errBuf.String()
		for _, line := range strings.Split(strings.TrimRight(res.Stdout, "\n"), "\n") {
			if line != "" {
				logging.Info("  | "+line, "step", opts.Label)
			}
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

func parsePlatform(spec string) *v1.Platform {
	if spec == "" {
		return nil
	}
	parts := strings.SplitN(spec, "/", 2)
	platform := &v1.Platform{OS: parts[0]}
	if len(parts) == 2 {
		platform.Architecture = parts[1]
	}
	return platform
}
