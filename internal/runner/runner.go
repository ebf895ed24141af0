package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/provisor-io/provisor/internal/logging"
)

// ExitTimedOut is the sentinel exit code recorded when an attempt was
// forcibly terminated by its timeout.
const ExitTimedOut = -1

// waitDelay is how long Wait lingers after the cancel signal before the
// remaining process tree is killed outright.
const waitDelay = 5 * time.Second

// Spec describes one external invocation.
type Spec struct {
	// Label attributes streamed output lines to a step in the logs.
	Label   string
	Program string
	Args    []string
	Dir     string
	// Env is merged over the parent environment.
	Env map[string]string
	// Timeout bounds one attempt. Zero means the caller's context governs.
	Timeout time.Duration
	// Quiet drops streamed output to debug level (used for idempotency
	// checks, which are expected to fail routinely).
	Quiet bool
	// RedactEnvKeys lists additional env keys whose values are masked in
	// the logged command line.
	RedactEnvKeys []string
}

// Result is the captured outcome of one invocation. A nonzero exit code is
// a normal, inspectable result, never an error.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
}

// Runner executes external commands with live output streaming.
type Runner struct{}

func New() *Runner {
	return &Runner{}
}

// Run starts the command, streams stdout/stderr line-by-line to the logger
// while capturing both, and waits for exit. It returns an error only when
// the invocation itself is malformed (program missing, pipe setup failed);
// nonzero exits and timeouts are reported through the Result.
func (r *Runner) Run(ctx context.Context, spec Spec) (*Result, error) {
	if spec.Program == "" {
		return nil, fmt.Errorf("empty program in command spec")
	}

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.WaitDelay = waitDelay
	setProcAttr(cmd)
	cmd.Cancel = func() error {
		return terminate(cmd)
	}

	logLine := logging.Info
	if spec.Quiet {
		logLine = logging.Debug
	}
	logLine("exec", "step", spec.Label, "cmd", CommandLine(spec.Program, spec.Args))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Program, err)
	}

	// Two concurrent drains per invocation, one per stream, so neither pipe
	// backs up while the other is read.
	var wg sync.WaitGroup
	var outBuf, errBuf syncBuilder
	wg.Add(2)
	go func() {
		defer wg.Done()
		drain(stdout, &outBuf, func(line string) {
			logLine("  | "+line, "step", spec.Label)
		})
	}()
	go func() {
		defer wg.Done()
		drain(stderr, &errBuf, func(line string) {
			if spec.Quiet {
				logging.Debug("  ! "+line, "step", spec.Label)
			} else {
				logging.Warn("  ! "+line, "step", spec.Label)
			}
		})
	}()

	// Drains must finish before Wait closes the pipes.
	wg.Wait()
	waitErr := cmd.Wait()

	res := &Result{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		Duration: time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = ExitTimedOut
		return res, nil
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() != nil {
			// Cancelled mid-flight; the engine records the Cancelled kind.
			res.ExitCode = ExitTimedOut
			return res, nil
		}
		return res, fmt.Errorf("wait failed for %s: %w", spec.Program, waitErr)
	}

	res.ExitCode = 0
	return res, nil
}

func drain(r io.Reader, buf *syncBuilder, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteLine(line)
		emit(line)
	}
}

// syncBuilder accumulates captured lines; each stream has its own writer
// goroutine but String may race with late writes without it.
type syncBuilder struct {
	mu sync.Mutex
	b  []byte
}

func (s *syncBuilder) WriteLine(line string) {
	s.mu.Lock()
	s.b = append(s.b, line...)
	s.b = append(s.b, '\n')
	s.mu.Unlock()
}

func (s *syncBuilder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.b)
}
