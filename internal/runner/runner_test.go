package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	res, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "sh",
		Args:    []string{"-c", "echo hello; echo world"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\nworld\n", res.Stdout)
	assert.Empty(t, res.Stderr)
	assert.False(t, res.TimedOut)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRun_NonzeroExitIsAResultNotAnError(t *testing.T) {
	res, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "sh",
		Args:    []string{"-c", "echo oops >&2; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "oops\n", res.Stderr)
}

func TestRun_MergesEnv(t *testing.T) {
	res, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "sh",
		Args:    []string{"-c", `printf %s "$INSTALL_DIR"`},
		Env:     map[string]string{"INSTALL_DIR": "/opt/protect"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "/opt/protect\n", res.Stdout)
}

func TestRun_Timeout(t *testing.T) {
	start := time.Now()
	res, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, ExitTimedOut, res.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_TimeoutKillsChildren(t *testing.T) {
	// The sleep runs as a child of the shell; process-group termination must
	// reach it, otherwise Wait blocks on the shared stdout pipe.
	start := time.Now()
	res, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "sh",
		Args:    []string{"-c", "sleep 30 & wait"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 15*time.Second)
}

func TestRun_EmptyProgram(t *testing.T) {
	_, err := New().Run(context.Background(), Spec{Label: "test"})
	require.Error(t, err)
}

func TestRun_MissingProgram(t *testing.T) {
	_, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "definitely-not-a-real-binary-4cf1",
	})
	require.Error(t, err)
}

func TestRun_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	res, err := New().Run(context.Background(), Spec{
		Label:   "test",
		Program: "pwd",
		Dir:     dir,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, dir)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res, err := New().Run(ctx, Spec{
		Label:   "test",
		Program: "sh",
		Args:    []string{"-c", "sleep 30"},
	})
	require.NoError(t, err)
	assert.Equal(t, ExitTimedOut, res.ExitCode)
}
