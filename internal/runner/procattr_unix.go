//go:build !windows

package runner

import (
	"os/exec"
	"syscall"
)

// setProcAttr places the child in its own process group so a timeout can
// take down the whole tree, not just the immediate child.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	// Negative pid signals the process group. TERM first; Wait's delay
	// escalates to KILL for anything that ignores it.
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
