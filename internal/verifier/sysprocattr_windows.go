//go:build windows

package verifier

import (
	"os/exec"
	"syscall"
)

// apr1SysProcAttr is a no-op on Windows, which has no process-group
// concept matching POSIX; a timed-out child is killed directly instead.
func apr1SysProcAttr() *syscall.SysProcAttr {
	return nil
}

// killProcessGroup kills the child process directly; Windows has no
// POSIX process-group SIGKILL equivalent.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}
