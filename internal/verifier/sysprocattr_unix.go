//go:build !windows

package verifier

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// apr1SysProcAttr puts the openssl child in its own process group so
// killProcessGroup can SIGKILL the whole tree on timeout.
func apr1SysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGKILL to the process group rooted at the
// openssl child, so a hung (or forking) openssl cannot leave orphans
// behind after a timeout.
func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = unix.Kill(-pgid, unix.SIGKILL)
}
