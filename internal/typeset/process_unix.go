//go:build !windows

package typeset

import (
	"os/exec"
	"syscall"
)

// setProcessGroup starts the command as the leader of a new process group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills a process and all its children by sending SIGKILL
// to the process group (negative PID).
func killProcessGroup(pid int) {
	// Best-effort; the group may already be gone.
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}
