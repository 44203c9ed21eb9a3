//go:build !windows

package worker

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the worker in its own process group so
// termination signals reach the whole tree (the worker forks interpreters).
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup asks the worker's process group to exit gracefully.
func terminateGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// killGroup force-terminates the worker's process group.
func killGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
