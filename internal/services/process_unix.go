//go:build !windows

package services

import (
	"errors"
	"os/exec"
	"syscall"
)

// configureDetached puts the child in its own process group so stop can signal
// the server together with anything it spawned.
func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}
}

func terminateProcess(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		if err2 := syscall.Kill(pid, syscall.SIGTERM); err2 != nil && !errors.Is(err2, syscall.ESRCH) {
			return err2
		}
	}
	return nil
}
