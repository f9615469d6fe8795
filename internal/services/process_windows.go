//go:build windows

package services

import (
	"os/exec"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

const createNoWindow = 0x08000000

func configureDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | createNoWindow,
	}
}

func terminateProcess(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		// Already gone.
		return nil
	}
	return p.Kill()
}
