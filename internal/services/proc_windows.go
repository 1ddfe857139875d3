//go:build windows

package services

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op on Windows; descendants are covered by the
// gopsutil child walk in killTree.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(pid int) {
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Kill()
	}
}
