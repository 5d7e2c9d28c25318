//go:build !windows

package replace

import (
	"os/exec"
	"syscall"
)

// spawnDetached starts path in its own session so it survives the caller's
// exit and holds no terminal.
func spawnDetached(path string, args []string, dir string) error {
	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
