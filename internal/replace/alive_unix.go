//go:build !windows

package replace

import (
	"errors"

	"golang.org/x/sys/unix"
)

// processRunning reports whether pid refers to a live process. Signal 0
// probes existence without delivering anything; EPERM still means the
// process exists.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
