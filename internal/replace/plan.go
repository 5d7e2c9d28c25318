// Package replace implements the file replacement the updater agent performs
// after the main process exits: back up, copy staged files in, roll back on
// failure, and relaunch. The host only builds the Plan and starts the agent;
// everything else runs in the second process.
package replace

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Plan carries the four arguments the agent is invoked with.
type Plan struct {
	// StagedDir holds the verified update payload.
	StagedDir string
	// InstallDir is the directory whose files get replaced.
	InstallDir string
	// MainPID is the host process the agent waits on before touching files.
	MainPID int
	// BackupSuffix is appended to each overwritten file's name, after a dot.
	BackupSuffix string
}

// Args renders the agent command line for the plan.
func (p Plan) Args() []string {
	return []string{
		"--staged-dir", p.StagedDir,
		"--install-dir", p.InstallDir,
		"--main-pid", strconv.Itoa(p.MainPID),
		"--backup-suffix", p.BackupSuffix,
	}
}

// Validate rejects plans the agent could not act on safely.
func (p Plan) Validate() error {
	if p.StagedDir == "" {
		return fmt.Errorf("missing staged dir")
	}
	if p.InstallDir == "" {
		return fmt.Errorf("missing install dir")
	}
	if p.MainPID <= 0 {
		return fmt.Errorf("invalid main pid %d", p.MainPID)
	}
	if p.BackupSuffix == "" {
		return fmt.Errorf("missing backup suffix")
	}
	if strings.ContainsAny(p.BackupSuffix, `/\`) {
		return fmt.Errorf("backup suffix %q contains path separators", p.BackupSuffix)
	}
	return nil
}

// DefaultBackupSuffix returns a timestamped suffix, so concurrent or stale
// backups never collide.
func DefaultBackupSuffix() string {
	return "bak-" + time.Now().UTC().Format("20060102T150405Z")
}
