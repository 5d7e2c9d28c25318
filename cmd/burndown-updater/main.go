// Command burndown-updater is the replacement agent. The main app stages an
// update, spawns this binary, and exits; the agent waits for that exit, swaps
// the staged files into the install directory, records the outcome, and
// relaunches the app. It deliberately has no UI and no network access.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"burndown/internal/replace"
	"burndown/internal/updatelog"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// parsePlan turns the agent command line into a validated replacement plan.
func parsePlan(args []string, stderr io.Writer) (replace.Plan, error) {
	fs := flag.NewFlagSet("burndown-updater", flag.ContinueOnError)
	fs.SetOutput(stderr)

	stagedDir := fs.String("staged-dir", "", "directory holding the staged update payload")
	installDir := fs.String("install-dir", "", "installation directory to update")
	mainPID := fs.Int("main-pid", 0, "pid of the main process to wait for")
	backupSuffix := fs.String("backup-suffix", "", "suffix for backup copies of replaced files")

	if err := fs.Parse(args); err != nil {
		return replace.Plan{}, err
	}

	plan := replace.Plan{
		StagedDir:    *stagedDir,
		InstallDir:   *installDir,
		MainPID:      *mainPID,
		BackupSuffix: *backupSuffix,
	}
	if err := plan.Validate(); err != nil {
		fs.Usage()
		return replace.Plan{}, err
	}
	return plan, nil
}

func run(args []string, stderr io.Writer) int {
	plan, err := parsePlan(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "burndown-updater: %v\n", err)
		return 1
	}

	// Logging is best-effort; a read-only install directory leaves Logf a
	// no-op and the replacement still proceeds.
	if err := updatelog.Init(plan.InstallDir); err != nil {
		fmt.Fprintf(stderr, "burndown-updater: cannot open update log: %v\n", err)
	}
	defer updatelog.Close()

	updatelog.Logf("agent started: staged=%s install=%s pid=%d suffix=%s",
		plan.StagedDir, plan.InstallDir, plan.MainPID, plan.BackupSuffix)

	out := replace.Run(plan, replace.Options{
		Relaunch: true,
		Logf:     updatelog.Logf,
	})

	if out.Err != nil {
		updatelog.Logf("agent finished: %s: %v", out.Result, out.Err)
	} else {
		updatelog.Logf("agent finished: %s (replaced %d, relaunched %v)",
			out.Result, len(out.Replaced), out.Relaunched)
	}

	// The result file is how the next app launch learns what happened here.
	if err := replace.WriteResult(plan.InstallDir, out.Result); err != nil {
		updatelog.Logf("agent could not record result: %v", err)
		fmt.Fprintf(stderr, "burndown-updater: cannot record result: %v\n", err)
	}

	return out.ExitCode()
}
