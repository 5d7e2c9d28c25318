package replace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"burndown/internal/install"
)

// Error variables for replacement outcomes.
var (
	ErrWaitTimeout       = fmt.Errorf("timed out waiting for process exit")
	ErrReplacementFailed = fmt.Errorf("replacement failed")
	ErrRollbackFailed    = fmt.Errorf("rollback failed")
)

// Seams for tests.
var (
	processAlive = processRunning
	copyFileFn   = copyFile
)

const (
	// DefaultWaitTimeout bounds how long the agent waits for the host.
	DefaultWaitTimeout = 30 * time.Second
	// DefaultPollInterval is the host liveness polling cadence.
	DefaultPollInterval = 500 * time.Millisecond
)

// Options adjusts how Run behaves. Zero values take the defaults.
type Options struct {
	WaitTimeout  time.Duration
	PollInterval time.Duration
	// Relaunch starts the replaced application after a full success.
	Relaunch bool
	// Logf receives progress lines; nil discards them.
	Logf func(format string, args ...any)
}

func (o Options) withDefaults() Options {
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = DefaultWaitTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

func (o Options) logf(format string, args ...any) {
	if o.Logf != nil {
		o.Logf(format, args...)
	}
}

// Result classifies how a replacement run ended.
type Result int

const (
	// ResultSuccess means every staged file is in place.
	ResultSuccess Result = iota
	// ResultWaitTimeout means the host never exited; nothing was touched.
	ResultWaitTimeout
	// ResultRolledBack means the copy failed and the install directory was
	// restored to its pre-update content.
	ResultRolledBack
	// ResultRollbackFailed means the restore itself failed; the install
	// directory may be inconsistent and needs manual recovery.
	ResultRollbackFailed
)

// ExitCode maps the result onto the agent's process exit code.
func (r Result) ExitCode() int {
	switch r {
	case ResultSuccess:
		return 0
	case ResultWaitTimeout:
		return 1
	case ResultRolledBack:
		return 2
	}
	return 3
}

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultWaitTimeout:
		return "wait-timeout"
	case ResultRolledBack:
		return "rolled-back"
	case ResultRollbackFailed:
		return "rollback-failed"
	}
	return "unknown"
}

// Outcome reports what a Run did.
type Outcome struct {
	Result Result
	Err    error
	// BackedUp lists install files that were copied aside, relative paths.
	BackedUp []string
	// Replaced lists staged files that made it into the install directory.
	Replaced []string
	// Relaunched reports whether the application was started again.
	Relaunched bool
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	return o.Result.ExitCode()
}

// Run executes the replacement: wait for the host to exit, back up every
// file the payload overwrites, copy the staged files in, then clean up and
// optionally relaunch. Any copy failure restores the install directory to
// its original content before returning.
func Run(plan Plan, opts Options) Outcome {
	opts = opts.withDefaults()

	if !WaitForExit(plan.MainPID, opts.WaitTimeout, opts.PollInterval) {
		opts.logf("pid %d still running after %s, leaving install untouched", plan.MainPID, opts.WaitTimeout)
		return Outcome{
			Result: ResultWaitTimeout,
			Err:    fmt.Errorf("%w: pid %d after %s", ErrWaitTimeout, plan.MainPID, opts.WaitTimeout),
		}
	}
	opts.logf("pid %d exited, replacing files in %s", plan.MainPID, plan.InstallDir)

	files, err := stagedFiles(plan.StagedDir)
	if err == nil && len(files) == 0 {
		err = fmt.Errorf("staging directory %s is empty", plan.StagedDir)
	}
	if err != nil {
		// Nothing was backed up or copied, so the install is intact.
		return Outcome{
			Result: ResultRolledBack,
			Err:    fmt.Errorf("%w: %v", ErrReplacementFailed, err),
		}
	}

	var out Outcome

	// Backup phase. Originals stay untouched until every backup exists.
	for _, rel := range files {
		target := filepath.Join(plan.InstallDir, rel)
		if _, statErr := os.Stat(target); statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}
			removeBackups(plan, out.BackedUp)
			return Outcome{
				Result: ResultRolledBack,
				Err:    fmt.Errorf("%w: stat %s: %v", ErrReplacementFailed, rel, statErr),
			}
		}
		if err := copyFileFn(target, backupPath(plan, rel)); err != nil {
			removeBackups(plan, out.BackedUp)
			return Outcome{
				Result: ResultRolledBack,
				Err:    fmt.Errorf("%w: backup %s: %v", ErrReplacementFailed, rel, err),
			}
		}
		out.BackedUp = append(out.BackedUp, rel)
		opts.logf("backed up %s", rel)
	}

	backedUp := make(map[string]bool, len(out.BackedUp))
	for _, rel := range out.BackedUp {
		backedUp[rel] = true
	}

	// Copy phase. A failure here rolls back everything touched so far.
	for i, rel := range files {
		src := filepath.Join(plan.StagedDir, rel)
		dst := filepath.Join(plan.InstallDir, rel)
		if err := copyFileFn(src, dst); err != nil {
			copyErr := fmt.Errorf("%w: copy %s: %v", ErrReplacementFailed, rel, err)
			opts.logf("copy %s failed: %v, rolling back", rel, err)
			if rbErr := rollback(plan, files[:i+1], backedUp); rbErr != nil {
				opts.logf("rollback failed: %v", rbErr)
				return Outcome{
					Result:   ResultRollbackFailed,
					Err:      fmt.Errorf("%w: %v (after %v)", ErrRollbackFailed, rbErr, copyErr),
					BackedUp: out.BackedUp,
					Replaced: out.Replaced,
				}
			}
			opts.logf("rollback complete, install restored")
			return Outcome{
				Result:   ResultRolledBack,
				Err:      copyErr,
				BackedUp: out.BackedUp,
			}
		}
		out.Replaced = append(out.Replaced, rel)
		opts.logf("replaced %s", rel)
	}

	// Finalize. Cleanup problems are logged but do not fail the update.
	for _, rel := range out.BackedUp {
		if err := os.Remove(backupPath(plan, rel)); err != nil {
			opts.logf("remove backup %s: %v", rel, err)
		}
	}
	if err := os.RemoveAll(plan.StagedDir); err != nil {
		opts.logf("remove staging dir: %v", err)
	}

	out.Result = ResultSuccess
	if opts.Relaunch {
		out.Relaunched = relaunchApp(plan.InstallDir, opts)
	}
	return out
}

// WaitForExit polls until the process is gone or the timeout lapses. It
// checks immediately, so an already-exited host costs no wait at all.
func WaitForExit(pid int, timeout, poll time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !processAlive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}

// StartAgent launches the replacement agent detached from the host. The host
// must exit promptly afterwards so the agent's wait can succeed.
func StartAgent(updaterPath string, plan Plan) error {
	return spawnDetached(updaterPath, plan.Args(), plan.InstallDir)
}

// rollback restores every touched file: overwritten ones from their backups,
// freshly added ones by removal. Backup copies are dropped once the originals
// are back.
func rollback(plan Plan, attempted []string, backedUp map[string]bool) error {
	var firstErr error
	for _, rel := range attempted {
		dst := filepath.Join(plan.InstallDir, rel)
		if backedUp[rel] {
			if err := copyFileFn(backupPath(plan, rel), dst); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("restore %s: %v", rel, err)
			}
		} else if err := os.Remove(dst); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("remove %s: %v", rel, err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	for rel := range backedUp {
		_ = os.Remove(backupPath(plan, rel))
	}
	return nil
}

func relaunchApp(installDir string, opts Options) bool {
	appPath := filepath.Join(installDir, install.AppBinaryName())
	if _, err := os.Stat(appPath); err != nil {
		opts.logf("relaunch skipped: %v", err)
		return false
	}
	if err := spawnDetached(appPath, nil, installDir); err != nil {
		opts.logf("relaunch failed: %v", err)
		return false
	}
	opts.logf("relaunched %s", appPath)
	return true
}

func backupPath(plan Plan, rel string) string {
	return filepath.Join(plan.InstallDir, rel) + "." + plan.BackupSuffix
}

func removeBackups(plan Plan, backedUp []string) {
	for _, rel := range backedUp {
		_ = os.Remove(backupPath(plan, rel))
	}
}

// stagedFiles returns the relative paths of all regular files under dir.
func stagedFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// copyFile copies src to dst preserving the source permission bits. The
// destination directory is created as needed.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}

// Backup names always end with the DefaultBackupSuffix timestamp shape.
var backupNameRe = regexp.MustCompile(`\.bak-[0-9]{8}T[0-9]{6}Z$`)

// RemoveStaleBackups deletes leftover backup files under installDir. A prior
// run that rolled back by copying leaves its backups behind; the next launch
// sweeps them. Returns the number of files removed.
func RemoveStaleBackups(installDir string) int {
	removed := 0
	_ = filepath.Walk(installDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || !info.Mode().IsRegular() {
			return nil
		}
		if backupNameRe.MatchString(info.Name()) {
			if os.Remove(path) == nil {
				removed++
			}
		}
		return nil
	})
	return removed
}
