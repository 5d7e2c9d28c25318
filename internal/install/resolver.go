// Package install resolves where the running application lives on disk and
// what that location permits. Resolution is best-effort: it never fails, it
// only leaves fields empty or false when the answer cannot be determined.
package install

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Seams for tests.
var (
	osExecutable = os.Executable
	evalSymlinks = filepath.EvalSymlinks
	userHomeDir  = os.UserHomeDir
)

// AppBinaryName returns the application executable name for this platform.
func AppBinaryName() string {
	if runtime.GOOS == "windows" {
		return "burndown.exe"
	}
	return "burndown"
}

// UpdaterBinaryName returns the replacement agent executable name.
func UpdaterBinaryName() string {
	if runtime.GOOS == "windows" {
		return "burndown-updater.exe"
	}
	return "burndown-updater"
}

// Context describes the resolved installation.
type Context struct {
	// ExecutablePath is the symlink-resolved path of the running binary.
	ExecutablePath string
	// InstallDir is the directory containing the executable.
	InstallDir string
	// DataDir holds mutable state: <install-dir>/data for portable
	// installs, ~/.burndown otherwise.
	DataDir string
	// UpdaterPath is where the replacement agent is expected to live.
	UpdaterPath string
	// Frozen is false for source builds (go run, test binaries), which
	// never self-update.
	Frozen bool
	// Portable reports whether a data directory sits beside the binary.
	Portable bool
	// Writable reports whether the install directory accepts writes.
	Writable bool
}

// Resolve inspects the running process and its surroundings. Errors along the
// way degrade the result instead of failing it.
func Resolve() Context {
	var ctx Context

	exe, err := osExecutable()
	if err != nil {
		return ctx
	}
	if resolved, err := evalSymlinks(exe); err == nil {
		exe = resolved
	}

	ctx.ExecutablePath = exe
	ctx.InstallDir = filepath.Dir(exe)
	ctx.UpdaterPath = filepath.Join(ctx.InstallDir, UpdaterBinaryName())
	ctx.Frozen = isFrozen(exe)
	ctx.Portable = dirExists(filepath.Join(ctx.InstallDir, "data"))
	ctx.Writable = CheckWritable(ctx.InstallDir) == nil

	if ctx.Portable {
		ctx.DataDir = filepath.Join(ctx.InstallDir, "data")
	} else if home, err := userHomeDir(); err == nil {
		ctx.DataDir = filepath.Join(home, ".burndown")
	}

	return ctx
}

// isFrozen reports whether the executable looks like a packaged release
// rather than a go-build artifact or a test binary.
func isFrozen(exePath string) bool {
	if strings.Contains(exePath, "go-build") {
		return false
	}
	base := filepath.Base(exePath)
	if strings.HasSuffix(base, ".test") || strings.HasSuffix(base, ".test.exe") {
		return false
	}
	return true
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CheckWritable probes dir by creating and removing a scratch file.
func CheckWritable(dir string) error {
	probe := filepath.Join(dir, ".burndown-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return err
	}
	_ = f.Close()
	return os.Remove(probe)
}
