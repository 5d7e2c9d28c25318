// Package updatelog provides the append-only update log shared by the host
// application and the replacement agent. Entries are written to
// <install_dir>/logs/update.log; the file is never truncated, so a single
// log carries the full history of checks, state transitions, and agent steps
// across launches and across both processes.
package updatelog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// LogFileName is the name of the update log file.
	LogFileName = "update.log"
	// LogDirName is the directory under the install dir containing the log.
	LogDirName = "logs"
)

var (
	mu      sync.RWMutex
	logger  *log.Logger
	logFile *os.File
)

// Dir returns the log directory for the given install dir.
func Dir(installDir string) string {
	return filepath.Join(installDir, LogDirName)
}

// Path returns the update log path for the given install dir.
func Path(installDir string) string {
	return filepath.Join(Dir(installDir), LogFileName)
}

// Init opens the update log under the given install dir, creating the logs
// directory if needed. The file is opened in append mode. Before Init is
// called (or if it fails), Log and Logf are no-ops.
func Init(installDir string) error {
	mu.Lock()
	defer mu.Unlock()

	logPath := Path(installDir)

	//nolint:gosec // G301: Log directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	//nolint:gosec // G304: Log path is derived from the install dir, not user input
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open update log: %w", err)
	}
	logFile = f

	logger = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	logger.Printf("=== session started pid=%d at %s ===", os.Getpid(), time.Now().Format(time.RFC3339))

	return nil
}

// Close closes the update log file if open.
// Safe to call even if Init was never called.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	logger = nil
}

// Log writes an update log entry.
// Arguments are handled in the manner of fmt.Print.
func Log(v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if logger == nil {
		return
	}
	logger.Print(v...)
}

// Logf writes a formatted update log entry.
// Arguments are handled in the manner of fmt.Printf.
func Logf(format string, v ...any) {
	mu.RLock()
	defer mu.RUnlock()

	if logger == nil {
		return
	}
	logger.Printf(format, v...)
}

// Initialized reports whether the log is open for writing.
func Initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return logger != nil
}
