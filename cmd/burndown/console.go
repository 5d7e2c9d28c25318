package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"burndown/internal/history"
	"burndown/internal/ui"
	"burndown/internal/update"
)

const (
	// consoleSpinnerDelay keeps fast checks from flashing a spinner.
	consoleSpinnerDelay = 150 * time.Millisecond
	historyListLimit    = 20
	historyListWidth    = 80
)

// runConsoleCheck performs a single release check and prints the result,
// without entering the interactive flow. Exit code 1 means the check itself
// failed, not that an update exists.
func runConsoleCheck(stdout, stderr io.Writer, orch *update.Orchestrator) int {
	sp := newConsoleSpinner(stderr, consoleSpinnerDelay)
	sp.Message("Checking for updates...")
	prog, err := orch.Check(context.Background())
	sp.Stop()

	if err != nil {
		detail := prog.ErrorMessage
		if detail == "" {
			detail = err.Error()
		}
		_, _ = fmt.Fprintf(stderr, "Update check failed: %s\n", detail)
		return 1
	}

	if !prog.HasUpdate() {
		current := prog.CurrentVersion
		if current == "" {
			current = "dev"
		}
		_, _ = fmt.Fprintf(stdout, "You're on the latest version (%s).\n", current)
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "Update available: %s → %s\n", prog.CurrentVersion, prog.AvailableVersion)
	if avail, ok := orch.Available(); ok && avail.Manifest != nil && !avail.Manifest.PublishedAt.IsZero() {
		_, _ = fmt.Fprintf(stdout, "Published %s\n", ui.FormatRelativeTime(avail.Manifest.PublishedAt))
	}
	_, _ = fmt.Fprintln(stdout, "Run burndown --update to install.")
	return 0
}

// runHistoryList prints the recent update attempts, newest first.
func runHistoryList(stdout, stderr io.Writer, store *history.Store) int {
	if store == nil {
		_, _ = fmt.Fprintln(stderr, "Update history is unavailable: no data directory resolved.")
		return 1
	}
	attempts, err := store.RecentAttempts(context.Background(), historyListLimit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error reading update history: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, ui.RenderHistory(attempts, historyListWidth))
	return 0
}
