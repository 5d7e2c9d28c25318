package main

import (
	"context"
	"fmt"
	"io"

	"burndown/internal/history"
	"burndown/internal/install"
	"burndown/internal/replace"
	"burndown/internal/ui"
	"burndown/internal/updatelog"
)

const downloadSiteURL = "https://get.burndown.dev"

// warnIfInstallReadOnly prints a warning when the installation cannot accept
// updates. The application itself keeps running either way.
func warnIfInstallReadOnly(w io.Writer, ctx install.Context) bool {
	if !ctx.Frozen || ctx.Writable {
		return false
	}
	_, _ = fmt.Fprint(w, formatInstallNotWritableMessage(ctx.InstallDir))
	return true
}

func formatInstallNotWritableMessage(dir string) string {
	return fmt.Sprintf(`Warning: install directory is not writable

Updates cannot be installed from here.

Install directory:
  %[1]s

To update, either:
  - Fix permissions on %[1]s, or
  - Reinstall from %[2]s to a writable location

Continuing without self-update...

`, dir, downloadSiteURL)
}

// reconcileOutcome is what the previous session's replacement agent left for
// this launch to deal with.
type reconcileOutcome struct {
	// notice is shown to the user before the update flow; empty means the
	// previous session ended cleanly.
	notice string
	// blocking holds the flow on the notice until acknowledged. Set when a
	// failed rollback may have left the installation inconsistent.
	blocking bool
	// keepBackups suppresses the backup sweep so the user can restore the
	// .bak files by hand.
	keepBackups bool
}

// reconcileAgentResult inspects the agent result file and the pending-update
// row, records the finished attempt in history, and decides what the user
// needs to be told. Every failure here degrades to a log line; launch never
// stops because bookkeeping did.
func reconcileAgentResult(ctx context.Context, store *history.Store, installDir string) reconcileOutcome {
	rec, err := replace.ConsumeResult(installDir)
	if err != nil {
		updatelog.Logf("read agent result: %v", err)
	}

	var pending *history.Pending
	if store != nil {
		pending, err = store.TakePending(ctx)
		if err != nil {
			updatelog.Logf("take pending update: %v", err)
		}
	}

	if rec == nil && pending == nil {
		return reconcileOutcome{}
	}

	attempt := history.Attempt{Outcome: "error"}
	if pending != nil {
		attempt.StartedAt = pending.StagedAt
		attempt.FromVersion = pending.FromVersion
		attempt.ToVersion = pending.ToVersion
	}

	var out reconcileOutcome
	if rec != nil {
		attempt.Outcome = rec.Outcome
		if attempt.StartedAt.IsZero() {
			attempt.StartedAt = rec.RecordedAt
		}
		if rec.Failed() {
			attempt.Detail = fmt.Sprintf("agent exit code %d", rec.ExitCode)
		}
		out.notice = ui.FailureNotice(rec)
		out.blocking = rec.Outcome == replace.ResultRollbackFailed.String()
		out.keepBackups = out.blocking
		updatelog.Logf("previous agent result: %s (exit %d)", rec.Outcome, rec.ExitCode)
	} else {
		// An agent was spawned but never reported back.
		attempt.Detail = "replacement agent left no result"
		out.notice = ui.MissingResultNotice()
		updatelog.Logf("pending update %s -> %s left no agent result", attempt.FromVersion, attempt.ToVersion)
	}

	if store != nil {
		if err := store.RecordAttempt(ctx, attempt); err != nil {
			updatelog.Logf("record reconciled attempt: %v", err)
		}
	}
	return out
}
