package ui

import (
	"fmt"

	"burndown/internal/replace"
)

// FailureNotice builds the banner shown when the previous run's replacement
// agent did not finish cleanly. Returns "" when there is nothing to report.
func FailureNotice(rec *replace.ResultRecord) string {
	if rec == nil || !rec.Failed() {
		return ""
	}

	head := "The previous update could not be completed."
	var body string
	switch rec.Outcome {
	case replace.ResultWaitTimeout.String():
		body = "The updater timed out waiting for the app to exit. Nothing was changed."
	case replace.ResultRolledBack.String():
		body = "Installation failed partway and the previous version was restored."
	case replace.ResultRollbackFailed.String():
		head = "The previous update failed and could not be fully rolled back."
		body = "The installation may be inconsistent.\n" +
			"Backups of the replaced files were kept next to them with a .bak- suffix;\n" +
			"restore them manually or reinstall from https://get.burndown.dev."
	default:
		body = fmt.Sprintf("The updater exited with status %d.", rec.ExitCode)
	}

	if !rec.RecordedAt.IsZero() {
		head += " (" + FormatRelativeTime(rec.RecordedAt) + ")"
	}
	return head + "\n" + body
}

// MissingResultNotice covers an agent that was started but never reported back.
func MissingResultNotice() string {
	return "The previous update may not have completed.\n" +
		"No result was reported by the updater. The app will re-check for updates."
}

// OutcomeBadge renders a colored label for an update attempt outcome.
func OutcomeBadge(outcome string) string {
	switch outcome {
	case "success", "up-to-date":
		return styleOutcomeGood.Render(outcome)
	case "rolled-back", "wait-timeout", "deferred":
		return styleOutcomeWarn.Render(outcome)
	case "rollback-failed", "error":
		return styleOutcomeBad.Render(outcome)
	default:
		return styleDim.Render(outcome)
	}
}
