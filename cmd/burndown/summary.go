package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"burndown/internal/ui"
	"burndown/internal/update"

	"github.com/charmbracelet/lipgloss"
)

// ExitSummary holds data for the exit line printed after the update flow
// leaves the terminal.
type ExitSummary struct {
	Version  string
	Outcome  string
	Snapshot update.Progress
	Started  time.Time
}

// printExitSummary prints a formatted exit summary to the writer.
func printExitSummary(w io.Writer, summary ExitSummary) {
	appStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7D56F4"))

	dimStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6272A4"))

	lineStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F8F8F2"))

	versionStr := ""
	if summary.Version != "" {
		versionStr = dimStyle.Render(fmt.Sprintf(" v%s", strings.TrimPrefix(summary.Version, "v")))
	}
	sessionStr := ""
	if !summary.Started.IsZero() {
		sessionStr = dimStyle.Render(fmt.Sprintf(" • %s session", formatDuration(time.Since(summary.Started))))
	}

	_, _ = fmt.Fprintln(w, appStyle.Render("Burndown")+versionStr+sessionStr)
	if line := outcomeLine(summary.Outcome, summary.Snapshot); line != "" {
		_, _ = fmt.Fprintln(w, lineStyle.Render(line))
	}
}

// outcomeLine maps a flow outcome onto a one-line closing message.
func outcomeLine(outcome string, snap update.Progress) string {
	switch outcome {
	case ui.OutcomeUpToDate:
		return "Up to date."
	case ui.OutcomeDeclined:
		return fmt.Sprintf("Update to %s declined.", snap.AvailableVersion)
	case ui.OutcomeSkipped:
		return fmt.Sprintf("Skipped %s. It won't be offered again.", snap.AvailableVersion)
	case ui.OutcomeCancelled:
		return "Update cancelled."
	case ui.OutcomeDeferred:
		return fmt.Sprintf("Update to %s deferred. It will be offered again next launch.", snap.AvailableVersion)
	case ui.OutcomeError:
		detail := strings.TrimSpace(snap.ErrorMessage)
		if detail == "" {
			detail = "unknown error"
		}
		return "Update failed: " + detail
	}
	return ""
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}
