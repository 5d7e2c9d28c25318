package ui

import (
	"strings"

	"burndown/internal/history"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// RenderHistory formats recent update attempts as aligned rows, newest first.
func RenderHistory(attempts []history.Attempt, width int) string {
	if len(attempts) == 0 {
		return styleDim.Render("No update activity recorded yet.")
	}

	timeCol := lipgloss.NewStyle().Foreground(cDim).Width(10)
	verCol := lipgloss.NewStyle().Foreground(cText).Width(22)

	lines := make([]string, 0, len(attempts))
	for _, a := range attempts {
		line := timeCol.Render(FormatRelativeTime(a.StartedAt)) +
			" " + verCol.Render(versionSpan(a.FromVersion, a.ToVersion)) +
			" " + OutcomeBadge(a.Outcome)
		if detail := strings.TrimSpace(a.Detail); detail != "" {
			room := width - ansi.StringWidth(line) - 1
			if txt := truncateDetail(detail, room); txt != "" {
				line += " " + styleDim.Render(txt)
			}
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func versionSpan(from, to string) string {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	switch {
	case from != "" && to != "" && from != to:
		return from + " → " + to
	case to != "":
		return to
	case from != "":
		return from
	default:
		return "-"
	}
}

func truncateDetail(detail string, max int) string {
	if len(detail) <= max {
		return detail
	}
	if max < 4 {
		return ""
	}
	return detail[:max-3] + "..."
}
