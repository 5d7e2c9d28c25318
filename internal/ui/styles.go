package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

// Colors - a nice purple/magenta theme
var (
	cPrimary = lipgloss.Color("#7D56F4")
	cAccent  = lipgloss.Color("#FF79C6")
	cDim     = lipgloss.Color("#6272A4")
	cText    = lipgloss.Color("#F8F8F2")
	cGreen   = lipgloss.Color("#50FA7B")
	cRed     = lipgloss.Color("#FF5555")
	cOrange  = lipgloss.Color("#FFB86C")
)

// Styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(cPrimary)

	styleSubtitle = lipgloss.NewStyle().
			Foreground(cDim).
			Italic(true)

	styleSpinner = lipgloss.NewStyle().
			Foreground(cAccent)

	styleStatus = lipgloss.NewStyle().
			Foreground(cText)

	styleDim = lipgloss.NewStyle().
			Foreground(cDim)

	styleVersion = lipgloss.NewStyle().
			Foreground(cGreen).
			Bold(true)

	styleError = lipgloss.NewStyle().
			Foreground(cRed)

	styleKeyPill = lipgloss.NewStyle().
			Background(cPrimary).
			Foreground(cText).
			Bold(true).
			Padding(0, 1)

	styleKeyDesc = lipgloss.NewStyle().
			Foreground(cDim)

	styleNoticeBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cRed).
			Foreground(cText).
			Padding(0, 1)

	styleCopyToast = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(cGreen).
			Foreground(cText).
			Padding(0, 1)

	styleOutcomeGood = lipgloss.NewStyle().
				Foreground(cGreen).
				Bold(true)

	styleOutcomeWarn = lipgloss.NewStyle().
				Foreground(cOrange).
				Bold(true)

	styleOutcomeBad = lipgloss.NewStyle().
			Foreground(cRed).
			Bold(true)

	styleContainer = lipgloss.NewStyle().
			Padding(1, 2)
)

// renderMarkdown renders release-note markdown for terminal display, falling
// back to plain word wrapping when glamour cannot produce output.
func renderMarkdown(input string, width int) string {
	fallback := func(s string) string {
		return wordwrap.String(s, width)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fallback(input)
	}
	out, err := renderer.Render(input)
	if err != nil {
		return fallback(input)
	}
	return strings.TrimSpace(out)
}
