// Package ui renders the interactive update experience: the offer prompt,
// download progress, the agent handoff, and the update history view.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"burndown/internal/replace"
	"burndown/internal/update"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

// Controller is the slice of the update orchestrator the flow drives.
// *update.Orchestrator satisfies it.
type Controller interface {
	Check(ctx context.Context) (update.Progress, error)
	Download(ctx context.Context) error
	CancelDownload() error
	Decline() error
	SkipAvailable() error
	Install() (replace.Plan, error)
	Snapshot() update.Progress
	Available() (update.Availability, bool)
}

// Outcome tokens reported by Flow.Outcome after the program exits.
const (
	OutcomeUpToDate   = "up-to-date"
	OutcomeDeclined   = "declined"
	OutcomeSkipped    = "skipped"
	OutcomeCancelled  = "cancelled"
	OutcomeDeferred   = "deferred"
	OutcomeInstalling = "installing"
	OutcomeError      = "error"
)

type flowStage int

const (
	stageNotice flowStage = iota
	stageChecking
	stagePrompt
	stageDownloading
	stageReady
	stageInstalling
	stageUpToDate
	stageFailed
	stageDone
)

type checkDoneMsg struct {
	progress update.Progress
	err      error
}

type downloadDoneMsg struct {
	err error
}

type installDoneMsg struct {
	err error
}

type downloadTickMsg time.Time

type copyToastTickMsg time.Time

const (
	defaultNotesWidth  = 72
	defaultNotesHeight = 12
	copyToastDuration  = 3 * time.Second
)

// clipboardWriteAll is swapped in tests; headless CI has no clipboard.
var clipboardWriteAll = clipboard.WriteAll

// Config configures the update flow UI.
type Config struct {
	Controller Controller
	// Version is the running app version shown in the header.
	Version string
	// Notice carries a warning from the previous run, e.g. a failed
	// replacement. Empty means nothing to report.
	Notice string
	// NoticeBlocking holds the flow on the notice until a key acknowledges
	// it. Set when a failed rollback may have left the installation
	// inconsistent.
	NoticeBlocking bool
}

// Flow is the bubbletea model for the interactive update conversation:
// check, offer, download, then hand off to the replacement agent.
type Flow struct {
	ctrl    Controller
	version string
	notice  string

	stage    flowStage
	spinner  spinner.Model
	progress progress.Model
	notes    viewport.Model

	snap      update.Progress
	manifest  *update.Manifest
	notesText string
	errText   string
	outcome   string

	copied   bool
	copiedAt time.Time

	width  int
	height int
}

// NewFlow creates the update flow model.
func NewFlow(cfg Config) *Flow {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = styleSpinner

	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	stage := stageChecking
	if cfg.NoticeBlocking && cfg.Notice != "" {
		stage = stageNotice
	}

	return &Flow{
		ctrl:     cfg.Controller,
		version:  cfg.Version,
		notice:   cfg.Notice,
		stage:    stage,
		spinner:  s,
		progress: p,
		notes:    viewport.New(defaultNotesWidth, defaultNotesHeight),
	}
}

// Outcome reports how the flow ended. Empty until a terminal stage is reached.
func (f *Flow) Outcome() string {
	return f.outcome
}

// Init implements tea.Model.
func (f *Flow) Init() tea.Cmd {
	if f.stage == stageNotice {
		// The check waits until the notice is acknowledged.
		return nil
	}
	return tea.Batch(f.spinner.Tick, f.checkCmd())
}

func (f *Flow) checkCmd() tea.Cmd {
	return func() tea.Msg {
		prog, err := f.ctrl.Check(context.Background())
		return checkDoneMsg{progress: prog, err: err}
	}
}

func (f *Flow) downloadCmd() tea.Cmd {
	return func() tea.Msg {
		return downloadDoneMsg{err: f.ctrl.Download(context.Background())}
	}
}

func (f *Flow) installCmd() tea.Cmd {
	return func() tea.Msg {
		_, err := f.ctrl.Install()
		return installDoneMsg{err: err}
	}
}

func scheduleDownloadTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return downloadTickMsg(t)
	})
}

func scheduleCopyToastTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return copyToastTickMsg(t)
	})
}

// Update implements tea.Model.
func (f *Flow) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		f.width = msg.Width
		f.height = msg.Height
		f.resizeNotes()
		return f, nil

	case tea.KeyMsg:
		return f.handleKey(msg)

	case checkDoneMsg:
		return f.handleCheckDone(msg)

	case downloadDoneMsg:
		return f.handleDownloadDone(msg)

	case installDoneMsg:
		if msg.err != nil {
			f.snap = f.ctrl.Snapshot()
			f.stage = stageReady
			f.errText = errorText(f.snap.ErrorMessage, msg.err)
			return f, nil
		}
		f.errText = ""
		f.stage = stageInstalling
		f.outcome = OutcomeInstalling
		return f, tea.Quit

	case downloadTickMsg:
		if f.stage != stageDownloading {
			return f, nil
		}
		f.snap = f.ctrl.Snapshot()
		return f, tea.Batch(
			f.progress.SetPercent(float64(f.snap.ProgressPercent)/100),
			scheduleDownloadTick(),
		)

	case copyToastTickMsg:
		if !f.copied {
			return f, nil
		}
		if time.Since(f.copiedAt) >= copyToastDuration {
			f.copied = false
			return f, nil
		}
		return f, scheduleCopyToastTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		f.spinner, cmd = f.spinner.Update(msg)
		return f, cmd

	case progress.FrameMsg:
		pm, cmd := f.progress.Update(msg)
		f.progress = pm.(progress.Model)
		return f, cmd
	}

	return f, nil
}

func (f *Flow) handleCheckDone(msg checkDoneMsg) (tea.Model, tea.Cmd) {
	f.snap = msg.progress
	if msg.err != nil {
		f.stage = stageFailed
		f.errText = errorText(msg.progress.ErrorMessage, msg.err)
		f.outcome = OutcomeError
		return f, nil
	}
	if !msg.progress.HasUpdate() {
		f.stage = stageUpToDate
		f.outcome = OutcomeUpToDate
		return f, nil
	}
	if avail, ok := f.ctrl.Available(); ok {
		f.manifest = avail.Manifest
	}
	f.stage = stagePrompt
	f.setNotesContent()
	return f, nil
}

func (f *Flow) handleDownloadDone(msg downloadDoneMsg) (tea.Model, tea.Cmd) {
	f.snap = f.ctrl.Snapshot()
	if msg.err != nil {
		f.stage = stageFailed
		f.errText = errorText(f.snap.ErrorMessage, msg.err)
		f.outcome = OutcomeError
		return f, nil
	}
	if f.snap.State == update.StateCancelled {
		f.stage = stageDone
		f.outcome = OutcomeCancelled
		return f, tea.Quit
	}
	f.stage = stageReady
	return f, nil
}

func (f *Flow) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))) {
		if f.stage == stageDownloading {
			_ = f.ctrl.CancelDownload()
		}
		if f.outcome == "" {
			f.outcome = OutcomeCancelled
		}
		f.stage = stageDone
		return f, tea.Quit
	}

	switch f.stage {
	case stageNotice:
		if key.Matches(msg, key.NewBinding(key.WithKeys("c"))) {
			return f, f.copyNotice()
		}
		// Any other key acknowledges the notice.
		f.stage = stageChecking
		f.copied = false
		return f, tea.Batch(f.spinner.Tick, f.checkCmd())

	case stagePrompt:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("y", "enter"))):
			f.stage = stageDownloading
			f.errText = ""
			return f, tea.Batch(f.downloadCmd(), scheduleDownloadTick())
		case key.Matches(msg, key.NewBinding(key.WithKeys("n", "q", "esc"))):
			_ = f.ctrl.Decline()
			f.stage = stageDone
			f.outcome = OutcomeDeclined
			return f, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("s"))):
			_ = f.ctrl.SkipAvailable()
			f.stage = stageDone
			f.outcome = OutcomeSkipped
			return f, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("c"))):
			return f, f.copyNotes()
		}
		// Remaining keys scroll the release notes.
		var cmd tea.Cmd
		f.notes, cmd = f.notes.Update(msg)
		return f, cmd

	case stageDownloading:
		if key.Matches(msg, key.NewBinding(key.WithKeys("esc", "q"))) {
			// The pending downloadDoneMsg reports the cancelled state.
			_ = f.ctrl.CancelDownload()
			return f, nil
		}

	case stageReady:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("i", "enter"))):
			return f, f.installCmd()
		case key.Matches(msg, key.NewBinding(key.WithKeys("l", "q", "esc"))):
			f.stage = stageDone
			f.outcome = OutcomeDeferred
			return f, tea.Quit
		}

	case stageFailed:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("r"))):
			f.stage = stageChecking
			f.errText = ""
			f.outcome = ""
			return f, tea.Batch(f.spinner.Tick, f.checkCmd())
		case key.Matches(msg, key.NewBinding(key.WithKeys("q", "esc", "enter"))):
			return f, tea.Quit
		}

	case stageUpToDate, stageDone:
		if key.Matches(msg, key.NewBinding(key.WithKeys("q", "esc", "enter"))) {
			return f, tea.Quit
		}
	}

	return f, nil
}

func (f *Flow) copyNotes() tea.Cmd {
	if f.notesText == "" {
		return nil
	}
	if err := clipboardWriteAll(ansi.Strip(f.notesText)); err != nil {
		return nil
	}
	f.copied = true
	f.copiedAt = time.Now()
	return scheduleCopyToastTick()
}

func (f *Flow) copyNotice() tea.Cmd {
	if f.notice == "" {
		return nil
	}
	if err := clipboardWriteAll(ansi.Strip(f.notice)); err != nil {
		return nil
	}
	f.copied = true
	f.copiedAt = time.Now()
	return scheduleCopyToastTick()
}

func (f *Flow) setNotesContent() {
	if f.manifest == nil || strings.TrimSpace(f.manifest.Body) == "" {
		f.notesText = styleDim.Render("No release notes provided.")
	} else {
		f.notesText = renderMarkdown(f.manifest.Body, f.notesWidth())
	}
	f.notes.SetContent(f.notesText)
	f.notes.GotoTop()
}

func (f *Flow) notesWidth() int {
	if f.width == 0 {
		return defaultNotesWidth
	}
	w := f.width - 8
	if w < 24 {
		w = 24
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (f *Flow) resizeNotes() {
	f.notes.Width = f.notesWidth()
	h := f.height - 12
	if h < 4 {
		h = 4
	}
	if h > 20 {
		h = 20
	}
	f.notes.Height = h
	if f.manifest != nil {
		f.setNotesContent()
	}
}

// View implements tea.Model.
func (f *Flow) View() string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("Burndown Updater"))
	if f.version != "" {
		b.WriteString(styleDim.Render(" v" + strings.TrimPrefix(f.version, "v")))
	}
	b.WriteString("\n\n")

	if f.notice != "" && (f.stage == stageChecking || f.stage == stagePrompt) {
		b.WriteString(styleNoticeBox.Render(f.notice))
		b.WriteString("\n\n")
	}

	switch f.stage {
	case stageNotice:
		b.WriteString(styleNoticeBox.Render(f.notice))
		b.WriteString("\n\n")
		if f.copied {
			b.WriteString(styleCopyToast.Render("Details copied to clipboard."))
			b.WriteString("\n")
		}
		b.WriteString(keyHints(keyHint{"enter", "continue"}, keyHint{"c", "copy details"}))

	case stageChecking:
		b.WriteString(f.spinner.View())
		b.WriteString(" ")
		b.WriteString(styleStatus.Render("Checking for updates..."))

	case stagePrompt:
		b.WriteString(f.viewPrompt())

	case stageDownloading:
		b.WriteString(f.viewDownloading())

	case stageReady:
		b.WriteString(f.viewReady())

	case stageInstalling:
		b.WriteString(styleStatus.Render("Restarting to finish the update..."))

	case stageUpToDate:
		b.WriteString(styleVersion.Render("✓"))
		b.WriteString(styleStatus.Render(fmt.Sprintf(" You're on the latest version (%s).", displayVersion(f.snap.CurrentVersion))))
		b.WriteString("\n\n")
		b.WriteString(keyHints(keyHint{"q", "quit"}))

	case stageFailed:
		b.WriteString(styleError.Render("Update failed: " + f.errText))
		b.WriteString("\n")
		b.WriteString(styleSubtitle.Render("The app keeps working on the current version."))
		b.WriteString("\n\n")
		b.WriteString(keyHints(keyHint{"r", "retry"}, keyHint{"q", "quit"}))

	case stageDone:
		b.WriteString(styleStatus.Render(f.closingLine()))
	}

	return styleContainer.Render(b.String())
}

func (f *Flow) viewPrompt() string {
	var b strings.Builder

	b.WriteString(styleStatus.Render("Update available: "))
	b.WriteString(styleDim.Render(displayVersion(f.snap.CurrentVersion)))
	b.WriteString(styleDim.Render(" → "))
	b.WriteString(styleVersion.Render(f.snap.AvailableVersion))
	b.WriteString("\n")
	if f.manifest != nil && !f.manifest.PublishedAt.IsZero() {
		b.WriteString(styleSubtitle.Render("Published " + FormatRelativeTime(f.manifest.PublishedAt)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(f.notes.View())
	b.WriteString("\n\n")
	if f.copied {
		b.WriteString(styleCopyToast.Render("Release notes copied to clipboard."))
		b.WriteString("\n")
	}
	b.WriteString(keyHints(
		keyHint{"y", "download"},
		keyHint{"n", "not now"},
		keyHint{"s", "skip this version"},
		keyHint{"c", "copy notes"},
	))
	return b.String()
}

func (f *Flow) viewDownloading() string {
	var b strings.Builder
	b.WriteString(styleStatus.Render(fmt.Sprintf("Downloading %s...", f.snap.AvailableVersion)))
	b.WriteString("\n\n")
	b.WriteString(f.progress.View())
	b.WriteString("\n")
	b.WriteString(styleDim.Render(fmt.Sprintf("%d%%", f.snap.ProgressPercent)))
	b.WriteString("\n\n")
	b.WriteString(keyHints(keyHint{"esc", "cancel"}))
	return b.String()
}

func (f *Flow) viewReady() string {
	var b strings.Builder
	b.WriteString(styleVersion.Render("✓"))
	b.WriteString(styleStatus.Render(fmt.Sprintf(" %s downloaded and verified.", f.snap.AvailableVersion)))
	b.WriteString("\n")
	b.WriteString(styleSubtitle.Render("Installing closes the app and relaunches it on the new version."))
	b.WriteString("\n\n")
	if f.errText != "" {
		b.WriteString(styleError.Render(f.errText))
		b.WriteString("\n\n")
	}
	b.WriteString(keyHints(keyHint{"i", "install now"}, keyHint{"l", "later"}))
	return b.String()
}

func (f *Flow) closingLine() string {
	switch f.outcome {
	case OutcomeDeclined:
		return "Not now. You can update any time with burndown --update."
	case OutcomeSkipped:
		return fmt.Sprintf("Skipping %s. This version won't be offered again.", f.snap.AvailableVersion)
	case OutcomeCancelled:
		return "Download cancelled."
	case OutcomeDeferred:
		return "Update not installed. It will be offered again next launch."
	default:
		return "Goodbye."
	}
}

type keyHint struct {
	key  string
	desc string
}

func keyHints(hints ...keyHint) string {
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, styleKeyPill.Render(h.key)+" "+styleKeyDesc.Render(h.desc))
	}
	return strings.Join(parts, "  ")
}

func displayVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "dev"
	}
	return v
}

func errorText(snapMessage string, err error) string {
	if strings.TrimSpace(snapMessage) != "" {
		return snapMessage
	}
	if err != nil {
		return err.Error()
	}
	return "unknown error"
}
