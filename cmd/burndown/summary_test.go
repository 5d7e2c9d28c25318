package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"burndown/internal/ui"
	"burndown/internal/update"
)

func TestPrintExitSummary(t *testing.T) {
	tests := []struct {
		name        string
		summary     ExitSummary
		wantApp     string
		wantVer     string
		wantLine    string
		wantSession bool
	}{
		{
			name: "up to date with version",
			summary: ExitSummary{
				Version: "1.2.0",
				Outcome: ui.OutcomeUpToDate,
				Started: time.Now().Add(-5 * time.Minute),
			},
			wantApp:     "Burndown",
			wantVer:     "v1.2.0",
			wantLine:    "Up to date.",
			wantSession: true,
		},
		{
			name: "declined update names the version",
			summary: ExitSummary{
				Version: "1.2.0",
				Outcome: ui.OutcomeDeclined,
				Snapshot: update.Progress{
					CurrentVersion:   "1.2.0",
					AvailableVersion: "v1.3.0",
				},
				Started: time.Now().Add(-90 * time.Second),
			},
			wantApp:     "Burndown",
			wantVer:     "v1.2.0",
			wantLine:    "Update to v1.3.0 declined.",
			wantSession: true,
		},
		{
			name: "no version and no session",
			summary: ExitSummary{
				Version: "",
				Outcome: ui.OutcomeUpToDate,
			},
			wantApp:     "Burndown",
			wantVer:     "",
			wantLine:    "Up to date.",
			wantSession: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printExitSummary(&buf, tt.summary)
			output := buf.String()

			if !strings.Contains(output, tt.wantApp) {
				t.Errorf("output missing app name %q:\n%s", tt.wantApp, output)
			}

			if tt.wantVer != "" && !strings.Contains(output, tt.wantVer) {
				t.Errorf("output missing version %q:\n%s", tt.wantVer, output)
			}

			if tt.wantVer == "" && strings.Contains(output, " v") {
				t.Errorf("output should not contain version marker:\n%s", output)
			}

			if !strings.Contains(output, tt.wantLine) {
				t.Errorf("output missing closing line %q:\n%s", tt.wantLine, output)
			}

			if tt.wantSession != strings.Contains(output, "session") {
				t.Errorf("session duration shown = %v, want %v:\n%s", !tt.wantSession, tt.wantSession, output)
			}
		})
	}
}

func TestOutcomeLine(t *testing.T) {
	snap := update.Progress{
		CurrentVersion:   "1.2.0",
		AvailableVersion: "v1.3.0",
	}

	tests := []struct {
		name    string
		outcome string
		snap    update.Progress
		want    string
	}{
		{"up to date", ui.OutcomeUpToDate, snap, "Up to date."},
		{"declined", ui.OutcomeDeclined, snap, "Update to v1.3.0 declined."},
		{"skipped", ui.OutcomeSkipped, snap, "Skipped v1.3.0. It won't be offered again."},
		{"cancelled", ui.OutcomeCancelled, snap, "Update cancelled."},
		{"deferred", ui.OutcomeDeferred, snap, "Update to v1.3.0 deferred. It will be offered again next launch."},
		{
			"error with detail",
			ui.OutcomeError,
			update.Progress{ErrorMessage: "download failed: connection reset"},
			"Update failed: download failed: connection reset",
		},
		{"error without detail", ui.OutcomeError, update.Progress{}, "Update failed: unknown error"},
		{"installing prints nothing", ui.OutcomeInstalling, snap, ""},
		{"unknown outcome prints nothing", "mystery", snap, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outcomeLine(tt.outcome, tt.snap)
			if got != tt.want {
				t.Errorf("outcomeLine(%q) = %q, want %q", tt.outcome, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     string
	}{
		{30 * time.Second, "30s"},
		{59 * time.Second, "59s"},
		{60 * time.Second, "1m"},
		{90 * time.Second, "1m 30s"},
		{5 * time.Minute, "5m"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{60 * time.Minute, "1h"},
		{90 * time.Minute, "1h 30m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := formatDuration(tt.duration)
			if got != tt.want {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}
