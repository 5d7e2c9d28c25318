package ui

import (
	"strings"
	"testing"
	"time"

	"burndown/internal/replace"

	"github.com/charmbracelet/x/ansi"
)

func TestFailureNotice(t *testing.T) {
	recordedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  *replace.ResultRecord
		want []string
	}{
		{
			name: "nil record",
			rec:  nil,
		},
		{
			name: "success is silent",
			rec:  &replace.ResultRecord{ExitCode: 0, Outcome: "success", RecordedAt: recordedAt},
		},
		{
			name: "wait timeout",
			rec:  &replace.ResultRecord{ExitCode: 1, Outcome: "wait-timeout", RecordedAt: recordedAt},
			want: []string{"could not be completed", "timed out", "Nothing was changed"},
		},
		{
			name: "rolled back",
			rec:  &replace.ResultRecord{ExitCode: 2, Outcome: "rolled-back", RecordedAt: recordedAt},
			want: []string{"could not be completed", "previous version was restored"},
		},
		{
			name: "rollback failed",
			rec:  &replace.ResultRecord{ExitCode: 3, Outcome: "rollback-failed", RecordedAt: recordedAt},
			want: []string{"could not be fully rolled back", ".bak-", "reinstall"},
		},
		{
			name: "unknown outcome",
			rec:  &replace.ResultRecord{ExitCode: 7, Outcome: "mystery", RecordedAt: recordedAt},
			want: []string{"exited with status 7"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FailureNotice(tt.rec)
			if len(tt.want) == 0 {
				if got != "" {
					t.Fatalf("expected empty notice, got %q", got)
				}
				return
			}
			for _, fragment := range tt.want {
				if !strings.Contains(got, fragment) {
					t.Fatalf("notice missing %q: %q", fragment, got)
				}
			}
		})
	}
}

func TestFailureNoticeMentionsWhen(t *testing.T) {
	restore := timeNow
	timeNow = func() time.Time {
		return time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	}
	t.Cleanup(func() { timeNow = restore })

	rec := &replace.ResultRecord{
		ExitCode:   2,
		Outcome:    "rolled-back",
		RecordedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	got := FailureNotice(rec)
	if !strings.Contains(got, "2d ago") {
		t.Fatalf("expected relative timestamp in notice, got %q", got)
	}
}

func TestMissingResultNotice(t *testing.T) {
	got := MissingResultNotice()
	if !strings.Contains(got, "may not have completed") {
		t.Fatalf("unexpected notice: %q", got)
	}
	if !strings.Contains(got, "re-check") {
		t.Fatalf("expected re-check hint: %q", got)
	}
}

func TestOutcomeBadge(t *testing.T) {
	outcomes := []string{
		"success",
		"up-to-date",
		"rolled-back",
		"wait-timeout",
		"deferred",
		"rollback-failed",
		"error",
		"declined",
	}

	for _, outcome := range outcomes {
		t.Run(outcome, func(t *testing.T) {
			if got := ansi.Strip(OutcomeBadge(outcome)); got != outcome {
				t.Fatalf("badge text changed: got %q, want %q", got, outcome)
			}
		})
	}
}
