package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"burndown/internal/history"
	"burndown/internal/install"
	"burndown/internal/replace"
)

func TestWarnIfInstallReadOnly(t *testing.T) {
	tests := []struct {
		name     string
		ctx      install.Context
		wantWarn bool
	}{
		{
			name:     "writable install",
			ctx:      install.Context{InstallDir: "/opt/burndown", Frozen: true, Writable: true},
			wantWarn: false,
		},
		{
			name:     "read-only install",
			ctx:      install.Context{InstallDir: "/opt/burndown", Frozen: true, Writable: false},
			wantWarn: true,
		},
		{
			name:     "source build never warns",
			ctx:      install.Context{InstallDir: "/home/dev/burndown", Frozen: false, Writable: false},
			wantWarn: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			got := warnIfInstallReadOnly(&buf, tt.ctx)
			if got != tt.wantWarn {
				t.Fatalf("warnIfInstallReadOnly = %v, want %v", got, tt.wantWarn)
			}
			if !tt.wantWarn {
				if buf.Len() != 0 {
					t.Fatalf("expected no output, got %q", buf.String())
				}
				return
			}
			out := buf.String()
			if !strings.Contains(out, "not writable") {
				t.Fatalf("expected writable warning, got %q", out)
			}
			if !strings.Contains(out, tt.ctx.InstallDir) {
				t.Fatalf("expected install dir in warning, got %q", out)
			}
		})
	}
}

func openTestStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), history.DefaultFileName))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestReconcileAgentResultNothingPending(t *testing.T) {
	store := openTestStore(t)

	out := reconcileAgentResult(context.Background(), store, t.TempDir())

	if out.notice != "" || out.blocking || out.keepBackups {
		t.Fatalf("expected zero outcome, got %+v", out)
	}
	attempts, err := store.RecentAttempts(context.Background(), 5)
	if err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("expected no recorded attempts, got %d", len(attempts))
	}
}

func TestReconcileAgentResultSuccess(t *testing.T) {
	store := openTestStore(t)
	installDir := t.TempDir()

	if err := replace.WriteResult(installDir, replace.ResultSuccess); err != nil {
		t.Fatalf("write result: %v", err)
	}
	if err := store.SetPending(context.Background(), history.Pending{
		StagedDir:   "/tmp/burndown-stage-x",
		FromVersion: "1.2.0",
		ToVersion:   "v1.3.0",
		StagedAt:    time.Now().Add(-time.Minute),
	}); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	out := reconcileAgentResult(context.Background(), store, installDir)

	if out.notice != "" {
		t.Fatalf("success must not produce a notice, got %q", out.notice)
	}
	attempts, err := store.RecentAttempts(context.Background(), 5)
	if err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	got := attempts[0]
	if got.Outcome != "success" {
		t.Errorf("outcome = %q, want success", got.Outcome)
	}
	if got.FromVersion != "1.2.0" || got.ToVersion != "v1.3.0" {
		t.Errorf("versions = %q -> %q, want pending versions", got.FromVersion, got.ToVersion)
	}
	if got.Detail != "" {
		t.Errorf("success detail should be empty, got %q", got.Detail)
	}

	// Both the result file and the pending row are consumed.
	if rec, _ := replace.ConsumeResult(installDir); rec != nil {
		t.Error("agent result should have been consumed")
	}
	if p, _ := store.TakePending(context.Background()); p != nil {
		t.Error("pending row should have been consumed")
	}
}

func TestReconcileAgentResultRolledBack(t *testing.T) {
	store := openTestStore(t)
	installDir := t.TempDir()

	if err := replace.WriteResult(installDir, replace.ResultRolledBack); err != nil {
		t.Fatalf("write result: %v", err)
	}
	if err := store.SetPending(context.Background(), history.Pending{
		StagedDir:   "/tmp/burndown-stage-x",
		FromVersion: "1.2.0",
		ToVersion:   "v1.3.0",
	}); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	out := reconcileAgentResult(context.Background(), store, installDir)

	if !strings.Contains(out.notice, "previous version was restored") {
		t.Fatalf("expected rollback notice, got %q", out.notice)
	}
	if out.blocking {
		t.Error("a clean rollback must not block the launch")
	}
	if out.keepBackups {
		t.Error("a clean rollback leaves nothing to preserve")
	}

	attempts, err := store.RecentAttempts(context.Background(), 5)
	if err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Outcome != "rolled-back" {
		t.Errorf("outcome = %q, want rolled-back", attempts[0].Outcome)
	}
	if attempts[0].Detail != "agent exit code 2" {
		t.Errorf("detail = %q, want agent exit code 2", attempts[0].Detail)
	}
}

func TestReconcileAgentResultRollbackFailedBlocks(t *testing.T) {
	store := openTestStore(t)
	installDir := t.TempDir()

	if err := replace.WriteResult(installDir, replace.ResultRollbackFailed); err != nil {
		t.Fatalf("write result: %v", err)
	}

	out := reconcileAgentResult(context.Background(), store, installDir)

	if !strings.Contains(out.notice, "could not be fully rolled back") {
		t.Fatalf("expected rollback-failed notice, got %q", out.notice)
	}
	if !out.blocking {
		t.Error("a failed rollback must block until acknowledged")
	}
	if !out.keepBackups {
		t.Error("a failed rollback must keep the backup files")
	}
}

func TestReconcileAgentResultMissingResult(t *testing.T) {
	store := openTestStore(t)
	installDir := t.TempDir()

	if err := store.SetPending(context.Background(), history.Pending{
		StagedDir:   "/tmp/burndown-stage-x",
		FromVersion: "1.2.0",
		ToVersion:   "v1.3.0",
	}); err != nil {
		t.Fatalf("set pending: %v", err)
	}

	out := reconcileAgentResult(context.Background(), store, installDir)

	if !strings.Contains(out.notice, "may not have completed") {
		t.Fatalf("expected missing-result notice, got %q", out.notice)
	}
	if out.blocking {
		t.Error("a missing result should not block the launch")
	}

	attempts, err := store.RecentAttempts(context.Background(), 5)
	if err != nil {
		t.Fatalf("read attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Outcome != "error" {
		t.Errorf("outcome = %q, want error", attempts[0].Outcome)
	}
	if attempts[0].Detail != "replacement agent left no result" {
		t.Errorf("detail = %q", attempts[0].Detail)
	}
}

func TestReconcileAgentResultWithoutStore(t *testing.T) {
	installDir := t.TempDir()
	if err := replace.WriteResult(installDir, replace.ResultWaitTimeout); err != nil {
		t.Fatalf("write result: %v", err)
	}

	out := reconcileAgentResult(context.Background(), nil, installDir)

	if !strings.Contains(out.notice, "timed out") {
		t.Fatalf("expected timeout notice even without a store, got %q", out.notice)
	}
}
