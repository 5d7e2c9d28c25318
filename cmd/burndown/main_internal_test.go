package main

import (
	"flag"
	"sync"
	"testing"

	"burndown/internal/config"
)

var configInitOnce sync.Once

func ensureTestConfig(t *testing.T) {
	t.Helper()
	configInitOnce.Do(func() {
		dir := t.TempDir()
		if err := config.Initialize(
			config.WithProjectConfig(""),
			config.WithUserConfig(""),
			config.WithWorkingDir(dir),
		); err != nil {
			t.Fatalf("init config: %v", err)
		}
	})
	overrides := map[string]any{
		config.KeyAutoUpdateCheck: true,
		config.KeyReleasesURL:     "",
		config.KeySkippedVersion:  "",
		config.KeyDataDir:         "",
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		t.Fatalf("apply overrides: %v", err)
	}
}

func buildRuntimeOptionsForArgs(t *testing.T, args []string, overrides ...map[string]any) runtimeOptions {
	t.Helper()
	ensureTestConfig(t)
	if len(overrides) > 0 && len(overrides[0]) > 0 {
		if err := config.ApplyOverrides(overrides[0]); err != nil {
			t.Fatalf("apply custom overrides: %v", err)
		}
	}

	autoCheckDefault := config.GetBool(config.KeyAutoUpdateCheck)
	releasesURLDefault := config.GetString(config.KeyReleasesURL)
	dataDirDefault := config.GetString(config.KeyDataDir)

	fs := flag.NewFlagSet("burndown-test", flag.ContinueOnError)
	updateFlag := fs.Bool("update", false, "force update flow")
	checkUpdateFlag := fs.Bool("check-update", false, "console check")
	updateHistoryFlag := fs.Bool("update-history", false, "print history")
	noUpdateCheckFlag := fs.Bool("no-update-check", !autoCheckDefault, "skip auto check")
	releasesURLFlag := fs.String("releases-url", releasesURLDefault, "releases url")
	dataDirFlag := fs.String("data-dir", dataDirDefault, "data dir")

	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	visited := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) {
		visited[f.Name] = struct{}{}
	})

	flags := runtimeFlags{
		update:        updateFlag,
		checkUpdate:   checkUpdateFlag,
		updateHistory: updateHistoryFlag,
		noUpdateCheck: noUpdateCheckFlag,
		releasesURL:   releasesURLFlag,
		dataDir:       dataDirFlag,
	}
	return computeRuntimeOptions(flags, visited)
}

func TestComputeRuntimeOptions_Defaults(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{})
	if !opts.autoCheck {
		t.Fatalf("expected auto-check enabled by default")
	}
	if opts.forceUpdate || opts.consoleCheck || opts.showHistory {
		t.Fatalf("expected no mode flags by default, got %+v", opts)
	}
	if opts.releasesURL != "" {
		t.Fatalf("expected empty releases URL, got %q", opts.releasesURL)
	}
}

func TestComputeRuntimeOptions_NoUpdateCheckFlag(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{"--no-update-check"})
	if opts.autoCheck {
		t.Fatalf("expected --no-update-check to disable auto-check")
	}
}

func TestComputeRuntimeOptions_ConfigDisablesAutoCheck(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{}, map[string]any{config.KeyAutoUpdateCheck: false})
	if opts.autoCheck {
		t.Fatalf("expected config opt-out to disable auto-check")
	}
}

func TestComputeRuntimeOptions_FlagReenablesAutoCheck(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{"--no-update-check=false"}, map[string]any{config.KeyAutoUpdateCheck: false})
	if !opts.autoCheck {
		t.Fatalf("expected explicit --no-update-check=false to win over config")
	}
}

func TestComputeRuntimeOptions_ReleasesURLFlagTrimmed(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{"--releases-url", " https://example.com/latest.json "})
	if opts.releasesURL != "https://example.com/latest.json" {
		t.Fatalf("expected trimmed releases URL, got %q", opts.releasesURL)
	}
}

func TestComputeRuntimeOptions_ReleasesURLFromConfig(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{}, map[string]any{
		config.KeyReleasesURL: "https://mirror.example/releases.json",
	})
	if opts.releasesURL != "https://mirror.example/releases.json" {
		t.Fatalf("expected config releases URL, got %q", opts.releasesURL)
	}
}

func TestComputeRuntimeOptions_DataDirFlag(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{"--data-dir", " /tmp/burndown-data "})
	if opts.dataDir != "/tmp/burndown-data" {
		t.Fatalf("expected trimmed data dir, got %q", opts.dataDir)
	}
}

func TestComputeRuntimeOptions_ModeFlags(t *testing.T) {
	opts := buildRuntimeOptionsForArgs(t, []string{"--update", "--check-update", "--update-history"})
	if !opts.forceUpdate {
		t.Fatalf("expected --update to set forceUpdate")
	}
	if !opts.consoleCheck {
		t.Fatalf("expected --check-update to set consoleCheck")
	}
	if !opts.showHistory {
		t.Fatalf("expected --update-history to set showHistory")
	}
}
