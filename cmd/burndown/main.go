package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"burndown/internal/config"
	"burndown/internal/history"
	"burndown/internal/install"
	"burndown/internal/replace"
	"burndown/internal/ui"
	"burndown/internal/update"
	"burndown/internal/updatelog"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	if err := config.Initialize(); err != nil {
		fmt.Printf("Error initializing config: %v\n", err)
		os.Exit(1)
	}

	autoCheckDefault := config.GetBool(config.KeyAutoUpdateCheck)
	releasesURLDefault := config.GetString(config.KeyReleasesURL)
	dataDirDefault := config.GetString(config.KeyDataDir)

	versionFlag := flag.Bool("version", false, "Print version information and exit")
	updateFlag := flag.Bool("update", false, "Run the interactive update flow, even when auto-check is off")
	checkUpdateFlag := flag.Bool("check-update", false, "Check for updates, print the result, and exit")
	updateHistoryFlag := flag.Bool("update-history", false, "Print recent update attempts and exit")
	noUpdateCheckFlag := flag.Bool("no-update-check", !autoCheckDefault, "Skip the update check on launch (or set BD_UPDATE_AUTO_CHECK=false)")
	releasesURLFlag := flag.String("releases-url", releasesURLDefault, "Override the release manifest endpoint")
	dataDirFlag := flag.String("data-dir", dataDirDefault, "Directory for update history and other mutable state")
	flag.Parse()

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	visited := map[string]struct{}{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = struct{}{}
	})

	runtime := computeRuntimeOptions(runtimeFlags{
		update:        updateFlag,
		checkUpdate:   checkUpdateFlag,
		updateHistory: updateHistoryFlag,
		noUpdateCheck: noUpdateCheckFlag,
		releasesURL:   releasesURLFlag,
		dataDir:       dataDirFlag,
	}, visited)

	os.Exit(run(runtime))
}

func run(rt runtimeOptions) int {
	installCtx := install.Resolve()

	if err := updatelog.Init(installCtx.InstallDir); err != nil && installCtx.Writable {
		fmt.Fprintf(os.Stderr, "Warning: update log unavailable: %v\n", err)
	}
	defer updatelog.Close()

	store := openHistoryStore(rt, installCtx)

	if rt.showHistory {
		return runHistoryList(os.Stdout, os.Stderr, store)
	}

	rec := reconcileAgentResult(context.Background(), store, installCtx.InstallDir)

	// Sweep leftovers from earlier sessions. A failed rollback keeps its
	// backups in place so the user can restore them by hand.
	if removed := update.RemoveStaleStaging(os.TempDir()); removed > 0 {
		updatelog.Logf("removed %d stale staging directories", removed)
	}
	if !rec.keepBackups {
		if removed := replace.RemoveStaleBackups(installCtx.InstallDir); removed > 0 {
			updatelog.Logf("removed %d stale backup files", removed)
		}
	}

	if !installCtx.Frozen {
		// Source builds never self-update.
		if rt.consoleCheck || rt.forceUpdate {
			fmt.Fprintln(os.Stderr, "Self-update is unavailable for source builds.")
		}
		return 0
	}

	warnIfInstallReadOnly(os.Stderr, installCtx)

	if rt.consoleCheck {
		if rec.notice != "" {
			fmt.Fprintln(os.Stderr, rec.notice)
		}
		return runConsoleCheck(os.Stdout, os.Stderr, newUpdateOrchestrator(rt, installCtx, store))
	}

	if !rt.autoCheck && !rt.forceUpdate {
		if rec.notice != "" {
			fmt.Fprintln(os.Stderr, rec.notice)
		}
		return 0
	}

	orch := newUpdateOrchestrator(rt, installCtx, store)
	flowCfg := ui.Config{
		Controller:     orch,
		Version:        Version,
		Notice:         rec.notice,
		NoticeBlocking: rec.blocking,
	}

	started := time.Now()
	flow, err := runFlow(flowCfg, ui.NewFlow, func(f *ui.Flow) programRunner {
		return tea.NewProgram(f)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	outcome := flow.Outcome()
	snap := orch.Snapshot()

	if outcome == ui.OutcomeInstalling {
		// The agent is waiting on this PID; exit promptly and let the
		// relaunched app report what happened.
		updatelog.Logf("host exiting for replacement handoff pid=%d", os.Getpid())
		return 0
	}

	recordFlowOutcome(context.Background(), store, outcome, snap)
	printExitSummary(os.Stdout, ExitSummary{
		Version:  Version,
		Outcome:  outcome,
		Snapshot: snap,
		Started:  started,
	})
	return 0
}

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(*ui.Flow) programRunner

func runFlow(cfg ui.Config, builder func(ui.Config) *ui.Flow, factory programFactory) (*ui.Flow, error) {
	flow := builder(cfg)
	if flow == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("program factory is nil")
	}
	prog := factory(flow)
	if prog == nil {
		return nil, fmt.Errorf("program is nil")
	}
	if _, err := prog.Run(); err != nil {
		return nil, fmt.Errorf("run update flow: %w", err)
	}
	return flow, nil
}

func openHistoryStore(rt runtimeOptions, installCtx install.Context) *history.Store {
	dataDir := rt.dataDir
	if dataDir == "" {
		dataDir = installCtx.DataDir
	}
	if dataDir == "" {
		return nil
	}
	store, err := history.Open(filepath.Join(dataDir, history.DefaultFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: update history unavailable: %v\n", err)
		return nil
	}
	return store
}

func newUpdateOrchestrator(rt runtimeOptions, installCtx install.Context, store *history.Store) *update.Orchestrator {
	var checkerOpts []update.CheckerOption
	// An explicit --update request re-offers even a skipped version.
	if !rt.forceUpdate {
		if skipped := strings.TrimSpace(config.GetString(config.KeySkippedVersion)); skipped != "" {
			checkerOpts = append(checkerOpts, update.WithSkippedVersion(skipped))
		}
	}

	opts := []update.OrchestratorOption{
		update.WithChecker(update.NewChecker(rt.releasesURL, checkerOpts...)),
		update.WithSkipPersister(config.SaveSkippedVersion),
	}
	if store != nil {
		opts = append(opts, update.WithPendingRecorder(func(stagedDir, fromVersion, toVersion string) error {
			return store.SetPending(context.Background(), history.Pending{
				StagedDir:   stagedDir,
				FromVersion: fromVersion,
				ToVersion:   toVersion,
			})
		}))
	}
	return update.NewOrchestrator(Version, installCtx, opts...)
}

func recordFlowOutcome(ctx context.Context, store *history.Store, outcome string, snap update.Progress) {
	if store == nil || outcome == "" {
		return
	}
	attempt := history.Attempt{
		FromVersion: snap.CurrentVersion,
		ToVersion:   snap.AvailableVersion,
		Outcome:     outcome,
	}
	if outcome == ui.OutcomeError {
		attempt.Detail = snap.ErrorMessage
	}
	if err := store.RecordAttempt(ctx, attempt); err != nil {
		updatelog.Logf("record update outcome: %v", err)
	}
}

type runtimeFlags struct {
	update        *bool
	checkUpdate   *bool
	updateHistory *bool
	noUpdateCheck *bool
	releasesURL   *string
	dataDir       *string
}

type runtimeOptions struct {
	forceUpdate  bool
	consoleCheck bool
	showHistory  bool
	autoCheck    bool
	releasesURL  string
	dataDir      string
}

func computeRuntimeOptions(flags runtimeFlags, visited map[string]struct{}) runtimeOptions {
	autoCheck := config.GetBool(config.KeyAutoUpdateCheck)
	if flagWasExplicitlySet("no-update-check", visited) {
		autoCheck = !*flags.noUpdateCheck
	}

	releasesURL := strings.TrimSpace(config.GetString(config.KeyReleasesURL))
	if flagWasExplicitlySet("releases-url", visited) {
		releasesURL = strings.TrimSpace(*flags.releasesURL)
	}

	dataDir := strings.TrimSpace(config.GetString(config.KeyDataDir))
	if flagWasExplicitlySet("data-dir", visited) {
		dataDir = strings.TrimSpace(*flags.dataDir)
	}

	return runtimeOptions{
		forceUpdate:  flags.update != nil && *flags.update,
		consoleCheck: flags.checkUpdate != nil && *flags.checkUpdate,
		showHistory:  flags.updateHistory != nil && *flags.updateHistory,
		autoCheck:    autoCheck,
		releasesURL:  releasesURL,
		dataDir:      dataDir,
	}
}

func flagWasExplicitlySet(name string, visited map[string]struct{}) bool {
	if _, ok := visited[name]; ok {
		return true
	}
	f := flag.CommandLine.Lookup(name)
	if f == nil {
		return false
	}
	return f.Value.String() != f.DefValue
}
