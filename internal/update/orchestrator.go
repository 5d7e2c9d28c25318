package update

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	appErrors "burndown/internal/errors"
	"burndown/internal/install"
	"burndown/internal/replace"
	"burndown/internal/updatelog"
)

// Orchestrator drives the update lifecycle inside the main process: check,
// download and stage, then hand off to the replacement agent. All methods
// are safe for concurrent use. Snapshot is the single source of truth the
// UI renders from.
type Orchestrator struct {
	mu sync.Mutex

	progress     Progress
	availability *Availability
	staged       *StagedUpdate
	cancelStage  context.CancelFunc

	currentVersion string
	installCtx     install.Context
	checker        *Checker
	stager         *Stager

	startAgent    func(updaterPath string, plan replace.Plan) error
	persistSkip   func(version string) error
	recordPending func(stagedDir, fromVersion, toVersion string) error
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithChecker replaces the default release checker.
func WithChecker(c *Checker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.checker = c
	}
}

// WithStager replaces the default stager.
func WithStager(s *Stager) OrchestratorOption {
	return func(o *Orchestrator) {
		o.stager = s
	}
}

// WithAgentStarter replaces how the replacement agent process is launched.
func WithAgentStarter(start func(updaterPath string, plan replace.Plan) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.startAgent = start
	}
}

// WithSkipPersister stores user skip decisions across sessions.
func WithSkipPersister(persist func(version string) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.persistSkip = persist
	}
}

// WithPendingRecorder records the staged update just before the agent is
// spawned, so the next launch can correlate the agent result with a version.
func WithPendingRecorder(record func(stagedDir, fromVersion, toVersion string) error) OrchestratorOption {
	return func(o *Orchestrator) {
		o.recordPending = record
	}
}

// NewOrchestrator creates an orchestrator for the given running version and
// resolved installation.
func NewOrchestrator(currentVersion string, installCtx install.Context, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		currentVersion: currentVersion,
		installCtx:     installCtx,
		checker:        NewChecker(""),
		stager:         NewStager(),
		startAgent:     replace.StartAgent,
		progress: Progress{
			State:          StateIdle,
			CurrentVersion: currentVersion,
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns a copy of the current progress.
func (o *Orchestrator) Snapshot() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// Available returns the last positive check result.
func (o *Orchestrator) Available() (Availability, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.availability == nil {
		return Availability{}, false
	}
	return *o.availability, true
}

// transitionLocked validates and applies a state change. Callers hold mu.
func (o *Orchestrator) transitionLocked(to State) error {
	from := o.progress.State
	if err := from.CanTransitionTo(to); err != nil {
		updatelog.Logf("rejected transition %s -> %s", from, to)
		return err
	}
	if from != to {
		o.progress.State = to
		updatelog.Logf("state %s -> %s", from, to)
	}
	return nil
}

// Check queries the release endpoint. Terminal states re-arm to idle first,
// which also clears the previous error message. Check failures land in the
// error state and are reported to the caller, but they are never fatal to
// the application.
func (o *Orchestrator) Check(ctx context.Context) (Progress, error) {
	o.mu.Lock()
	if o.progress.State == StateChecking {
		p := o.progress
		o.mu.Unlock()
		return p, appErrors.New(appErrors.CodeInvalidState, "check already in progress", nil)
	}
	if o.progress.State.IsTerminal() && o.progress.State != StateInstalling {
		if err := o.transitionLocked(StateIdle); err != nil {
			p := o.progress
			o.mu.Unlock()
			return p, err
		}
		o.progress.ErrorMessage = ""
	}
	if err := o.transitionLocked(StateChecking); err != nil {
		p := o.progress
		o.mu.Unlock()
		return p, err
	}
	checker := o.checker
	version := o.currentVersion
	o.mu.Unlock()

	avail, err := checker.Check(ctx, version)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress.LastChecked = time.Now()

	if err != nil {
		o.progress.ErrorMessage = err.Error()
		_ = o.transitionLocked(StateError)
		return o.progress, appErrors.New(checkErrCode(err), "update check failed", err)
	}
	if !avail.HasUpdate {
		_ = o.transitionLocked(StateUpToDate)
		return o.progress, nil
	}

	o.availability = &avail
	o.progress.AvailableVersion = avail.Latest.String()
	o.progress.DownloadURL = avail.PlatformAsset.BrowserDownloadURL
	_ = o.transitionLocked(StateAvailable)
	return o.progress, nil
}

// Decline dismisses an offered update for this session only.
func (o *Orchestrator) Decline() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.progress.State != StateAvailable {
		return appErrors.New(appErrors.CodeInvalidState,
			fmt.Sprintf("nothing to decline in state %s", o.progress.State), nil)
	}
	return o.transitionLocked(StateCancelled)
}

// SkipAvailable dismisses the offered version permanently: later checks stop
// offering it until something newer appears.
func (o *Orchestrator) SkipAvailable() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.progress.State != StateAvailable || o.availability == nil {
		return appErrors.New(appErrors.CodeInvalidState,
			fmt.Sprintf("nothing to skip in state %s", o.progress.State), nil)
	}

	version := o.availability.Latest.String()
	o.checker.SkipVersion(version)
	if o.persistSkip != nil {
		if err := o.persistSkip(version); err != nil {
			updatelog.Logf("persist skipped version %s: %v", version, err)
		}
	}
	updatelog.Logf("skipping version %s", version)
	return o.transitionLocked(StateCancelled)
}

// Download stages the offered update. It blocks until the payload is staged,
// the download fails, or CancelDownload interrupts it; run it from a
// goroutine and watch Snapshot for progress.
func (o *Orchestrator) Download(ctx context.Context) error {
	o.mu.Lock()
	if o.progress.State != StateAvailable || o.availability == nil || o.availability.PlatformAsset == nil {
		p := o.progress.State
		o.mu.Unlock()
		return appErrors.New(appErrors.CodeInvalidState,
			fmt.Sprintf("nothing to download in state %s", p), nil)
	}
	if err := o.transitionLocked(StateDownloading); err != nil {
		o.mu.Unlock()
		return err
	}
	// Downloading into a read-only installation would only fail later in the
	// agent; refuse up front instead.
	if err := install.CheckWritable(o.installCtx.InstallDir); err != nil {
		o.progress.ErrorMessage = fmt.Sprintf("install directory is not writable: %v", err)
		_ = o.transitionLocked(StateError)
		o.mu.Unlock()
		return appErrors.New(appErrors.CodeInstallNotWritable, "install directory is not writable", err)
	}
	stageCtx, cancel := context.WithCancel(ctx)
	o.cancelStage = cancel
	o.progress.ProgressPercent = 0
	asset := *o.availability.PlatformAsset
	stager := o.stager
	o.mu.Unlock()
	defer cancel()

	staged, err := stager.Stage(stageCtx, asset, o.onDownloadProgress)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelStage = nil

	if err != nil {
		if o.progress.State == StateCancelled {
			// CancelDownload already moved the state; the stager cleaned
			// up its partial files.
			return nil
		}
		if errors.Is(err, context.Canceled) {
			_ = o.transitionLocked(StateCancelled)
			return nil
		}
		o.progress.ErrorMessage = err.Error()
		_ = o.transitionLocked(StateError)
		return appErrors.New(stageErrCode(err), "download failed", err)
	}

	if o.progress.State == StateCancelled {
		// Cancelled at the last instant; drop the completed payload.
		_ = os.RemoveAll(staged.Dir)
		return nil
	}

	o.staged = &staged
	o.progress.StagedPath = staged.Dir
	o.progress.ProgressPercent = 100
	return o.transitionLocked(StateReady)
}

func (o *Orchestrator) onDownloadProgress(received, total int64) {
	if total <= 0 {
		return
	}
	o.mu.Lock()
	o.progress.ProgressPercent = clampPercent(int(received * 100 / total))
	o.mu.Unlock()
}

// CancelDownload interrupts an in-flight download.
func (o *Orchestrator) CancelDownload() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.progress.State != StateDownloading {
		return appErrors.New(appErrors.CodeInvalidState,
			fmt.Sprintf("no download to cancel in state %s", o.progress.State), nil)
	}
	if o.cancelStage != nil {
		o.cancelStage()
	}
	return o.transitionLocked(StateCancelled)
}

// Install hands the staged payload to the replacement agent. On success the
// state is installing and the caller must exit the process promptly so the
// agent's wait can succeed. If the agent fails to start, the state stays
// ready and Install can be retried.
func (o *Orchestrator) Install() (replace.Plan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.progress.State.CanTransitionTo(StateInstalling); err != nil {
		return replace.Plan{}, err
	}
	if o.progress.State != StateReady || o.staged == nil {
		return replace.Plan{}, appErrors.New(appErrors.CodeInvalidState,
			fmt.Sprintf("nothing staged to install in state %s", o.progress.State), nil)
	}

	plan := replace.Plan{
		StagedDir:    o.staged.Dir,
		InstallDir:   o.installCtx.InstallDir,
		MainPID:      os.Getpid(),
		BackupSuffix: replace.DefaultBackupSuffix(),
	}
	if err := plan.Validate(); err != nil {
		o.progress.ErrorMessage = err.Error()
		return plan, appErrors.New(appErrors.CodeReplacementFailed, "invalid replacement plan", err)
	}

	if o.recordPending != nil {
		if err := o.recordPending(plan.StagedDir, o.currentVersion, o.progress.AvailableVersion); err != nil {
			// Bookkeeping only; the install itself still proceeds.
			updatelog.Logf("record pending install: %v", err)
		}
	}

	if err := o.startAgent(o.installCtx.UpdaterPath, plan); err != nil {
		o.progress.ErrorMessage = err.Error()
		updatelog.Logf("start agent: %v", err)
		return plan, appErrors.New(appErrors.CodeReplacementFailed, "failed to start replacement agent", err)
	}

	updatelog.Logf("agent started, handing off %s -> %s", plan.StagedDir, plan.InstallDir)
	_ = o.transitionLocked(StateInstalling)
	return plan, nil
}

func checkErrCode(err error) appErrors.Code {
	switch {
	case errors.Is(err, ErrManifestInvalid):
		return appErrors.CodeParseFailed
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrNetworkFailure):
		return appErrors.CodeNetworkFailure
	}
	return appErrors.CodeUnknown
}

func stageErrCode(err error) appErrors.Code {
	switch {
	case errors.Is(err, ErrStageIncomplete), errors.Is(err, ErrExtractionFailed):
		return appErrors.CodeDownloadIntegrity
	}
	return appErrors.CodeDownloadFailed
}
