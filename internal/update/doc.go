// Package update implements the in-process half of self-updating.
//
// This package handles:
//   - Querying the release endpoint for the latest manifest
//   - Comparing semantic versions to detect available updates
//   - Downloading and extracting release assets into a staging directory
//   - Driving the update state machine from idle through installing
//
// The actual file replacement happens in a second process after this one
// exits; see the replace package. The split exists because a running
// executable cannot reliably overwrite itself on every platform.
//
// The package is isolated from UI concerns. The Orchestrator exposes a
// Progress snapshot that the UI can present however it wants.
//
// Example usage:
//
//	orch := update.NewOrchestrator(currentVersion, installCtx)
//	progress, err := orch.Check(ctx)
//	if err != nil {
//	    // log it; a failed check never takes the app down
//	}
//	if progress.HasUpdate() {
//	    // prompt the user, then orch.Download and orch.Install
//	}
package update
