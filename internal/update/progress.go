package update

import "time"

// Progress is the externally readable picture of the update cycle. The
// orchestrator is its only writer; readers receive value copies via
// Orchestrator.Snapshot, so there is no shared mutable view.
//
// AvailableVersion and DownloadURL are set only while the state is
// available, downloading, or ready. StagedPath is set only while the state
// is ready or installing. A zero LastChecked means no check has completed
// in this process.
type Progress struct {
	State            State
	CurrentVersion   string
	AvailableVersion string
	DownloadURL      string
	StagedPath       string
	ProgressPercent  int
	ErrorMessage     string
	LastChecked      time.Time
}

// HasUpdate reports whether an update has been found and not yet abandoned.
func (p Progress) HasUpdate() bool {
	switch p.State {
	case StateAvailable, StateDownloading, StateReady, StateInstalling:
		return true
	default:
		return false
	}
}

// clampPercent bounds a download percentage to [0,100].
func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
