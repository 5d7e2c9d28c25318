package update

import (
	"fmt"
	"strings"

	appErrors "burndown/internal/errors"
)

// State represents the orchestrator's position in the update cycle.
type State string

const (
	StateUnknown     State = ""
	StateIdle        State = "idle"
	StateChecking    State = "checking"
	StateAvailable   State = "available"
	StateDownloading State = "downloading"
	StateReady       State = "ready"
	StateInstalling  State = "installing"
	StateUpToDate    State = "up_to_date"
	StateCancelled   State = "cancelled"
	StateError       State = "error"
)

var validStates = map[State]struct{}{
	StateIdle:        {},
	StateChecking:    {},
	StateAvailable:   {},
	StateDownloading: {},
	StateReady:       {},
	StateInstalling:  {},
	StateUpToDate:    {},
	StateCancelled:   {},
	StateError:       {},
}

// allowedTransitions encodes the update cycle. No transition skips a state:
// installing is only reachable from ready, and the terminal-per-cycle states
// re-arm through idle before the next check.
var allowedTransitions = map[State]map[State]struct{}{
	StateIdle: {
		StateChecking: {},
	},
	StateChecking: {
		StateUpToDate:  {},
		StateAvailable: {},
		StateError:     {},
	},
	StateAvailable: {
		StateDownloading: {},
		StateCancelled:   {},
	},
	StateDownloading: {
		StateReady:     {},
		StateError:     {},
		StateCancelled: {},
	},
	StateReady: {
		StateInstalling: {},
	},
	// installing ends with the host process exiting; nothing follows it.
	StateInstalling: {},
	StateUpToDate: {
		StateIdle: {},
	},
	StateCancelled: {
		StateIdle: {},
	},
	StateError: {
		StateIdle: {},
	},
}

// ParseState normalises and validates an incoming state string.
func ParseState(raw string) (State, error) {
	state := State(strings.ToLower(strings.TrimSpace(raw)))
	if state == StateUnknown {
		return StateUnknown, invalidStateError("blank")
	}
	if _, ok := validStates[state]; !ok {
		return StateUnknown, invalidStateError(raw)
	}
	return state, nil
}

// Validate ensures the state is part of the update cycle.
func (s State) Validate() error {
	if _, ok := validStates[s]; !ok {
		return invalidStateError(string(s))
	}
	return nil
}

// IsTerminal reports whether the state ends the current update cycle.
// Installing is terminal for the host process itself: once the agent is
// launched the orchestrator exits rather than transitioning further.
func (s State) IsTerminal() bool {
	switch s {
	case StateUpToDate, StateCancelled, StateError, StateInstalling:
		return true
	default:
		return false
	}
}

// CanTransitionTo verifies whether a transition to the target state is allowed.
func (s State) CanTransitionTo(target State) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return err
	}
	if s == target {
		return nil
	}
	if transitions, ok := allowedTransitions[s]; ok {
		if _, allowed := transitions[target]; allowed {
			return nil
		}
	}
	return invalidTransitionError(s, target)
}

func invalidStateError(raw string) error {
	return appErrors.New(appErrors.CodeInvalidState, fmt.Sprintf("invalid update state %q", raw), nil)
}

func invalidTransitionError(from, to State) error {
	return appErrors.New(appErrors.CodeInvalidTransition, fmt.Sprintf("cannot transition from %s to %s", from, to), nil)
}
