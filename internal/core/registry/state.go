package registry

import (
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

// State is an alias for domain.UnitState for internal use.
type State = domain.UnitState

// ValidTransitions defines allowed lifecycle moves.
// Key is the current state, value is the list of valid next states.
// Stopped is terminal. Failed is terminal once the restart budget is
// exhausted, which is enforced separately in Transition.
var ValidTransitions = map[State][]State{
	domain.UnitStateRegistered: {domain.UnitStateStarting, domain.UnitStateStopped},
	domain.UnitStateStarting: {
		domain.UnitStateReady,
		domain.UnitStateFailed,
		domain.UnitStateStopped,
	},
	domain.UnitStateReady: {
		domain.UnitStateRunning,
		domain.UnitStateFailed,
		domain.UnitStateStopped,
	},
	domain.UnitStateRunning: {
		domain.UnitStateDegraded,
		domain.UnitStateFailed,
		domain.UnitStateStopped,
	},
	domain.UnitStateDegraded: {
		domain.UnitStateRunning,
		domain.UnitStateFailed,
		domain.UnitStateStopped,
	},
	domain.UnitStateFailed:  {domain.UnitStateStarting, domain.UnitStateStopped},
	domain.UnitStateStopped: {},
}

// CanTransition checks if a move from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents one state change with audit metadata.
type Transition struct {
	UnitName  string
	From      State
	To        State
	Reason    string
	Seq       uint64
	Timestamp time.Time
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.UnitStateRegistered:
		return "Registered - known to the control plane, not yet started"
	case domain.UnitStateStarting:
		return "Starting - start() issued, readiness pending"
	case domain.UnitStateReady:
		return "Ready - readiness self-test passed"
	case domain.UnitStateRunning:
		return "Running - live and heartbeating"
	case domain.UnitStateDegraded:
		return "Degraded - heartbeats missed, still alive"
	case domain.UnitStateFailed:
		return "Failed - liveness lost or start exhausted"
	case domain.UnitStateStopped:
		return "Stopped - shut down on request"
	default:
		return "Unknown state"
	}
}
