package registry

import (
	"testing"

	"github.com/vietddude/overseer/internal/core/domain"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		want     bool
	}{
		{domain.UnitStateRegistered, domain.UnitStateStarting, true},
		{domain.UnitStateStarting, domain.UnitStateReady, true},
		{domain.UnitStateReady, domain.UnitStateRunning, true},
		{domain.UnitStateRunning, domain.UnitStateDegraded, true},
		{domain.UnitStateDegraded, domain.UnitStateRunning, true},
		{domain.UnitStateFailed, domain.UnitStateStarting, true},
		{domain.UnitStateRegistered, domain.UnitStateRunning, false},
		{domain.UnitStateStopped, domain.UnitStateStarting, false},
		{domain.UnitStateRunning, domain.UnitStateReady, false},
	}

	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestStateDescription_AllStatesKnown(t *testing.T) {
	for state := range ValidTransitions {
		if StateDescription(state) == "Unknown state" {
			t.Errorf("no description for %s", state)
		}
	}
}
