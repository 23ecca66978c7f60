package harness

import (
	"context"
	"fmt"

	"github.com/vietddude/overseer/internal/core/domain"
)

// Hooks are the seams the harness injects faults through. Each is wired
// by the control plane onto the real supervisor, runners and bus, so an
// injected fault takes the same path a production fault would.
type Hooks struct {
	// Kill terminates a unit's process out from under the supervisor.
	Kill func(ctx context.Context, unit string) error
	// Suppress toggles heartbeat delivery for a unit.
	Suppress func(unit string, on bool)
	// Saturate toggles synthetic resource pressure on a unit.
	Saturate func(ctx context.Context, unit string, on bool) error
	// Flood publishes a burst of n filler events onto the bus.
	Flood func(ctx context.Context, n int) error
	// Corrupt toggles a corrupted configuration for a unit.
	Corrupt func(ctx context.Context, unit string, on bool) error
}

// floodBase is the flood size at difficulty 1; each difficulty level
// doubles it.
const floodBase = 256

// inject applies one fault. The returned revert func undoes whatever
// needs undoing; it is safe to call after a failed scenario.
func (h Hooks) inject(ctx context.Context, sc domain.Scenario) (revert func(context.Context), err error) {
	noop := func(context.Context) {}

	switch sc.Fault {
	case domain.FaultKillUnit:
		if h.Kill == nil {
			return noop, fmt.Errorf("kill hook not wired")
		}
		return noop, h.Kill(ctx, sc.Target)

	case domain.FaultSuppressHeartbeat:
		if h.Suppress == nil {
			return noop, fmt.Errorf("suppress hook not wired")
		}
		h.Suppress(sc.Target, true)
		return func(context.Context) { h.Suppress(sc.Target, false) }, nil

	case domain.FaultSaturateResource:
		if h.Saturate == nil {
			return noop, fmt.Errorf("saturate hook not wired")
		}
		if err := h.Saturate(ctx, sc.Target, true); err != nil {
			return noop, err
		}
		return func(ctx context.Context) { _ = h.Saturate(ctx, sc.Target, false) }, nil

	case domain.FaultFloodQueue:
		if h.Flood == nil {
			return noop, fmt.Errorf("flood hook not wired")
		}
		n := floodBase
		for d := 1; d < sc.Difficulty; d++ {
			n *= 2
		}
		return noop, h.Flood(ctx, n)

	case domain.FaultCorruptConfig:
		if h.Corrupt == nil {
			return noop, fmt.Errorf("corrupt hook not wired")
		}
		if err := h.Corrupt(ctx, sc.Target, true); err != nil {
			return noop, err
		}
		return func(ctx context.Context) { _ = h.Corrupt(ctx, sc.Target, false) }, nil

	default:
		return noop, fmt.Errorf("unknown fault kind %q", sc.Fault)
	}
}
