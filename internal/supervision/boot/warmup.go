package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
)

// WarmupCheck validates one shared prerequisite before any unit starts.
// A failing check short-circuits boot with a precise diagnostic instead
// of letting every unit discover the same broken dependency.
type WarmupCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Warmup runs every check with bounded retries. The first check that
// still fails after its retries aborts the phase.
func Warmup(ctx context.Context, checks []WarmupCheck, attempts int) error {
	if attempts <= 0 {
		attempts = 3
	}
	for _, check := range checks {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(uint(attempts)),
			retry.Delay(500*time.Millisecond),
			retry.MaxDelay(5*time.Second),
		)
		if err := r.Do(func() error { return check.Probe(ctx) }); err != nil {
			return fmt.Errorf("warmup check %q failed: %w", check.Name, err)
		}
	}
	return nil
}
