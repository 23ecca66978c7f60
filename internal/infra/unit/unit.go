// Package unit defines the contract supervised components implement and
// adapters for common unit shapes. The control plane only ever talks to
// this interface; unit internals stay opaque.
package unit

import (
	"context"
	"time"
)

// Runner is the contract a supervised unit implements.
type Runner interface {
	// Start launches the unit. Idempotent start is not required; the
	// orchestrator never calls Start on a running unit.
	Start(ctx context.Context) error

	// Stop shuts the unit down.
	Stop(ctx context.Context) error

	// IsReady runs the unit's readiness self-test.
	IsReady(ctx context.Context) (bool, error)

	// Heartbeats returns the channel the unit emits liveness ticks on.
	// The channel stays valid across restarts.
	Heartbeats() <-chan time.Time
}
