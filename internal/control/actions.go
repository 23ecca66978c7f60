package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/unit"
	"github.com/vietddude/overseer/internal/supervision/harness"
	"github.com/vietddude/overseer/internal/supervision/metrics"
)

// restartUnit stops a unit's runner and brings it back through the full
// Starting -> Ready -> Running cycle. Each restart consumes one attempt
// from the unit's budget; exhaustion raises an operator emergency.
func (o *Overseer) restartUnit(ctx context.Context, name string) error {
	runner, ok := o.runners[name]
	if !ok {
		return fmt.Errorf("no runner for unit %s", name)
	}

	current, err := o.reg.Get(name)
	if err != nil {
		return err
	}
	// Starting is only reachable from Registered and Failed, so a live
	// unit is taken down first.
	switch current.State {
	case domain.UnitStateReady, domain.UnitStateRunning, domain.UnitStateDegraded:
		if err := o.reg.Transition(name, domain.UnitStateFailed, "restart requested"); err != nil {
			return err
		}
	}
	_ = runner.Stop(ctx)

	if err := o.reg.Transition(name, domain.UnitStateStarting, "playbook restart"); err != nil {
		if errors.Is(err, registry.ErrExhaustedRetries) {
			o.raiseEmergency(name, "budget_exhausted")
		}
		return err
	}

	if err := runner.Start(ctx); err != nil {
		cause := fmt.Errorf("%s: %w", domain.CategoryStartFailure, err)
		_ = o.reg.Transition(name, domain.UnitStateFailed, cause.Error())
		return cause
	}

	if err := o.awaitReady(ctx, name, runner); err != nil {
		_ = runner.Stop(ctx)
		_ = o.reg.Transition(name, domain.UnitStateFailed, err.Error())
		return err
	}

	if err := o.reg.Transition(name, domain.UnitStateReady, "readiness passed"); err != nil {
		return err
	}
	return o.reg.Transition(name, domain.UnitStateRunning, "restart complete")
}

// awaitReady polls the runner's self-test until it passes or the
// readiness window closes.
func (o *Overseer) awaitReady(ctx context.Context, name string, runner unit.Runner) error {
	interval := o.cfg.Boot.ReadinessInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	timeout := o.cfg.Boot.ReadinessTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	for _, uc := range o.cfg.Units {
		if uc.Name == name && uc.ReadinessTimeout > 0 {
			timeout = uc.ReadinessTimeout
		}
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ready, err := runner.IsReady(ctx)
		if err != nil {
			o.log.Debug("Readiness probe errored", "unit", name, "error", err)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: not ready within %v", domain.CategoryReadinessTimeout, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scaleUnit relieves synthetic resource pressure on a unit. Exec-backed
// units have no replica count, so scaling clears the saturation flag
// and records the requested limits for the operator.
func (o *Overseer) scaleUnit(ctx context.Context, name string, params map[string]string) error {
	o.faultMu.Lock()
	wasSaturated := o.saturated[name]
	delete(o.saturated, name)
	o.faultMu.Unlock()

	ev := domain.NewEvent("control", domain.EventRemediation, name, "scaled").
		With("was_saturated", wasSaturated)
	for k, v := range params {
		ev.With(k, v)
	}
	o.bus.Publish(ev)
	o.log.Info("Scaled unit", "unit", name, "was_saturated", wasSaturated)
	return nil
}

// shedUnit pauses a non-critical unit through the supervisor.
func (o *Overseer) shedUnit(ctx context.Context, name string) error {
	return o.supervisor.Shed(name)
}

// restoreUnit lifts load shedding and, when the unit is no longer
// running, brings it back through the restart path.
func (o *Overseer) restoreUnit(ctx context.Context, name string, params map[string]string) error {
	o.supervisor.Unshed(name)

	u, err := o.reg.Get(name)
	if err != nil {
		return err
	}
	if u.State == domain.UnitStateRunning || u.State == domain.UnitStateDegraded {
		return nil
	}
	return o.restartUnit(ctx, name)
}

// rewriteConfig replaces a unit's corrupted configuration with the
// last known-good one.
func (o *Overseer) rewriteConfig(ctx context.Context, name string, params map[string]string) error {
	o.faultMu.Lock()
	wasCorrupted := o.corrupted[name]
	delete(o.corrupted, name)
	o.faultMu.Unlock()

	o.bus.Publish(domain.NewEvent("control", domain.EventRemediation, name, "config_rewritten").
		With("was_corrupted", wasCorrupted))
	o.log.Info("Rewrote unit config", "unit", name, "was_corrupted", wasCorrupted)
	return nil
}

// notifyOperator surfaces a playbook notification on the operator channel.
func (o *Overseer) notifyOperator(ctx context.Context, message string, params map[string]string) error {
	ev := domain.NewEvent("control", domain.EventEmergency, params["unit"], "notify").
		With("message", message)
	o.bus.Publish(ev)
	o.log.Warn("Operator notification", "message", message, "unit", params["unit"])
	return nil
}

// raiseEmergency flags a unit for operator attention.
func (o *Overseer) raiseEmergency(name, outcome string) {
	metrics.EmergenciesTotal.WithLabelValues(name).Inc()
	o.bus.Publish(domain.NewEvent("control", domain.EventEmergency, name, outcome))
	o.log.Error("Emergency raised", "unit", name, "outcome", outcome)
}

// faultHooks wires the harness onto the live components so injected
// faults travel the production failure path.
func (o *Overseer) faultHooks() harness.Hooks {
	return harness.Hooks{
		Kill: func(ctx context.Context, name string) error {
			runner, ok := o.runners[name]
			if !ok {
				return fmt.Errorf("no runner for unit %s", name)
			}
			killer, ok := runner.(interface{ Kill() error })
			if !ok {
				return fmt.Errorf("unit %s cannot be killed", name)
			}
			return killer.Kill()
		},
		Suppress: o.supervisor.Suppress,
		Saturate: func(ctx context.Context, name string, on bool) error {
			o.faultMu.Lock()
			o.saturated[name] = on
			if !on {
				delete(o.saturated, name)
			}
			o.faultMu.Unlock()
			if on {
				go o.handleUnitFailure(
					context.WithoutCancel(ctx),
					name,
					fmt.Errorf("%s: synthetic pressure injected", domain.CategoryResource),
				)
			}
			return nil
		},
		Flood: func(ctx context.Context, n int) error {
			for i := 0; i < n; i++ {
				o.bus.Publish(domain.NewEvent("harness", domain.EventScenario, "flood", "filler").
					With("seq", i))
			}
			return nil
		},
		Corrupt: func(ctx context.Context, name string, on bool) error {
			o.faultMu.Lock()
			o.corrupted[name] = on
			if !on {
				delete(o.corrupted, name)
			}
			o.faultMu.Unlock()
			if on {
				go o.handleUnitFailure(
					context.WithoutCancel(ctx),
					name,
					fmt.Errorf("%s: malformed configuration detected", domain.CategoryConfig),
				)
			}
			return nil
		},
	}
}
