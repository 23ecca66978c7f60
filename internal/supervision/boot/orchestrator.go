package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/unit"
	"github.com/vietddude/overseer/internal/observe"
	"github.com/vietddude/overseer/internal/supervision/metrics"
)

// ErrBootAborted is returned when a tier-0 unit cannot be brought up.
var ErrBootAborted = errors.New("boot aborted")

// Config holds orchestrator settings.
type Config struct {
	Parallelism       int
	ReadinessInterval time.Duration
	ReadinessTimeout  time.Duration
	Backoff           Backoff
	WarmupAttempts    int

	// ReadinessTimeouts overrides ReadinessTimeout per unit.
	ReadinessTimeouts map[string]time.Duration
}

// Report summarizes a boot run.
type Report struct {
	Waves       [][]string
	Started     []string
	Degraded    []string // failed non-critical units, boot continued
	TimeToReady map[string]time.Duration
	Aborted     bool
}

// Orchestrator brings the fleet up in dependency order.
type Orchestrator struct {
	cfg     Config
	reg     registry.Registry
	runners map[string]unit.Runner
	warmup  []WarmupCheck
	bus     *observe.Bus
	log     *slog.Logger
}

// NewOrchestrator creates a boot orchestrator.
func NewOrchestrator(
	cfg Config,
	reg registry.Registry,
	runners map[string]unit.Runner,
	warmup []WarmupCheck,
	bus *observe.Bus,
) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.ReadinessInterval <= 0 {
		cfg.ReadinessInterval = 500 * time.Millisecond
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 30 * time.Second
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	return &Orchestrator{
		cfg:     cfg,
		reg:     reg,
		runners: runners,
		warmup:  warmup,
		bus:     bus,
		log:     slog.Default(),
	}
}

// Boot validates prerequisites and starts every registered unit in
// dependency-ordered waves. A tier-0 failure aborts; lower-tier failures
// leave the fleet degraded but booted.
func (o *Orchestrator) Boot(ctx context.Context) (*Report, error) {
	if err := Warmup(ctx, o.warmup, o.cfg.WarmupAttempts); err != nil {
		o.publish(domain.NewEvent("boot", domain.EventBoot, "warmup", "failed").
			With("error", err.Error()))
		return nil, err
	}

	waves, err := Waves(o.reg.List())
	if err != nil {
		return nil, err
	}

	report := &Report{
		Waves:       waves,
		TimeToReady: make(map[string]time.Duration),
	}
	var mu sync.Mutex

	for i, wave := range waves {
		o.log.Info("Starting boot wave", "wave", i, "units", wave)

		g, waveCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Parallelism)

		for _, name := range wave {
			g.Go(func() error {
				u, err := o.reg.Get(name)
				if err != nil {
					return err
				}
				started := time.Now()
				if err := o.startUnit(waveCtx, u); err != nil {
					if u.Tier == 0 {
						return fmt.Errorf("%w: tier-0 unit %s: %v", ErrBootAborted, name, err)
					}
					o.log.Warn("Unit failed to boot, continuing degraded", "unit", name, "error", err)
					mu.Lock()
					report.Degraded = append(report.Degraded, name)
					mu.Unlock()
					return nil
				}
				ttr := time.Since(started)
				metrics.TimeToReady.WithLabelValues(name).Observe(ttr.Seconds())
				mu.Lock()
				report.Started = append(report.Started, name)
				report.TimeToReady[name] = ttr
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			report.Aborted = true
			o.publish(domain.NewEvent("boot", domain.EventBoot, "fleet", "aborted").
				With("error", err.Error()))
			return report, err
		}
	}

	o.publish(domain.NewEvent("boot", domain.EventBoot, "fleet", "complete").
		With("started", len(report.Started)).
		With("degraded", len(report.Degraded)))
	return report, nil
}

// startUnit drives one unit to Running, retrying with backoff until its
// restart budget is spent. The registry charges the budget on every
// entry into Starting.
func (o *Orchestrator) startUnit(ctx context.Context, u *domain.Unit) error {
	runner, ok := o.runners[u.Name]
	if !ok {
		return fmt.Errorf("no runner for unit %s", u.Name)
	}

	attempt := 0
	for {
		if err := o.reg.Transition(u.Name, domain.UnitStateStarting, "boot"); err != nil {
			// Budget exhausted or dependency went away: surface, don't retry.
			return err
		}
		attempt++
		if attempt > 1 {
			metrics.BootRetriesTotal.WithLabelValues(u.Name).Inc()
		}

		cause := o.attemptStart(ctx, u.Name, runner)
		if cause == nil {
			if err := o.reg.Transition(u.Name, domain.UnitStateReady, "readiness passed"); err != nil {
				return err
			}
			if err := o.reg.Transition(u.Name, domain.UnitStateRunning, "boot complete"); err != nil {
				return err
			}
			o.publish(domain.NewEvent("boot", domain.EventBoot, u.Name, "running").
				With("attempt", attempt))
			return nil
		}

		_ = runner.Stop(ctx) // best effort before the next attempt
		if err := o.reg.Transition(u.Name, domain.UnitStateFailed, cause.Error()); err != nil {
			return err
		}
		o.publish(domain.NewEvent("boot", domain.EventBoot, u.Name, "attempt_failed").
			With("attempt", attempt).
			With("error", cause.Error()))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.cfg.Backoff.Delay(attempt - 1)):
		}
	}
}

// attemptStart performs one start + readiness cycle. A nil return means
// the unit passed its self-test.
func (o *Orchestrator) attemptStart(ctx context.Context, name string, runner unit.Runner) error {
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("%s: %w", domain.CategoryStartFailure, err)
	}

	timeout := o.cfg.ReadinessTimeout
	if t, ok := o.cfg.ReadinessTimeouts[name]; ok && t > 0 {
		timeout = t
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(o.cfg.ReadinessInterval)
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

func (o *Orchestrator) publish(ev *domain.Event) {
	if o.bus != nil {
		o.bus.Publish(ev)
	}
}
