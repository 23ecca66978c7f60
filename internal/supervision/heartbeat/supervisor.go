package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/unit"
	"github.com/vietddude/overseer/internal/observe"
	"github.com/vietddude/overseer/internal/supervision/metrics"
)

// ErrCriticalUnit is returned when load shedding targets a tier-0 unit.
var ErrCriticalUnit = errors.New("cannot shed critical unit")

// FailureHandler is invoked when a unit is declared failed. It runs in
// its own goroutine so a slow diagnosis never blocks the watch loop.
type FailureHandler func(ctx context.Context, unitName string, reason error)

// Config holds supervisor thresholds.
type Config struct {
	Interval       time.Duration // expected heartbeat cadence
	DegradedMisses int           // missed intervals before degraded
	FailedMisses   int           // missed intervals before failed
}

// Supervisor watches heartbeats and drives liveness transitions.
// One watcher goroutine runs per criticality tier, one pump per unit.
type Supervisor struct {
	cfg     Config
	reg     registry.Registry
	runners map[string]unit.Runner
	tracker *Tracker
	onFail  FailureHandler
	bus     *observe.Bus
	log     *slog.Logger

	mu         sync.Mutex
	suppressed map[string]bool      // fault injection: incoming beats dropped
	shed       map[string]bool      // load shedding: unit paused, not flagged
	inflight   map[string]bool      // failure handling in progress
	baseline   map[string]time.Time // watch start, used before the first beat

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSupervisor creates a heartbeat supervisor.
func NewSupervisor(
	cfg Config,
	reg registry.Registry,
	runners map[string]unit.Runner,
	tracker *Tracker,
	onFail FailureHandler,
	bus *observe.Bus,
) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.DegradedMisses <= 0 {
		cfg.DegradedMisses = 2
	}
	if cfg.FailedMisses <= cfg.DegradedMisses {
		cfg.FailedMisses = cfg.DegradedMisses * 2
	}
	if tracker == nil {
		tracker = NewTracker(64)
	}
	return &Supervisor{
		cfg:        cfg,
		reg:        reg,
		runners:    runners,
		tracker:    tracker,
		onFail:     onFail,
		bus:        bus,
		log:        slog.Default(),
		suppressed: make(map[string]bool),
		shed:       make(map[string]bool),
		inflight:   make(map[string]bool),
		baseline:   make(map[string]time.Time),
	}
}

// Tracker exposes the heartbeat history for bundle capture.
func (s *Supervisor) Tracker() *Tracker { return s.tracker }

// Start launches the pump and watcher goroutines. Call Stop to halt.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	now := time.Now()
	s.mu.Lock()
	for name := range s.runners {
		s.baseline[name] = now
	}
	s.mu.Unlock()

	for name, runner := range s.runners {
		s.wg.Add(1)
		go s.pump(ctx, name, runner)
	}
	for _, tier := range s.reg.Tiers() {
		s.wg.Add(1)
		go s.watchTier(ctx, tier)
	}
}

// Stop halts all goroutines and waits for them to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Suppress toggles heartbeat delivery for a unit. Suppressed beats are
// dropped before they reach the registry, so the unit looks dead to the
// watcher while its process keeps running.
func (s *Supervisor) Suppress(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.suppressed[name] = true
	} else {
		delete(s.suppressed, name)
	}
}

// Shed pauses supervision of a non-critical unit. A shed unit is
// neither restarted nor flagged while paused.
func (s *Supervisor) Shed(name string) error {
	u, err := s.reg.Get(name)
	if err != nil {
		return err
	}
	if u.Tier == 0 {
		return fmt.Errorf("%w: %s", ErrCriticalUnit, name)
	}
	s.mu.Lock()
	s.shed[name] = true
	s.mu.Unlock()
	s.publish(domain.NewEvent("heartbeat", domain.EventHeartbeat, name, "shed"))
	return nil
}

// Unshed resumes supervision. The staleness clock restarts so beats
// missed while paused do not immediately flag the unit.
func (s *Supervisor) Unshed(name string) {
	s.mu.Lock()
	delete(s.shed, name)
	s.baseline[name] = time.Now()
	s.mu.Unlock()
	s.publish(domain.NewEvent("heartbeat", domain.EventHeartbeat, name, "resumed"))
}

// IsShed reports whether a unit is currently paused.
func (s *Supervisor) IsShed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shed[name]
}

// pump forwards a unit's heartbeats into the registry and tracker.
func (s *Supervisor) pump(ctx context.Context, name string, runner unit.Runner) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case at, ok := <-runner.Heartbeats():
			if !ok {
				return
			}
			s.mu.Lock()
			dropped := s.suppressed[name]
			s.mu.Unlock()
			if dropped {
				continue
			}
			if err := s.reg.RecordHeartbeat(name, at); err != nil {
				s.log.Debug("Heartbeat dropped", "unit", name, "error", err)
				continue
			}
			s.tracker.Record(name, at)
		}
	}
}

// watchTier scans one tier's units every interval and applies the
// degraded/failed thresholds.
func (s *Supervisor) watchTier(ctx context.Context, tier int) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, u := range s.reg.ListByTier(tier) {
				s.check(ctx, u)
			}
		}
	}
}

func (s *Supervisor) check(ctx context.Context, u *domain.Unit) {
	if u.State != domain.UnitStateRunning && u.State != domain.UnitStateDegraded {
		return
	}
	s.mu.Lock()
	if s.shed[u.Name] {
		s.mu.Unlock()
		return
	}
	last := u.LastHeartbeat
	if last.IsZero() {
		last = s.baseline[u.Name]
	}
	s.mu.Unlock()

	missed := int(time.Since(last) / s.cfg.Interval)

	switch {
	case missed >= s.cfg.FailedMisses:
		s.declareFailed(ctx, u, missed)
	case missed >= s.cfg.DegradedMisses && u.State == domain.UnitStateRunning:
		metrics.HeartbeatsMissedTotal.WithLabelValues(u.Name).Inc()
		reason := fmt.Sprintf("%d heartbeat intervals missed", missed)
		if err := s.reg.Transition(u.Name, domain.UnitStateDegraded, reason); err != nil {
			s.log.Warn("Degraded transition rejected", "unit", u.Name, "error", err)
			return
		}
		s.log.Warn("Unit degraded", "unit", u.Name, "missed", missed)
		s.publish(domain.NewEvent("heartbeat", domain.EventHeartbeat, u.Name, "degraded").
			With("missed", missed))
	case missed < s.cfg.DegradedMisses && u.State == domain.UnitStateDegraded:
		if err := s.reg.Transition(u.Name, domain.UnitStateRunning, "heartbeats recovered"); err != nil {
			return
		}
		s.log.Info("Unit recovered", "unit", u.Name)
		s.publish(domain.NewEvent("heartbeat", domain.EventHeartbeat, u.Name, "recovered"))
	}
}

func (s *Supervisor) declareFailed(ctx context.Context, u *domain.Unit, missed int) {
	metrics.HeartbeatsMissedTotal.WithLabelValues(u.Name).Inc()
	reason := fmt.Errorf("%s: %d heartbeat intervals missed", domain.CategoryHeartbeatTimeout, missed)

	if err := s.reg.Transition(u.Name, domain.UnitStateFailed, reason.Error()); err != nil {
		s.log.Warn("Failed transition rejected", "unit", u.Name, "error", err)
		return
	}
	s.log.Error("Unit failed", "unit", u.Name, "missed", missed)
	s.publish(domain.NewEvent("heartbeat", domain.EventHeartbeat, u.Name, "failed").
		With("missed", missed))

	updated, err := s.reg.Get(u.Name)
	if err == nil && updated.Terminal() {
		s.emergency(updated)
		return
	}

	s.mu.Lock()
	if s.inflight[u.Name] {
		s.mu.Unlock()
		return
	}
	s.inflight[u.Name] = true
	s.mu.Unlock()

	if s.onFail == nil {
		s.clearInflight(u.Name)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearInflight(u.Name)
		s.onFail(ctx, u.Name, reason)
	}()
}

// emergency flags a unit whose restart budget is spent. This is the
// operator surface: the supervisor stops acting and starts shouting.
func (s *Supervisor) emergency(u *domain.Unit) {
	metrics.EmergenciesTotal.WithLabelValues(u.Name).Inc()
	s.log.Error("EMERGENCY: restart budget exhausted, operator intervention required",
		"unit", u.Name,
		"restarts", u.RestartCount,
		"last_error", u.LastError,
	)
	s.publish(domain.NewEvent("heartbeat", domain.EventEmergency, u.Name, "budget_exhausted").
		With("restarts", u.RestartCount).
		With("last_error", u.LastError))
}

func (s *Supervisor) clearInflight(name string) {
	s.mu.Lock()
	delete(s.inflight, name)
	s.mu.Unlock()
}

func (s *Supervisor) publish(ev *domain.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}
