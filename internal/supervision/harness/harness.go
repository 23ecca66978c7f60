package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/storage"
	"github.com/vietddude/overseer/internal/observe"
	"github.com/vietddude/overseer/internal/supervision/metrics"
)

// Safeguard names a scenario can expect.
const (
	SafeguardRemediation = "remediation" // incident resolved, unit running again
	SafeguardRestart     = "restart"     // alias of remediation
	SafeguardShed        = "shed"        // unit paused by load shedding
	SafeguardEmergency   = "emergency"   // operator escalation raised
)

// Config holds harness settings.
type Config struct {
	Interval         time.Duration // pause between scenarios in the run loop
	Poll             time.Duration // recovery polling cadence
	PassesToEscalate int           // consecutive passes before difficulty rises
	SLATighten       float64       // SLA multiplier on escalation, in (0,1)
	MaxDifficulty    int
	Scenarios        []domain.Scenario
}

// runState is the harness's mutable view of one scenario: SLA and
// difficulty drift as the fleet keeps passing.
type runState struct {
	scenario domain.Scenario
	passes   int
}

// Harness continuously injects faults and verifies the control plane
// heals within each scenario's SLA. Recovery happens through the same
// supervisor/recognition/playbook path as a production fault.
type Harness struct {
	cfg       Config
	reg       registry.Registry
	incidents storage.IncidentRepository
	ledger    storage.ScenarioLedgerRepository
	hooks     Hooks
	isShed    func(unit string) bool
	bus       *observe.Bus
	log       *slog.Logger

	mu     sync.Mutex
	states map[string]*runState
}

// New creates a harness over the configured scenarios.
func New(
	cfg Config,
	reg registry.Registry,
	incidents storage.IncidentRepository,
	ledger storage.ScenarioLedgerRepository,
	hooks Hooks,
	isShed func(unit string) bool,
	bus *observe.Bus,
) *Harness {
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.PassesToEscalate <= 0 {
		cfg.PassesToEscalate = 5
	}
	if cfg.SLATighten <= 0 || cfg.SLATighten >= 1 {
		cfg.SLATighten = 0.75
	}
	if cfg.MaxDifficulty <= 0 {
		cfg.MaxDifficulty = 5
	}

	states := make(map[string]*runState, len(cfg.Scenarios))
	for _, sc := range cfg.Scenarios {
		if sc.Difficulty <= 0 {
			sc.Difficulty = 1
		}
		states[sc.Name] = &runState{scenario: sc}
	}
	return &Harness{
		cfg:       cfg,
		reg:       reg,
		incidents: incidents,
		ledger:    ledger,
		hooks:     hooks,
		isShed:    isShed,
		bus:       bus,
		log:       slog.Default(),
		states:    states,
	}
}

// Hydrate resumes escalation state from the persisted ledger so a
// restart does not reset difficulty back to baseline.
func (h *Harness) Hydrate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, st := range h.states {
		last, err := h.ledger.Last(ctx, name)
		if err != nil {
			return err
		}
		if last == nil {
			continue
		}
		if last.Passed {
			st.passes = last.ConsecutivePasses
		}
		if last.SLA > 0 {
			st.scenario.SLA = last.SLA
		}
		if last.Difficulty > 0 {
			st.scenario.Difficulty = last.Difficulty
		}
	}
	return nil
}

// Run cycles through all scenarios until ctx is cancelled.
func (h *Harness) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, name := range h.scenarioNames() {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if _, err := h.RunByName(ctx, name); err != nil {
					h.log.Error("Scenario run errored", "scenario", name, "error", err)
				}
			}
		}
	}
}

// RunByName runs one configured scenario at its current difficulty.
func (h *Harness) RunByName(ctx context.Context, name string) (*domain.ScenarioResult, error) {
	h.mu.Lock()
	st, ok := h.states[name]
	if !ok {
		h.mu.Unlock()
		return nil, fmt.Errorf("unknown scenario %q", name)
	}
	sc := st.scenario
	h.mu.Unlock()

	result, err := h.RunScenario(ctx, sc)
	if err != nil {
		return nil, err
	}
	h.settle(ctx, name, result)
	return result, nil
}

// RunScenario injects the scenario's fault and polls until the expected
// safeguard fires and steady state returns, or the SLA elapses.
func (h *Harness) RunScenario(ctx context.Context, sc domain.Scenario) (*domain.ScenarioResult, error) {
	result := &domain.ScenarioResult{
		RunID:        uuid.New().String(),
		ScenarioName: sc.Name,
		SLA:          sc.SLA,
		Difficulty:   sc.Difficulty,
		StartedAt:    time.Now(),
	}

	h.log.Info("Injecting fault",
		"scenario", sc.Name, "fault", string(sc.Fault),
		"target", sc.Target, "sla", sc.SLA, "difficulty", sc.Difficulty)
	h.publish(domain.NewEvent("harness", domain.EventScenario, sc.Name, "injected").
		With("fault", string(sc.Fault)).
		With("target", sc.Target))

	revert, err := h.hooks.inject(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("inject %s: %w", sc.Fault, err)
	}

	deadline := result.StartedAt.Add(sc.SLA)
	ticker := time.NewTicker(h.cfg.Poll)
	defer ticker.Stop()

poll:
	for {
		recovered, incidentID, detail := h.observe(ctx, sc, result.StartedAt)
		if recovered {
			result.Passed = true
			result.IncidentID = incidentID
			result.RecoveryTime = time.Since(result.StartedAt)
			result.Detail = detail
			break poll
		}
		if !time.Now().Before(deadline) {
			result.Detail = fmt.Sprintf("safeguard %q did not fire within %v", sc.ExpectedSafeguard, sc.SLA)
			break poll
		}
		select {
		case <-ctx.Done():
			revert(ctx)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
	revert(ctx)

	if !result.Passed {
		result.IncidentID = h.recordMiss(ctx, sc, result)
	}

	outcome := "passed"
	if !result.Passed {
		outcome = "failed"
	}
	metrics.ScenariosTotal.WithLabelValues(sc.Name, outcome).Inc()
	h.publish(domain.NewEvent("harness", domain.EventScenario, sc.Name, outcome).
		With("recovery_ms", result.RecoveryTime.Milliseconds()).
		With("sla_ms", sc.SLA.Milliseconds()).
		With("difficulty", sc.Difficulty))
	h.log.Info("Scenario finished",
		"scenario", sc.Name, "passed", result.Passed,
		"recovery", result.RecoveryTime, "detail", result.Detail)
	return result, nil
}

// observe checks whether the expected safeguard has fired and the
// target is back in steady state.
func (h *Harness) observe(ctx context.Context, sc domain.Scenario, since time.Time) (bool, string, string) {
	switch sc.ExpectedSafeguard {
	case SafeguardShed:
		if h.isShed != nil && h.isShed(sc.Target) {
			return true, "", "target shed"
		}
		return false, "", ""

	case SafeguardEmergency:
		if h.bus == nil {
			return false, "", ""
		}
		for _, ev := range h.bus.Recent(128) {
			if ev.Action == domain.EventEmergency && ev.Resource == sc.Target && !ev.Timestamp.Before(since) {
				return true, "", "emergency raised"
			}
		}
		return false, "", ""

	default: // remediation / restart
		recent, err := h.incidents.ListRecent(ctx, 64)
		if err != nil {
			h.log.Warn("Incident poll failed", "error", err)
			return false, "", ""
		}
		for _, inc := range recent {
			if inc.UnitName != sc.Target || inc.CreatedAt.Before(since) {
				continue
			}
			if inc.Status != domain.IncidentStatusClosed || inc.Outcome != domain.OutcomeResolved {
				continue
			}
			u, err := h.reg.Get(sc.Target)
			if err != nil {
				return false, "", ""
			}
			if u.State == domain.UnitStateRunning {
				return true, inc.ID, "incident resolved, unit running"
			}
		}
		return false, "", ""
	}
}

// recordMiss files the failed scenario as a synthetic incident so a
// safeguard that never fired still leaves an audit trail.
func (h *Harness) recordMiss(ctx context.Context, sc domain.Scenario, result *domain.ScenarioResult) string {
	inc := &domain.Incident{
		ID:       uuid.New().String(),
		UnitName: sc.Target,
		Bundle: &domain.DiagnosticBundle{
			UnitName:   sc.Target,
			Category:   domain.CategoryUnknown,
			Message:    result.Detail,
			Context:    map[string]string{"scenario": sc.Name, "fault": string(sc.Fault)},
			CapturedAt: time.Now(),
		},
		Synthetic: true,
		Outcome:   domain.OutcomePending,
		Status:    domain.IncidentStatusOpen,
		CreatedAt: time.Now(),
	}
	if err := h.incidents.Create(ctx, inc); err != nil {
		h.log.Warn("Synthetic incident create failed", "scenario", sc.Name, "error", err)
		return ""
	}
	if err := h.incidents.Close(ctx, inc.ID, domain.OutcomeTimeout, ""); err != nil {
		h.log.Warn("Synthetic incident close failed", "scenario", sc.Name, "error", err)
	}
	return inc.ID
}

// settle appends the ledger row and applies escalation. Every streak of
// PassesToEscalate consecutive passes tightens the SLA and raises
// difficulty up to the configured maximum; a failure resets the streak.
func (h *Harness) settle(ctx context.Context, name string, result *domain.ScenarioResult) {
	h.mu.Lock()
	st := h.states[name]
	if result.Passed {
		st.passes++
	} else {
		st.passes = 0
	}

	escalated := false
	if result.Passed && st.passes%h.cfg.PassesToEscalate == 0 && st.scenario.Difficulty < h.cfg.MaxDifficulty {
		st.scenario.SLA = time.Duration(float64(st.scenario.SLA) * h.cfg.SLATighten)
		st.scenario.Difficulty++
		escalated = true
	}
	entry := &domain.LedgerEntry{
		ID:                uuid.New().String(),
		ScenarioName:      name,
		Passed:            result.Passed,
		ConsecutivePasses: st.passes,
		SLA:               st.scenario.SLA,
		Difficulty:        st.scenario.Difficulty,
		RecoveryTime:      result.RecoveryTime,
		RunAt:             time.Now(),
	}
	h.mu.Unlock()

	if err := h.ledger.Append(ctx, entry); err != nil {
		h.log.Warn("Ledger append failed", "scenario", name, "error", err)
	}
	if escalated {
		h.log.Info("Scenario escalated",
			"scenario", name, "sla", entry.SLA, "difficulty", entry.Difficulty)
		h.publish(domain.NewEvent("harness", domain.EventScenario, name, "escalated").
			With("sla_ms", entry.SLA.Milliseconds()).
			With("difficulty", entry.Difficulty))
	}
}

// Scenario returns the current mutable state of a scenario.
func (h *Harness) Scenario(name string) (domain.Scenario, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.states[name]
	if !ok {
		return domain.Scenario{}, false
	}
	return st.scenario, true
}

func (h *Harness) scenarioNames() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.states))
	for _, sc := range h.cfg.Scenarios {
		if _, ok := h.states[sc.Name]; ok {
			names = append(names, sc.Name)
		}
	}
	return names
}

func (h *Harness) publish(ev *domain.Event) {
	if h.bus != nil {
		h.bus.Publish(ev)
	}
}
