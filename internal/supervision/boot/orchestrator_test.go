package boot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/unit"
)

// ============================================================
// Mocks
// ============================================================

type fakeRunner struct {
	mu         sync.Mutex
	startErr   error
	neverReady bool
	readyAfter int // IsReady calls before reporting ready
	startCalls int
	stopCalls  int
	readyCalls int
	hb         chan time.Time
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{hb: make(chan time.Time)}
}

func (f *fakeRunner) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeRunner) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeRunner) IsReady(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyCalls++
	if f.neverReady {
		return false, nil
	}
	return f.readyCalls > f.readyAfter, nil
}

func (f *fakeRunner) Heartbeats() <-chan time.Time { return f.hb }

func (f *fakeRunner) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

func fastConfig() Config {
	return Config{
		Parallelism:       4,
		ReadinessInterval: time.Millisecond,
		ReadinessTimeout:  20 * time.Millisecond,
		Backoff:           Backoff{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		WarmupAttempts:    1,
	}
}

// ============================================================
// Boot
// ============================================================

func TestBoot_AllUnitsRunning(t *testing.T) {
	reg := registry.New()
	runners := map[string]fakeRunnerEntry{
		"db":  {spec: domain.UnitSpec{Name: "db", Tier: 0, MaxRestarts: 3}},
		"api": {spec: domain.UnitSpec{Name: "api", Tier: 1, DependsOn: []string{"db"}, MaxRestarts: 3}},
	}
	o, rs := buildOrchestrator(t, reg, runners, fastConfig())

	report, err := o.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	if len(report.Started) != 2 {
		t.Fatalf("expected 2 started units, got %v", report.Started)
	}
	for name := range runners {
		u, _ := reg.Get(name)
		if u.State != domain.UnitStateRunning {
			t.Errorf("unit %s: expected running, got %s", name, u.State)
		}
		if rs[name].starts() != 1 {
			t.Errorf("unit %s: expected 1 start, got %d", name, rs[name].starts())
		}
	}
}

func TestBoot_RetriesThenSucceeds(t *testing.T) {
	reg := registry.New()
	runners := map[string]fakeRunnerEntry{
		"flaky": {
			spec:   domain.UnitSpec{Name: "flaky", Tier: 1, MaxRestarts: 3},
			mutate: func(f *fakeRunner) { f.readyAfter = 25 }, // ~25ms, past one timeout
		},
	}
	o, rs := buildOrchestrator(t, reg, runners, fastConfig())

	report, err := o.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	if len(report.Degraded) != 0 {
		t.Fatalf("expected no degraded units, got %v", report.Degraded)
	}
	u, _ := reg.Get("flaky")
	if u.State != domain.UnitStateRunning {
		t.Fatalf("expected running, got %s", u.State)
	}
	if u.RestartCount < 2 {
		t.Errorf("expected at least 2 attempts charged, got %d", u.RestartCount)
	}
	if rs["flaky"].starts() < 2 {
		t.Errorf("expected at least 2 starts, got %d", rs["flaky"].starts())
	}
}

func TestBoot_NonCriticalExhaustsBudgetAndContinues(t *testing.T) {
	// A tier-2 unit that never passes readiness burns its three
	// attempts, lands in terminal failed, and boot still brings up the
	// tier-3 unit behind it in the schedule.
	reg := registry.New()
	runners := map[string]fakeRunnerEntry{
		"cache": {
			spec:   domain.UnitSpec{Name: "cache", Tier: 2, MaxRestarts: 3},
			mutate: func(f *fakeRunner) { f.neverReady = true },
		},
		"reporting": {spec: domain.UnitSpec{Name: "reporting", Tier: 3, MaxRestarts: 3}},
	}
	o, rs := buildOrchestrator(t, reg, runners, fastConfig())

	report, err := o.Boot(context.Background())
	if err != nil {
		t.Fatalf("Boot() should continue past non-critical failure, got: %v", err)
	}

	cache, _ := reg.Get("cache")
	if cache.State != domain.UnitStateFailed {
		t.Fatalf("cache: expected failed, got %s", cache.State)
	}
	if !cache.Terminal() {
		t.Error("cache: expected terminal state after exhausting restarts")
	}
	if cache.RestartCount != 3 {
		t.Errorf("cache: expected exactly 3 attempts, got %d", cache.RestartCount)
	}
	if rs["cache"].starts() != 3 {
		t.Errorf("cache: expected 3 starts, got %d", rs["cache"].starts())
	}

	rep, _ := reg.Get("reporting")
	if rep.State != domain.UnitStateRunning {
		t.Errorf("reporting: expected running, got %s", rep.State)
	}
	if len(report.Degraded) != 1 || report.Degraded[0] != "cache" {
		t.Errorf("expected degraded=[cache], got %v", report.Degraded)
	}
}

func TestBoot_CriticalFailureAborts(t *testing.T) {
	reg := registry.New()
	runners := map[string]fakeRunnerEntry{
		"db": {
			spec:   domain.UnitSpec{Name: "db", Tier: 0, MaxRestarts: 2},
			mutate: func(f *fakeRunner) { f.startErr = errors.New("bind: address in use") },
		},
	}
	o, _ := buildOrchestrator(t, reg, runners, fastConfig())

	report, err := o.Boot(context.Background())
	if !errors.Is(err, ErrBootAborted) {
		t.Fatalf("expected ErrBootAborted, got %v", err)
	}
	if report == nil || !report.Aborted {
		t.Fatal("expected aborted report")
	}
}

func TestBoot_WarmupFailureShortCircuits(t *testing.T) {
	reg := registry.New()
	runners := map[string]fakeRunnerEntry{
		"db": {spec: domain.UnitSpec{Name: "db", Tier: 0, MaxRestarts: 3}},
	}
	o, rs := buildOrchestrator(t, reg, runners, fastConfig())
	o.warmup = []WarmupCheck{{
		Name:  "postgres",
		Probe: func(ctx context.Context) error { return errors.New("connection refused") },
	}}

	if _, err := o.Boot(context.Background()); err == nil {
		t.Fatal("expected warmup error")
	}
	if rs["db"].starts() != 0 {
		t.Errorf("no unit should start after failed warmup, got %d starts", rs["db"].starts())
	}
}

func TestBoot_PerUnitReadinessTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.ReadinessTimeout = time.Millisecond
	cfg.ReadinessTimeouts = map[string]time.Duration{"slow": 50 * time.Millisecond}

	reg := registry.New()
	runners := map[string]fakeRunnerEntry{
		"slow": {
			spec:   domain.UnitSpec{Name: "slow", Tier: 1, MaxRestarts: 1},
			mutate: func(f *fakeRunner) { f.readyAfter = 10 },
		},
	}
	o, _ := buildOrchestrator(t, reg, runners, cfg)

	if _, err := o.Boot(context.Background()); err != nil {
		t.Fatalf("Boot() error: %v", err)
	}
	u, _ := reg.Get("slow")
	if u.State != domain.UnitStateRunning {
		t.Fatalf("expected running under extended timeout, got %s", u.State)
	}
}

// ============================================================
// Helpers
// ============================================================

type fakeRunnerEntry struct {
	spec   domain.UnitSpec
	mutate func(*fakeRunner)
}

func buildOrchestrator(
	t *testing.T,
	reg registry.Registry,
	entries map[string]fakeRunnerEntry,
	cfg Config,
) (*Orchestrator, map[string]*fakeRunner) {
	t.Helper()

	// Register dependency-free units first so specs can reference them.
	pending := make(map[string]domain.UnitSpec, len(entries))
	for name, e := range entries {
		pending[name] = e.spec
	}
	for len(pending) > 0 {
		progressed := false
		for name, spec := range pending {
			ok := true
			for _, dep := range spec.DependsOn {
				if _, stillPending := pending[dep]; stillPending && dep != name {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			if _, err := reg.Register(spec); err != nil {
				t.Fatalf("register %s: %v", name, err)
			}
			delete(pending, name)
			progressed = true
		}
		if !progressed {
			t.Fatal("unresolvable dependencies in test fixture")
		}
	}

	fakes := make(map[string]*fakeRunner, len(entries))
	runners := make(map[string]unit.Runner, len(entries))
	for name, e := range entries {
		f := newFakeRunner()
		if e.mutate != nil {
			e.mutate(f)
		}
		fakes[name] = f
		runners[name] = f
	}

	return NewOrchestrator(cfg, reg, runners, nil, nil), fakes
}
