package heartbeat

import (
	"context"
	"strings"
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

type beatRunner struct {
	hb chan time.Time
}

func newBeatRunner() *beatRunner {
	return &beatRunner{hb: make(chan time.Time, 16)}
}

func (b *beatRunner) Start(ctx context.Context) error          { return nil }
func (b *beatRunner) Stop(ctx context.Context) error           { return nil }
func (b *beatRunner) IsReady(ctx context.Context) (bool, error) { return true, nil }
func (b *beatRunner) Heartbeats() <-chan time.Time             { return b.hb }

func (b *beatRunner) beat() {
	select {
	case b.hb <- time.Now():
	default:
	}
}

type failureRecorder struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (f *failureRecorder) handle(ctx context.Context, name string, reason error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.errs = append(f.errs, reason)
}

func (f *failureRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *failureRecorder) lastErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	return f.errs[len(f.errs)-1]
}

// ============================================================
// Helpers
// ============================================================

func testConfig() Config {
	return Config{
		Interval:       10 * time.Millisecond,
		DegradedMisses: 2,
		FailedMisses:   4,
	}
}

func registerRunning(t *testing.T, reg registry.Registry, spec domain.UnitSpec) {
	t.Helper()
	if _, err := reg.Register(spec); err != nil {
		t.Fatalf("register %s: %v", spec.Name, err)
	}
	for _, st := range []domain.UnitState{
		domain.UnitStateStarting, domain.UnitStateReady, domain.UnitStateRunning,
	} {
		if err := reg.Transition(spec.Name, st, "test"); err != nil {
			t.Fatalf("transition %s to %s: %v", spec.Name, st, err)
		}
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func stateOf(t *testing.T, reg registry.Registry, name string) domain.UnitState {
	t.Helper()
	u, err := reg.Get(name)
	if err != nil {
		t.Fatalf("get %s: %v", name, err)
	}
	return u.State
}

// ============================================================
// Tracker
// ============================================================

func TestTracker_BoundedHistory(t *testing.T) {
	tr := NewTracker(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		tr.Record("api", base.Add(time.Duration(i)*time.Second))
	}

	h := tr.History("api", 0)
	if len(h) != 3 {
		t.Fatalf("expected 3 retained beats, got %d", len(h))
	}
	if !h[0].Equal(base.Add(2 * time.Second)) {
		t.Errorf("expected oldest retained beat at +2s, got %v", h[0])
	}
	last, ok := tr.Last("api")
	if !ok || !last.Equal(base.Add(4*time.Second)) {
		t.Errorf("expected last beat at +4s, got %v (ok=%v)", last, ok)
	}

	tr.Forget("api")
	if _, ok := tr.Last("api"); ok {
		t.Error("expected empty history after Forget")
	}
}

// ============================================================
// Supervisor
// ============================================================

func TestSupervisor_SteadyBeatsKeepUnitRunning(t *testing.T) {
	reg := registry.New()
	registerRunning(t, reg, domain.UnitSpec{Name: "api", Tier: 1, MaxRestarts: 3})
	runner := newBeatRunner()

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"api": runner}, nil, nil, nil)
	s.Start(context.Background())
	defer s.Stop()

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(3 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runner.beat()
			}
		}
	}()
	defer close(stop)

	time.Sleep(60 * time.Millisecond)
	if st := stateOf(t, reg, "api"); st != domain.UnitStateRunning {
		t.Fatalf("expected running under steady beats, got %s", st)
	}
}

func TestSupervisor_DegradedThenFailed(t *testing.T) {
	reg := registry.New()
	registerRunning(t, reg, domain.UnitSpec{Name: "api", Tier: 1, MaxRestarts: 3})
	runner := newBeatRunner()
	rec := &failureRecorder{}

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"api": runner}, nil, rec.handle, nil)
	s.Start(context.Background())
	defer s.Stop()

	// No beats at all: degraded after 2 missed intervals, failed after 4.
	waitFor(t, time.Second, func() bool {
		return stateOf(t, reg, "api") == domain.UnitStateDegraded
	}, "unit never degraded")
	waitFor(t, time.Second, func() bool {
		return stateOf(t, reg, "api") == domain.UnitStateFailed
	}, "unit never failed")
	waitFor(t, time.Second, func() bool {
		return rec.count() == 1
	}, "failure handler never invoked")

	if err := rec.lastErr(); err == nil || !strings.Contains(err.Error(), string(domain.CategoryHeartbeatTimeout)) {
		t.Errorf("expected heartbeat timeout reason, got %v", err)
	}
}

func TestSupervisor_RecoveryFromDegraded(t *testing.T) {
	reg := registry.New()
	registerRunning(t, reg, domain.UnitSpec{Name: "api", Tier: 1, MaxRestarts: 3})
	runner := newBeatRunner()

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"api": runner}, nil, nil, nil)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		return stateOf(t, reg, "api") == domain.UnitStateDegraded
	}, "unit never degraded")

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(3 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runner.beat()
			}
		}
	}()
	defer close(stop)

	waitFor(t, time.Second, func() bool {
		return stateOf(t, reg, "api") == domain.UnitStateRunning
	}, "unit never recovered")
}

func TestSupervisor_SuppressedBeatsAreDropped(t *testing.T) {
	reg := registry.New()
	registerRunning(t, reg, domain.UnitSpec{Name: "api", Tier: 1, MaxRestarts: 3})
	runner := newBeatRunner()

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"api": runner}, nil, nil, nil)
	s.Start(context.Background())
	defer s.Stop()
	s.Suppress("api", true)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(3 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				runner.beat()
			}
		}
	}()
	defer close(stop)

	// Beats keep flowing but the unit still degrades.
	waitFor(t, time.Second, func() bool {
		st := stateOf(t, reg, "api")
		return st == domain.UnitStateDegraded || st == domain.UnitStateFailed
	}, "suppressed unit never flagged")
}

func TestSupervisor_ShedUnitIsNotFlagged(t *testing.T) {
	reg := registry.New()
	registerRunning(t, reg, domain.UnitSpec{Name: "worker", Tier: 2, MaxRestarts: 3})
	runner := newBeatRunner()

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"worker": runner}, nil, nil, nil)
	s.Start(context.Background())
	defer s.Stop()

	if err := s.Shed("worker"); err != nil {
		t.Fatalf("Shed() error: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if st := stateOf(t, reg, "worker"); st != domain.UnitStateRunning {
		t.Fatalf("shed unit should keep its state, got %s", st)
	}
	if !s.IsShed("worker") {
		t.Error("expected IsShed to report true")
	}

	s.Unshed("worker")
	if s.IsShed("worker") {
		t.Error("expected IsShed to report false after Unshed")
	}
}

func TestSupervisor_ShedRejectsCriticalUnit(t *testing.T) {
	reg := registry.New()
	registerRunning(t, reg, domain.UnitSpec{Name: "db", Tier: 0, MaxRestarts: 3})
	runner := newBeatRunner()

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"db": runner}, nil, nil, nil)
	if err := s.Shed("db"); err == nil {
		t.Fatal("expected error shedding a tier-0 unit")
	}
}

func TestSupervisor_ExhaustedBudgetSkipsHandler(t *testing.T) {
	reg := registry.New()
	// MaxRestarts 1: the single boot attempt spends the whole budget.
	registerRunning(t, reg, domain.UnitSpec{Name: "api", Tier: 1, MaxRestarts: 1})
	runner := newBeatRunner()
	rec := &failureRecorder{}

	s := NewSupervisor(testConfig(), reg, map[string]unit.Runner{"api": runner}, nil, rec.handle, nil)
	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, time.Second, func() bool {
		return stateOf(t, reg, "api") == domain.UnitStateFailed
	}, "unit never failed")

	u, _ := reg.Get("api")
	if !u.Terminal() {
		t.Fatal("expected terminal unit")
	}
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("handler should not run for a terminal unit, got %d calls", rec.count())
	}
}
