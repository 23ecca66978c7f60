package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

func newTestRegistry(t *testing.T) *DefaultRegistry {
	t.Helper()
	r := New()
	mustRegister(t, r, domain.UnitSpec{Name: "db", Tier: 0, MaxRestarts: 3})
	mustRegister(t, r, domain.UnitSpec{Name: "cache", Tier: 2, DependsOn: []string{"db"}, MaxRestarts: 3})
	mustRegister(t, r, domain.UnitSpec{Name: "api", Tier: 3, DependsOn: []string{"db", "cache"}, MaxRestarts: 3})
	return r
}

func mustRegister(t *testing.T, r *DefaultRegistry, spec domain.UnitSpec) {
	t.Helper()
	if _, err := r.Register(spec); err != nil {
		t.Fatalf("Register(%s) failed: %v", spec.Name, err)
	}
}

func mustTransition(t *testing.T, r *DefaultRegistry, name string, to domain.UnitState) {
	t.Helper()
	if err := r.Transition(name, to, "test"); err != nil {
		t.Fatalf("Transition(%s, %s) failed: %v", name, to, err)
	}
}

// =============================================================================
// Registration
// =============================================================================

func TestRegistry_Register(t *testing.T) {
	r := newTestRegistry(t)

	u, err := r.Get("cache")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if u.State != domain.UnitStateRegistered {
		t.Errorf("expected registered, got %s", u.State)
	}
	if u.Tier != 2 {
		t.Errorf("expected tier 2, got %d", u.Tier)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register(domain.UnitSpec{Name: "db"})
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_RegisterUnknownDependency(t *testing.T) {
	r := New()

	_, err := r.Register(domain.UnitSpec{Name: "api", DependsOn: []string{"ghost"}})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Errorf("expected ErrUnknownDependency, got %v", err)
	}
}

// =============================================================================
// Dependency invariant
// =============================================================================

func TestRegistry_StartBlockedUntilDependenciesReady(t *testing.T) {
	r := newTestRegistry(t)

	// cache depends on db, which is still Registered.
	err := r.Transition("cache", domain.UnitStateStarting, "boot")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	mustTransition(t, r, "db", domain.UnitStateStarting)
	mustTransition(t, r, "db", domain.UnitStateReady)

	// Ready dependency satisfies the invariant.
	if err := r.Transition("cache", domain.UnitStateStarting, "boot"); err != nil {
		t.Fatalf("expected start allowed with Ready dependency: %v", err)
	}
}

func TestRegistry_InvalidMoveRejected(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Transition("db", domain.UnitStateRunning, "skip")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

// =============================================================================
// Restart budget
// =============================================================================

func TestRegistry_RestartExhaustion(t *testing.T) {
	r := New()
	mustRegister(t, r, domain.UnitSpec{Name: "flaky", Tier: 1, MaxRestarts: 3})

	for attempt := 1; attempt <= 3; attempt++ {
		if err := r.Transition("flaky", domain.UnitStateStarting, "boot"); err != nil {
			t.Fatalf("attempt %d rejected: %v", attempt, err)
		}
		mustTransition(t, r, "flaky", domain.UnitStateFailed)
	}

	u, _ := r.Get("flaky")
	if u.RestartCount != 3 {
		t.Errorf("expected 3 attempts consumed, got %d", u.RestartCount)
	}

	// Attempt 4 must surface ExhaustedRetries, not retry.
	err := r.Transition("flaky", domain.UnitStateStarting, "boot")
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Fatalf("expected ErrExhaustedRetries, got %v", err)
	}

	u, _ = r.Get("flaky")
	if u.State != domain.UnitStateFailed {
		t.Errorf("unit should stay Failed, got %s", u.State)
	}
	if !u.Terminal() {
		t.Error("exhausted unit should be terminal")
	}
}

// =============================================================================
// Journal and sequencing
// =============================================================================

func TestRegistry_JournalSequenceMonotonic(t *testing.T) {
	r := newTestRegistry(t)

	mustTransition(t, r, "db", domain.UnitStateStarting)
	mustTransition(t, r, "db", domain.UnitStateReady)
	mustTransition(t, r, "db", domain.UnitStateRunning)

	journal := r.Journal(0)
	if len(journal) != 3 {
		t.Fatalf("expected 3 journal entries, got %d", len(journal))
	}
	for i := 1; i < len(journal); i++ {
		if journal[i].Seq <= journal[i-1].Seq {
			t.Errorf("sequence not monotonic: %d then %d", journal[i-1].Seq, journal[i].Seq)
		}
	}
}

func TestRegistry_TransitionCallback(t *testing.T) {
	r := newTestRegistry(t)

	var mu sync.Mutex
	var got []Transition
	r.SetTransitionCallback(func(tr Transition) {
		mu.Lock()
		got = append(got, tr)
		mu.Unlock()
	})

	mustTransition(t, r, "db", domain.UnitStateStarting)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].To != domain.UnitStateStarting {
		t.Errorf("callback not fired correctly: %+v", got)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestRegistry_ConcurrentHeartbeats(t *testing.T) {
	r := newTestRegistry(t)
	mustTransition(t, r, "db", domain.UnitStateStarting)
	mustTransition(t, r, "db", domain.UnitStateReady)
	mustTransition(t, r, "db", domain.UnitStateRunning)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.RecordHeartbeat("db", time.Now())
			_, _ = r.Get("db")
			_ = r.List()
		}()
	}
	wg.Wait()

	u, _ := r.Get("db")
	if u.LastHeartbeat.IsZero() {
		t.Error("heartbeat not recorded")
	}
}

func TestRegistry_DeregisterRequiresStopped(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Deregister("db"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	mustTransition(t, r, "db", domain.UnitStateStopped)
	if err := r.Deregister("db"); err != nil {
		t.Errorf("deregister of stopped unit failed: %v", err)
	}
	if _, err := r.Get("db"); !errors.Is(err, ErrUnitNotFound) {
		t.Errorf("expected ErrUnitNotFound after deregister, got %v", err)
	}
}
