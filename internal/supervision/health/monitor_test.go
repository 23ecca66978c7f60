package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/storage"
	"github.com/vietddude/overseer/internal/infra/storage/memory"
)

// =============================================================================
// Fixtures
// =============================================================================

func fixtures(t *testing.T) (registry.Registry, storage.IncidentRepository, storage.ScenarioLedgerRepository) {
	t.Helper()
	store := memory.NewMemoryStorage()
	return registry.New(), memory.NewIncidentRepo(store), memory.NewLedgerRepo(store)
}

func addUnit(t *testing.T, reg registry.Registry, name string, tier int, states ...domain.UnitState) {
	t.Helper()
	if _, err := reg.Register(domain.UnitSpec{Name: name, Tier: tier, MaxRestarts: 3}); err != nil {
		t.Fatal(err)
	}
	for _, st := range states {
		if err := reg.Transition(name, st, "test"); err != nil {
			t.Fatalf("%s -> %s: %v", name, st, err)
		}
	}
}

func running() []domain.UnitState {
	return []domain.UnitState{domain.UnitStateStarting, domain.UnitStateReady, domain.UnitStateRunning}
}

// =============================================================================
// Monitor
// =============================================================================

func TestMonitor_AllHealthy(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "db", 0, running()...)
	addUnit(t, reg, "api", 1, running()...)

	report := NewMonitor(reg, incidents, ledger).Check(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if len(report.Units) != 2 {
		t.Errorf("expected 2 units, got %d", len(report.Units))
	}
}

func TestMonitor_DegradedUnitDegradesSystem(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "api", 1, append(running(), domain.UnitStateDegraded)...)

	report := NewMonitor(reg, incidents, ledger).Check(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("expected degraded, got %s", report.SystemStatus)
	}
	if report.Units["api"].Status != StatusDegraded {
		t.Errorf("expected degraded unit, got %s", report.Units["api"].Status)
	}
}

func TestMonitor_CriticalTierFailureIsCritical(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "db", 0, domain.UnitStateStarting, domain.UnitStateFailed)
	addUnit(t, reg, "api", 1, running()...)

	report := NewMonitor(reg, incidents, ledger).Check(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("tier-0 failure should be critical, got %s", report.SystemStatus)
	}
}

func TestMonitor_NonCriticalFailureOnlyDegrades(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "db", 0, running()...)
	// One failed attempt out of three: failed but not terminal.
	addUnit(t, reg, "worker", 2, domain.UnitStateStarting, domain.UnitStateFailed)

	report := NewMonitor(reg, incidents, ledger).Check(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("non-terminal tier-2 failure should degrade, got %s", report.SystemStatus)
	}
}

func TestMonitor_OpenIncidentsDegrade(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "api", 1, running()...)

	inc := &domain.Incident{
		ID: uuid.New().String(), UnitName: "api",
		Outcome: domain.OutcomePending, Status: domain.IncidentStatusOpen,
		CreatedAt: time.Now(),
	}
	if err := incidents.Create(context.Background(), inc); err != nil {
		t.Fatal(err)
	}

	report := NewMonitor(reg, incidents, ledger).Check(context.Background())
	if report.OpenIncidents != 1 {
		t.Errorf("expected 1 open incident, got %d", report.OpenIncidents)
	}
	if report.SystemStatus != StatusDegraded {
		t.Errorf("open incidents should degrade, got %s", report.SystemStatus)
	}
}

func TestMonitor_RateLimitsChecks(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "api", 1, running()...)

	m := NewMonitor(reg, incidents, ledger)
	first := m.Check(context.Background())

	// A state change inside the rate-limit window is not reflected.
	if err := reg.Transition("api", domain.UnitStateDegraded, "test"); err != nil {
		t.Fatal(err)
	}
	second := m.Check(context.Background())
	if first != second {
		t.Error("expected the cached report inside the check window")
	}
}

// =============================================================================
// Server
// =============================================================================

func TestServer_Endpoints(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "db", 0, running()...)
	addUnit(t, reg, "api", 1, running()...)

	srv := NewServer(NewMonitor(reg, incidents, ledger), reg, incidents, nil, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health: expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != string(StatusHealthy) {
		t.Errorf("expected healthy, got %s", body["status"])
	}

	resp, err = http.Get(ts.URL + "/units")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var units []*domain.Unit
	if err := json.NewDecoder(resp.Body).Decode(&units); err != nil {
		t.Fatal(err)
	}
	if len(units) != 2 || units[0].Name != "db" {
		t.Errorf("expected tier-sorted units [db api], got %+v", units)
	}

	resp, err = http.Get(ts.URL + "/incidents")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/incidents: expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_HealthCriticalReturns503(t *testing.T) {
	reg, incidents, ledger := fixtures(t)
	addUnit(t, reg, "db", 0, domain.UnitStateStarting, domain.UnitStateFailed)

	srv := NewServer(NewMonitor(reg, incidents, ledger), reg, incidents, nil, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}
