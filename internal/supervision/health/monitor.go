package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
	"github.com/vietddude/overseer/internal/infra/storage"
)

// checkInterval rate-limits full checks so a busy /health endpoint
// cannot hammer the stores.
const checkInterval = 5 * time.Second

// Monitor aggregates health status from the registry, the incident
// store and the scenario ledger.
type Monitor struct {
	reg       registry.Registry
	incidents storage.IncidentRepository
	ledger    storage.ScenarioLedgerRepository

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a fleet health monitor. The ledger may be nil when
// the harness is disabled.
func NewMonitor(reg registry.Registry, incidents storage.IncidentRepository, ledger storage.ScenarioLedgerRepository) *Monitor {
	return &Monitor{reg: reg, incidents: incidents, ledger: ledger}
}

// Check builds the current report, reusing the previous one when the
// last check is fresh enough.
func (m *Monitor) Check(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < checkInterval {
		return m.lastReport
	}

	report := &Report{
		SystemStatus: StatusHealthy,
		Units:        make(map[string]UnitHealth),
		CheckedAt:    time.Now(),
	}

	for _, u := range m.reg.List() {
		uh := UnitHealth{
			Name:          u.Name,
			Tier:          u.Tier,
			State:         string(u.State),
			Status:        unitStatus(u),
			RestartCount:  u.RestartCount,
			MaxRestarts:   u.MaxRestarts,
			LastHeartbeat: u.LastHeartbeat,
			LastError:     u.LastError,
		}
		report.Units[u.Name] = uh
		report.SystemStatus = worse(report.SystemStatus, rollup(u, uh.Status))
	}

	if count, err := m.incidents.CountOpen(ctx); err == nil {
		report.OpenIncidents = count
		if count > 0 {
			report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
		}
	}

	if m.ledger != nil {
		report.ScenarioStreak = make(map[string]int)
		if entries, err := m.ledger.Recent(ctx, 32); err == nil {
			for _, e := range entries {
				if _, seen := report.ScenarioStreak[e.ScenarioName]; !seen {
					report.ScenarioStreak[e.ScenarioName] = e.ConsecutivePasses
					if !e.Passed {
						report.SystemStatus = worse(report.SystemStatus, StatusDegraded)
					}
				}
			}
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func unitStatus(u *domain.Unit) SystemStatus {
	switch u.State {
	case domain.UnitStateFailed:
		return StatusCritical
	case domain.UnitStateDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// rollup maps a unit's status to its fleet-level impact: tier-0 trouble
// is critical for the whole system, lower tiers only degrade it.
func rollup(u *domain.Unit, status SystemStatus) SystemStatus {
	if status == StatusHealthy {
		return StatusHealthy
	}
	if u.Tier == 0 {
		return StatusCritical
	}
	if status == StatusCritical && u.Terminal() {
		return StatusCritical
	}
	return StatusDegraded
}

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
