// Package health provides fleet health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the fleet or a unit.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// UnitHealth contains health details for a single supervised unit.
type UnitHealth struct {
	Name          string       `json:"name"`
	Tier          int          `json:"tier"`
	State         string       `json:"state"`
	Status        SystemStatus `json:"status"`
	RestartCount  int          `json:"restart_count"`
	MaxRestarts   int          `json:"max_restarts"`
	LastHeartbeat time.Time    `json:"last_heartbeat,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
}

// Report contains the full fleet health report.
type Report struct {
	SystemStatus   SystemStatus          `json:"system_status"`
	Units          map[string]UnitHealth `json:"units"`
	OpenIncidents  int                   `json:"open_incidents"`
	ScenarioStreak map[string]int        `json:"scenario_streak,omitempty"`
	CheckedAt      time.Time             `json:"checked_at"`
}
