package domain

import "time"

// UnitState represents the lifecycle state of a supervised unit.
type UnitState string

const (
	UnitStateRegistered UnitState = "registered"
	UnitStateStarting   UnitState = "starting"
	UnitStateReady      UnitState = "ready"
	UnitStateRunning    UnitState = "running"
	UnitStateDegraded   UnitState = "degraded"
	UnitStateFailed     UnitState = "failed"
	UnitStateStopped    UnitState = "stopped"
)

// UnitSpec describes a unit to be registered with the control plane.
type UnitSpec struct {
	Name        string   `yaml:"name"`
	Tier        int      `yaml:"tier"` // lower = more critical, 0 is boot-blocking
	DependsOn   []string `yaml:"depends_on"`
	MaxRestarts int      `yaml:"max_restarts"`
}

// Unit is the canonical lifecycle record for a supervised unit.
// It is owned exclusively by the registry; consumers receive copies.
type Unit struct {
	Name          string    `json:"name"`
	Tier          int       `json:"tier"`
	DependsOn     []string  `json:"depends_on,omitempty"`
	State         UnitState `json:"state"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RestartCount  int       `json:"restart_count"`
	MaxRestarts   int       `json:"max_restarts"`
	LastError     string    `json:"last_error,omitempty"`
	Seq           uint64    `json:"seq"` // sequence number of the last transition
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand outside the registry.
func (u *Unit) Clone() *Unit {
	c := *u
	c.DependsOn = append([]string(nil), u.DependsOn...)
	return &c
}

// Terminal reports whether the unit can no longer transition on its own.
// Failed is terminal only once the restart budget is exhausted.
func (u *Unit) Terminal() bool {
	if u.State == UnitStateStopped {
		return true
	}
	return u.State == UnitStateFailed && u.RestartCount >= u.MaxRestarts
}
