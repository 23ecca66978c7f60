package domain

import "time"

// FaultKind is the closed set of synthetic faults the harness can inject.
type FaultKind string

const (
	FaultKillUnit          FaultKind = "kill-unit"
	FaultSuppressHeartbeat FaultKind = "suppress-heartbeat"
	FaultSaturateResource  FaultKind = "saturate-resource"
	FaultFloodQueue        FaultKind = "flood-queue"
	FaultCorruptConfig     FaultKind = "corrupt-config"
)

// KnownFaults lists every valid fault kind for load-time validation.
var KnownFaults = map[FaultKind]bool{
	FaultKillUnit:          true,
	FaultSuppressHeartbeat: true,
	FaultSaturateResource:  true,
	FaultFloodQueue:        true,
	FaultCorruptConfig:     true,
}

// Scenario is a harness-driven synthetic fault with its expected
// safeguard and recovery SLA. Difficulty escalates on repeated passes.
type Scenario struct {
	Name              string        `yaml:"name"              json:"name"`
	Fault             FaultKind     `yaml:"fault"             json:"fault"`
	Target            string        `yaml:"target"            json:"target"` // unit name
	ExpectedSafeguard string        `yaml:"expected_safeguard" json:"expected_safeguard"`
	SLA               time.Duration `yaml:"sla"               json:"sla"`
	Difficulty        int           `yaml:"difficulty"        json:"difficulty"`
}

// ScenarioResult records one harness run.
type ScenarioResult struct {
	RunID        string        `json:"run_id"`
	ScenarioName string        `json:"scenario_name"`
	Passed       bool          `json:"passed"`
	IncidentID   string        `json:"incident_id,omitempty"`
	RecoveryTime time.Duration `json:"recovery_time"`
	SLA          time.Duration `json:"sla"`
	Difficulty   int           `json:"difficulty"`
	Detail       string        `json:"detail,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
}

// LedgerEntry is one row of the harness pass/fail ledger.
type LedgerEntry struct {
	ID                string        `json:"id"`
	ScenarioName      string        `json:"scenario_name"`
	Passed            bool          `json:"passed"`
	ConsecutivePasses int           `json:"consecutive_passes"`
	SLA               time.Duration `json:"sla"`
	Difficulty        int           `json:"difficulty"`
	RecoveryTime      time.Duration `json:"recovery_time"`
	RunAt             time.Time     `json:"run_at"`
}
