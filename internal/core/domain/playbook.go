package domain

import "time"

// PlaybookAction is the closed set of primitive remediation actions.
// Dispatch over this set is exhaustive; configuration can never request
// behavior outside of it.
type PlaybookAction string

const (
	ActionRestartUnit         PlaybookAction = "restart-unit"
	ActionScaleResource       PlaybookAction = "scale-resource"
	ActionShedLoad            PlaybookAction = "shed-load"
	ActionRestoreFromSnapshot PlaybookAction = "restore-from-snapshot"
	ActionRewriteConfig       PlaybookAction = "rewrite-config"
	ActionRunExternalCheck    PlaybookAction = "run-external-check"
	ActionNotify              PlaybookAction = "notify"
)

// KnownActions lists every valid action for load-time validation.
var KnownActions = map[PlaybookAction]bool{
	ActionRestartUnit:         true,
	ActionScaleResource:       true,
	ActionShedLoad:            true,
	ActionRestoreFromSnapshot: true,
	ActionRewriteConfig:       true,
	ActionRunExternalCheck:    true,
	ActionNotify:              true,
}

// PlaybookStep is one ordered action within a playbook.
type PlaybookStep struct {
	Action   PlaybookAction    `json:"action"`
	Params   map[string]string `json:"params,omitempty"`
	Optional bool              `json:"optional"` // failure does not abort remaining steps
}

// CheckType is the closed set of post-condition check kinds.
type CheckType string

const (
	CheckUnitState      CheckType = "unit-state"
	CheckHeartbeatFresh CheckType = "heartbeat-fresh"
	CheckHTTP           CheckType = "http"
)

// KnownChecks lists every valid check type for load-time validation.
var KnownChecks = map[CheckType]bool{
	CheckUnitState:      true,
	CheckHeartbeatFresh: true,
	CheckHTTP:           true,
}

// PlaybookCheck is a post-condition evaluated after all steps ran.
// Any failing check marks the whole execution failed.
type PlaybookCheck struct {
	Type   CheckType     `json:"type"`
	Unit   string        `json:"unit,omitempty"`
	State  UnitState     `json:"state,omitempty"`
	URL    string        `json:"url,omitempty"`
	Within time.Duration `json:"within"`
}

// Playbook is a named, versioned, declarative remediation procedure.
// Read-only once loaded; knowledge-base entries reference it by name.
type Playbook struct {
	Name    string          `json:"name"`
	Version string          `json:"version"`
	Steps   []PlaybookStep  `json:"steps"`
	Checks  []PlaybookCheck `json:"checks"`
	SLA     time.Duration   `json:"sla"`
}

// StepRecord is the audit record of one executed step.
type StepRecord struct {
	Index    int            `json:"index"`
	Action   PlaybookAction `json:"action"`
	Error    string         `json:"error,omitempty"`
	Optional bool           `json:"optional"`
	Duration time.Duration  `json:"duration"`
}

// CheckRecord is the audit record of one evaluated post-condition.
type CheckRecord struct {
	Index  int           `json:"index"`
	Type   CheckType     `json:"type"`
	Passed bool          `json:"passed"`
	Detail string        `json:"detail,omitempty"`
	Waited time.Duration `json:"waited"`
}

// ExecutionResult is the full outcome of one playbook execution.
type ExecutionResult struct {
	PlaybookName string        `json:"playbook_name"`
	Version      string        `json:"version"`
	IncidentID   string        `json:"incident_id"`
	Success      bool          `json:"success"`
	TimedOut     bool          `json:"timed_out"`
	Steps        []StepRecord  `json:"steps"`
	Checks       []CheckRecord `json:"checks"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}
