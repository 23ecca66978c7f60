package domain

import "time"

// FailureCategory classifies what went wrong with a unit.
type FailureCategory string

const (
	CategoryStartFailure     FailureCategory = "start_failure"
	CategoryReadinessTimeout FailureCategory = "readiness_timeout"
	CategoryHeartbeatTimeout FailureCategory = "heartbeat_timeout"
	CategoryPlaybookStep     FailureCategory = "playbook_step"
	CategoryResource         FailureCategory = "resource"
	CategoryConfig           FailureCategory = "config"
	CategoryUnknown          FailureCategory = "unknown"
)

// IncidentOutcome is the final disposition of an incident.
type IncidentOutcome string

const (
	OutcomePending   IncidentOutcome = "pending"
	OutcomeResolved  IncidentOutcome = "resolved"
	OutcomeFailed    IncidentOutcome = "failed"
	OutcomeTimeout   IncidentOutcome = "timeout"
	OutcomeEscalated IncidentOutcome = "escalated"
)

// IncidentStatus tracks whether an incident is still being worked.
type IncidentStatus string

const (
	IncidentStatusOpen   IncidentStatus = "open"
	IncidentStatusClosed IncidentStatus = "closed"
)

// ResourceSnapshot captures process-level resource usage at failure time.
type ResourceSnapshot struct {
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	NumGC      uint32 `json:"num_gc"`
}

// DiagnosticBundle is everything captured about one failure.
// It is attached to the incident and never mutated afterwards.
type DiagnosticBundle struct {
	UnitName   string            `json:"unit_name"`
	Category   FailureCategory   `json:"category"`
	Message    string            `json:"message"`
	Logs       []string          `json:"logs,omitempty"`
	Heartbeats []time.Time       `json:"heartbeats,omitempty"`
	Resources  ResourceSnapshot  `json:"resources"`
	Context    map[string]string `json:"context,omitempty"`
	Partial    bool              `json:"partial"` // capture deadline hit, data incomplete
	CapturedAt time.Time         `json:"captured_at"`
}

// Incident is one failure episode and its resolution record.
// Append-only once closed.
type Incident struct {
	ID        string            `json:"id"`
	UnitName  string            `json:"unit_name"`
	Signature string            `json:"signature"`
	Bundle    *DiagnosticBundle `json:"bundle,omitempty"`
	Playbook  string            `json:"playbook,omitempty"` // empty when escalated without remediation
	Escalated bool              `json:"escalated"`
	Synthetic bool              `json:"synthetic"` // produced by the fault-injection harness
	Outcome   IncidentOutcome   `json:"outcome"`
	Status    IncidentStatus    `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ClosedAt  time.Time         `json:"closed_at,omitempty"`
}
