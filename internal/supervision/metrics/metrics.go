package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal tracks lifecycle transitions per unit and target state
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_transitions_total",
			Help: "Total number of unit lifecycle transitions",
		},
		[]string{"unit", "to"},
	)

	// TimeToReady tracks per-unit boot time until readiness
	TimeToReady = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overseer_time_to_ready_seconds",
			Help:    "Time from start() until the readiness self-test passed",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"unit"},
	)

	// BootRetriesTotal tracks start attempts beyond the first per unit
	BootRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_boot_retries_total",
			Help: "Total number of boot retries",
		},
		[]string{"unit"},
	)

	// HeartbeatsMissedTotal tracks missed heartbeat intervals per unit
	HeartbeatsMissedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_heartbeats_missed_total",
			Help: "Total number of missed heartbeat intervals",
		},
		[]string{"unit"},
	)

	// IncidentsTotal tracks incidents per unit and outcome
	IncidentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_incidents_total",
			Help: "Total number of incidents by outcome",
		},
		[]string{"unit", "outcome"},
	)

	// RemediationDuration tracks playbook execution time
	RemediationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "overseer_remediation_seconds",
			Help:    "Playbook execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"playbook", "result"},
	)

	// KnowledgeConfidence tracks current confidence per signature
	KnowledgeConfidence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "overseer_kb_confidence",
			Help: "Knowledge-base confidence per failure signature",
		},
		[]string{"signature"},
	)

	// ScenariosTotal tracks harness scenario runs
	ScenariosTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_scenarios_total",
			Help: "Total number of fault-injection scenario runs",
		},
		[]string{"scenario", "result"},
	)

	// EventsTotal tracks events published on the bus
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_events_total",
			Help: "Total number of supervisory events",
		},
		[]string{"action", "outcome"},
	)

	// EmergenciesTotal tracks operator-surface escalations
	EmergenciesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overseer_emergencies_total",
			Help: "Total number of operator escalations",
		},
		[]string{"resource"},
	)

	// OpenIncidents tracks currently open incidents
	OpenIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "overseer_open_incidents",
			Help: "Number of currently open incidents",
		},
	)
)
