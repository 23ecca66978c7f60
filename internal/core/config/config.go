package config

import (
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	redisclient "github.com/vietddude/overseer/internal/infra/redis"
	"github.com/vietddude/overseer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Redis       redisclient.Config `yaml:"redis"`
	Database    postgres.Config    `yaml:"database"`
	Boot        BootConfig         `yaml:"boot"`
	Heartbeat   HeartbeatConfig    `yaml:"heartbeat"`
	Recognition RecognitionConfig  `yaml:"recognition"`
	Playbooks   PlaybookConfig     `yaml:"playbooks"`
	Harness     HarnessConfig      `yaml:"harness"`
	Retention   RetentionConfig    `yaml:"retention"`
	Units       []UnitConfig       `yaml:"units"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// BootConfig holds boot orchestrator settings.
type BootConfig struct {
	Parallelism       int           `yaml:"parallelism"`
	ReadinessInterval time.Duration `yaml:"readiness_interval"`
	ReadinessTimeout  time.Duration `yaml:"readiness_timeout"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	WarmupAttempts    int           `yaml:"warmup_attempts"`
	MigrationsDir     string        `yaml:"migrations_dir"`
}

// HeartbeatConfig holds liveness supervision settings.
type HeartbeatConfig struct {
	Interval       time.Duration `yaml:"interval"`
	DegradedMisses int           `yaml:"degraded_misses"` // N missed intervals -> Degraded
	FailedMisses   int           `yaml:"failed_misses"`   // M>N missed intervals -> Failed
}

// RecognitionConfig holds error recognition engine settings.
type RecognitionConfig struct {
	CaptureDeadline  time.Duration `yaml:"capture_deadline"`
	ConfidenceRate   float64       `yaml:"confidence_rate"`
	AutoApplyUp      float64       `yaml:"auto_apply_up"`
	AutoApplyDown    float64       `yaml:"auto_apply_down"`
	GeneratorURL     string        `yaml:"generator_url"` // empty = built-in rules
	GeneratorTimeout time.Duration `yaml:"generator_timeout"`
}

// PlaybookConfig holds playbook library settings.
type PlaybookConfig struct {
	Dir       string `yaml:"dir"`
	HotReload bool   `yaml:"hot_reload"`
}

// HarnessConfig holds fault-injection harness settings.
type HarnessConfig struct {
	Enabled          bool              `yaml:"enabled"`
	Interval         time.Duration     `yaml:"interval"` // between scenario runs
	PollInterval     time.Duration     `yaml:"poll_interval"`
	PassesToEscalate int               `yaml:"passes_to_escalate"`
	SLATightenFactor float64           `yaml:"sla_tighten_factor"`
	MaxDifficulty    int               `yaml:"max_difficulty"`
	Scenarios        []domain.Scenario `yaml:"scenarios"`
}

// RetentionConfig holds bookkeeping retention settings.
type RetentionConfig struct {
	Period time.Duration `yaml:"period"` // 0 = keep forever
}

// UnitConfig describes one supervised unit.
type UnitConfig struct {
	Name              string        `yaml:"name"`
	Tier              int           `yaml:"tier"`
	DependsOn         []string      `yaml:"depends_on"`
	MaxRestarts       int           `yaml:"max_restarts"`
	ReadinessTimeout  time.Duration `yaml:"readiness_timeout"` // overrides boot default
	Command           string        `yaml:"command"`
	Args              []string      `yaml:"args"`
	HealthURL         string        `yaml:"health_url"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// Spec converts a UnitConfig to the registry spec.
func (u UnitConfig) Spec() domain.UnitSpec {
	return domain.UnitSpec{
		Name:        u.Name,
		Tier:        u.Tier,
		DependsOn:   u.DependsOn,
		MaxRestarts: u.MaxRestarts,
	}
}
