package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/overseer/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Boot.Parallelism <= 0 {
		cfg.Boot.Parallelism = 4
	}
	if cfg.Boot.ReadinessInterval == 0 {
		cfg.Boot.ReadinessInterval = 500 * time.Millisecond
	}
	if cfg.Boot.ReadinessTimeout == 0 {
		cfg.Boot.ReadinessTimeout = 30 * time.Second
	}
	if cfg.Boot.RetryBaseDelay == 0 {
		cfg.Boot.RetryBaseDelay = 2 * time.Second
	}
	if cfg.Boot.RetryMaxDelay == 0 {
		cfg.Boot.RetryMaxDelay = 60 * time.Second
	}
	if cfg.Boot.WarmupAttempts <= 0 {
		cfg.Boot.WarmupAttempts = 3
	}
	if cfg.Boot.MigrationsDir == "" {
		cfg.Boot.MigrationsDir = "migrations"
	}

	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = 5 * time.Second
	}
	if cfg.Heartbeat.DegradedMisses <= 0 {
		cfg.Heartbeat.DegradedMisses = 2
	}
	if cfg.Heartbeat.FailedMisses <= cfg.Heartbeat.DegradedMisses {
		cfg.Heartbeat.FailedMisses = cfg.Heartbeat.DegradedMisses + 2
	}

	if cfg.Recognition.CaptureDeadline == 0 {
		cfg.Recognition.CaptureDeadline = 3 * time.Second
	}
	if cfg.Recognition.ConfidenceRate == 0 {
		cfg.Recognition.ConfidenceRate = 0.2
	}
	if cfg.Recognition.AutoApplyUp == 0 {
		cfg.Recognition.AutoApplyUp = 0.6
	}
	if cfg.Recognition.AutoApplyDown == 0 {
		cfg.Recognition.AutoApplyDown = 0.4
	}
	if cfg.Recognition.GeneratorTimeout == 0 {
		cfg.Recognition.GeneratorTimeout = 30 * time.Second
	}

	if cfg.Playbooks.Dir == "" {
		cfg.Playbooks.Dir = "playbooks"
	}

	if cfg.Harness.Interval == 0 {
		cfg.Harness.Interval = 5 * time.Minute
	}
	if cfg.Harness.PollInterval == 0 {
		cfg.Harness.PollInterval = 500 * time.Millisecond
	}
	if cfg.Harness.PassesToEscalate <= 0 {
		cfg.Harness.PassesToEscalate = 5
	}
	if cfg.Harness.SLATightenFactor <= 0 || cfg.Harness.SLATightenFactor >= 1 {
		cfg.Harness.SLATightenFactor = 0.75
	}
	if cfg.Harness.MaxDifficulty <= 0 {
		cfg.Harness.MaxDifficulty = 5
	}
	for i := range cfg.Harness.Scenarios {
		if cfg.Harness.Scenarios[i].Difficulty <= 0 {
			cfg.Harness.Scenarios[i].Difficulty = 1
		}
	}

	for i := range cfg.Units {
		if cfg.Units[i].MaxRestarts <= 0 {
			cfg.Units[i].MaxRestarts = 3
		}
		if cfg.Units[i].HeartbeatInterval == 0 {
			cfg.Units[i].HeartbeatInterval = time.Second
		}
	}
}

func validate(cfg *AppConfig) error {
	seen := make(map[string]bool, len(cfg.Units))
	for _, u := range cfg.Units {
		if u.Name == "" {
			return fmt.Errorf("config: unit with empty name")
		}
		if seen[u.Name] {
			return fmt.Errorf("config: duplicate unit %q", u.Name)
		}
		seen[u.Name] = true
		if u.Tier < 0 {
			return fmt.Errorf("config: unit %q has negative tier", u.Name)
		}
	}
	for _, u := range cfg.Units {
		for _, dep := range u.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("config: unit %q depends on unknown unit %q", u.Name, dep)
			}
		}
	}

	rec := cfg.Recognition
	if rec.ConfidenceRate < 0 || rec.ConfidenceRate > 1 {
		return fmt.Errorf("config: confidence_rate must be in [0,1]")
	}
	if rec.AutoApplyDown >= rec.AutoApplyUp {
		return fmt.Errorf("config: auto_apply_down must be below auto_apply_up")
	}

	for _, s := range cfg.Harness.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("config: scenario with empty name")
		}
		if !domain.KnownFaults[s.Fault] {
			return fmt.Errorf("config: scenario %q has unknown fault %q", s.Name, s.Fault)
		}
		if s.SLA <= 0 {
			return fmt.Errorf("config: scenario %q requires a positive sla", s.Name)
		}
		if s.Target != "" && !seen[s.Target] {
			return fmt.Errorf("config: scenario %q targets unknown unit %q", s.Name, s.Target)
		}
	}
	return nil
}
