package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/overseer/internal/core/config"
	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/core/registry"
)

const wiringPlaybook = `
name: restart-and-verify
version: "1"
sla: 60s
steps:
  - action: restart-unit
checks:
  - type: heartbeat-fresh
    unit: cache
    within: 30s
`

func playbookDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "restart-and-verify.yaml")
	if err := os.WriteFile(path, []byte(wiringPlaybook), 0o644); err != nil {
		t.Fatalf("write playbook: %v", err)
	}
	return dir
}

// ============================================================
// Unit registration
// ============================================================

func TestRegisterUnits_OutOfConfigOrder(t *testing.T) {
	reg := registry.New()
	units := []config.UnitConfig{
		{Name: "api", Tier: 1, DependsOn: []string{"db", "cache"}, MaxRestarts: 3},
		{Name: "cache", Tier: 1, DependsOn: []string{"db"}, MaxRestarts: 3},
		{Name: "db", Tier: 0, MaxRestarts: 3},
	}

	if err := registerUnits(reg, units); err != nil {
		t.Fatalf("registerUnits() error: %v", err)
	}
	if got := len(reg.List()); got != 3 {
		t.Fatalf("expected 3 registered units, got %d", got)
	}
}

func TestRegisterUnits_UnresolvableDependency(t *testing.T) {
	reg := registry.New()
	units := []config.UnitConfig{
		{Name: "api", Tier: 1, DependsOn: []string{"ghost"}, MaxRestarts: 3},
	}

	err := registerUnits(reg, units)
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if !strings.Contains(err.Error(), "api") {
		t.Errorf("error should name the stuck unit: %v", err)
	}
}

func TestRegisterUnits_CycleRejected(t *testing.T) {
	reg := registry.New()
	units := []config.UnitConfig{
		{Name: "a", DependsOn: []string{"b"}, MaxRestarts: 1},
		{Name: "b", DependsOn: []string{"a"}, MaxRestarts: 1},
	}

	if err := registerUnits(reg, units); err == nil {
		t.Fatal("expected error for dependency cycle")
	}
}

// ============================================================
// Wiring
// ============================================================

func memoryConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Port: 0,
		Playbooks: config.PlaybookConfig{
			Dir: playbookDir(t),
		},
		Heartbeat: config.HeartbeatConfig{
			Interval:       50 * time.Millisecond,
			DegradedMisses: 2,
			FailedMisses:   4,
		},
	}
}

func TestNewOverseer_MemoryWiring(t *testing.T) {
	o, err := NewOverseer(memoryConfig(t))
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}

	if o.reg == nil || o.bus == nil || o.orchestrator == nil {
		t.Fatal("core components not wired")
	}
	if o.supervisor == nil || o.recognizer == nil || o.pbEngine == nil {
		t.Fatal("supervision components not wired")
	}
	if o.db != nil || o.redisClient != nil {
		t.Fatal("no external backends were configured")
	}
	if o.store == nil {
		t.Fatal("expected in-memory storage fallback")
	}
	if o.Harness() != nil {
		t.Fatal("harness should stay nil when disabled")
	}
	if _, err := o.playbooks.Get("restart-and-verify"); err != nil {
		t.Fatalf("playbook library not loaded: %v", err)
	}
}

func TestOverseer_StartStopEmptyFleet(t *testing.T) {
	o, err := NewOverseer(memoryConfig(t))
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestHarness_EnabledOnlyWithBothSwitches(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Harness = config.HarnessConfig{
		Enabled: true,
		Scenarios: []domain.Scenario{
			{
				Name:              "kill-cache",
				Fault:             domain.FaultKillUnit,
				Target:            "cache",
				ExpectedSafeguard: "restart",
				SLA:               time.Minute,
			},
		},
	}

	o, err := NewOverseer(cfg)
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}
	if o.Harness() != nil {
		t.Fatal("harness requires the CLI switch too")
	}

	cfg.HarnessEnabled = true
	o, err = NewOverseer(cfg)
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}
	if o.Harness() == nil {
		t.Fatal("harness should be built when enabled")
	}
}

// ============================================================
// Config transform
// ============================================================

func TestFromApp_MapsEverySection(t *testing.T) {
	app := &config.AppConfig{}
	app.Server.Port = 8080
	app.Playbooks.Dir = "playbooks"
	app.Retention.Period = 24 * time.Hour
	app.Units = []config.UnitConfig{{Name: "db", MaxRestarts: 3}}

	cfg := FromApp(app)
	if cfg.Port != 8080 {
		t.Errorf("port not mapped: %d", cfg.Port)
	}
	if cfg.Playbooks.Dir != "playbooks" {
		t.Errorf("playbook dir not mapped: %s", cfg.Playbooks.Dir)
	}
	if cfg.Retention.Period != 24*time.Hour {
		t.Errorf("retention not mapped: %v", cfg.Retention.Period)
	}
	if len(cfg.Units) != 1 || cfg.Units[0].Name != "db" {
		t.Errorf("units not mapped: %+v", cfg.Units)
	}
	if cfg.HarnessEnabled {
		t.Error("harness CLI switch must default off")
	}
}

// ============================================================
// Playbook actions
// ============================================================

func TestScaleUnit_ClearsSaturation(t *testing.T) {
	o, err := NewOverseer(memoryConfig(t))
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}

	hooks := o.faultHooks()
	// Avoid firing the failure path; set the flag directly.
	o.faultMu.Lock()
	o.saturated["cache"] = true
	o.faultMu.Unlock()

	if err := o.scaleUnit(context.Background(), "cache", map[string]string{"memory": "2Gi"}); err != nil {
		t.Fatalf("scaleUnit() error: %v", err)
	}

	o.faultMu.Lock()
	still := o.saturated["cache"]
	o.faultMu.Unlock()
	if still {
		t.Fatal("saturation flag should be cleared")
	}

	// Revert path must clear the flag without firing a failure.
	if err := hooks.Saturate(context.Background(), "cache", false); err != nil {
		t.Fatalf("Saturate(off) error: %v", err)
	}
}

func TestRestartUnit_UnknownRunner(t *testing.T) {
	o, err := NewOverseer(memoryConfig(t))
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}

	if err := o.restartUnit(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown unit")
	}
}

func TestFaultHooks_KillUnknownUnit(t *testing.T) {
	o, err := NewOverseer(memoryConfig(t))
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}

	hooks := o.faultHooks()
	if err := hooks.Kill(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown unit")
	}
	if hooks.Suppress == nil || hooks.Flood == nil || hooks.Corrupt == nil {
		t.Fatal("all hooks must be wired")
	}
}

func TestRestoreUnit_UnknownUnit(t *testing.T) {
	o, err := NewOverseer(memoryConfig(t))
	if err != nil {
		t.Fatalf("NewOverseer() error: %v", err)
	}

	err = o.restoreUnit(context.Background(), "ghost", nil)
	if err == nil {
		t.Fatal("expected error for unknown unit")
	}
	if !errors.Is(err, registry.ErrUnitNotFound) {
		t.Fatalf("expected unit-not-found error, got %v", err)
	}
}
