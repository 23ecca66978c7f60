package playbook

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

const validDoc = `
name: restart-and-verify
version: "1"
sla: 60s
steps:
  - action: restart-unit
  - action: notify
    optional: true
    params:
      message: restarted
checks:
  - type: unit-state
    unit: cache
    state: running
    within: 10s
`

// ============================================================
// Parse / Validate
// ============================================================

func TestParse_Valid(t *testing.T) {
	pb, err := Parse([]byte(validDoc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if pb.Name != "restart-and-verify" || pb.Version != "1" {
		t.Errorf("unexpected identity: %s/%s", pb.Name, pb.Version)
	}
	if pb.SLA != 60*time.Second {
		t.Errorf("expected 60s sla, got %v", pb.SLA)
	}
	if len(pb.Steps) != 2 || pb.Steps[0].Action != domain.ActionRestartUnit {
		t.Errorf("unexpected steps: %+v", pb.Steps)
	}
	if !pb.Steps[1].Optional {
		t.Error("second step should be optional")
	}
	if len(pb.Checks) != 1 || pb.Checks[0].Within != 10*time.Second {
		t.Errorf("unexpected checks: %+v", pb.Checks)
	}
	if pb.Checks[0].State != domain.UnitStateRunning {
		t.Errorf("expected running state, got %s", pb.Checks[0].State)
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown action", `
name: bad
sla: 30s
steps:
  - action: reboot-datacenter
`},
		{"no steps", `
name: bad
sla: 30s
steps: []
`},
		{"sla too small", `
name: bad
sla: 100ms
steps:
  - action: restart-unit
`},
		{"sla too large", `
name: bad
sla: 25h
steps:
  - action: restart-unit
`},
		{"unknown check type", `
name: bad
sla: 30s
steps:
  - action: restart-unit
checks:
  - type: quantum-probe
    within: 5s
`},
		{"unit-state without state", `
name: bad
sla: 30s
steps:
  - action: restart-unit
checks:
  - type: unit-state
    within: 5s
`},
		{"http without url", `
name: bad
sla: 30s
steps:
  - action: restart-unit
checks:
  - type: http
    within: 5s
`},
		{"unknown yaml field", `
name: bad
sla: 30s
rollback: true
steps:
  - action: restart-unit
`},
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c.doc)); err == nil {
			t.Errorf("%s: expected rejection", c.name)
		}
	}
}

// ============================================================
// LoadDir / Library
// ============================================================

func writePlaybook(t *testing.T, dir, file, doc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir_InvalidFileFailsWholeLoad(t *testing.T) {
	dir := t.TempDir()
	writePlaybook(t, dir, "good.yaml", validDoc)
	writePlaybook(t, dir, "bad.yaml", "name: broken\nsla: 30s\nsteps:\n  - action: nope\n")

	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected load to fail on the invalid file")
	}
}

func TestLibrary_ReloadKeepsPreviousSetOnError(t *testing.T) {
	dir := t.TempDir()
	writePlaybook(t, dir, "restart.yaml", validDoc)

	lib, err := NewLibrary(dir)
	if err != nil {
		t.Fatalf("NewLibrary() error: %v", err)
	}
	if _, err := lib.Get("restart-and-verify"); err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	writePlaybook(t, dir, "bad.yaml", "name: broken\nsla: 30s\nsteps:\n  - action: nope\n")
	if err := lib.Reload(); err == nil {
		t.Fatal("expected reload rejection")
	}
	// The old set must still serve.
	if _, err := lib.Get("restart-and-verify"); err != nil {
		t.Errorf("previous set lost after failed reload: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "bad.yaml")); err != nil {
		t.Fatal(err)
	}
	writePlaybook(t, dir, "shed.yaml", `
name: shed-and-restart
sla: 45s
steps:
  - action: shed-load
  - action: restart-unit
`)
	if err := lib.Reload(); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	names := lib.Names()
	if len(names) != 2 || names[0] != "restart-and-verify" || names[1] != "shed-and-restart" {
		t.Errorf("unexpected names after reload: %v", names)
	}
}

func TestLoadDir_DuplicateNamesRejected(t *testing.T) {
	dir := t.TempDir()
	writePlaybook(t, dir, "a.yaml", validDoc)
	writePlaybook(t, dir, "b.yaml", validDoc)

	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected duplicate name rejection")
	}
}
