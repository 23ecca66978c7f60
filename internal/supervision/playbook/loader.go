package playbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/overseer/internal/core/domain"
)

// SLA bounds accepted at load time. Anything outside is a config error.
const (
	minSLA = time.Second
	maxSLA = time.Hour
)

type stepDoc struct {
	Action   string            `yaml:"action"`
	Params   map[string]string `yaml:"params"`
	Optional bool              `yaml:"optional"`
}

type checkDoc struct {
	Type   string        `yaml:"type"`
	Unit   string        `yaml:"unit"`
	State  string        `yaml:"state"`
	URL    string        `yaml:"url"`
	Within time.Duration `yaml:"within"`
}

type playbookDoc struct {
	Name    string        `yaml:"name"`
	Version string        `yaml:"version"`
	SLA     time.Duration `yaml:"sla"`
	Steps   []stepDoc     `yaml:"steps"`
	Checks  []checkDoc    `yaml:"checks"`
}

// Parse decodes one YAML document into a validated playbook.
func Parse(data []byte) (*domain.Playbook, error) {
	var doc playbookDoc
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("parse playbook: %w", err)
	}

	pb := &domain.Playbook{
		Name:    doc.Name,
		Version: doc.Version,
		SLA:     doc.SLA,
	}
	for _, s := range doc.Steps {
		pb.Steps = append(pb.Steps, domain.PlaybookStep{
			Action:   domain.PlaybookAction(s.Action),
			Params:   s.Params,
			Optional: s.Optional,
		})
	}
	for _, c := range doc.Checks {
		pb.Checks = append(pb.Checks, domain.PlaybookCheck{
			Type:   domain.CheckType(c.Type),
			Unit:   c.Unit,
			State:  domain.UnitState(c.State),
			URL:    c.URL,
			Within: c.Within,
		})
	}

	if err := Validate(pb); err != nil {
		return nil, err
	}
	return pb, nil
}

// Validate rejects a playbook that could request behavior outside the
// closed action and check sets, or carry an unenforceable SLA.
func Validate(pb *domain.Playbook) error {
	if pb.Name == "" {
		return fmt.Errorf("playbook has no name")
	}
	if len(pb.Steps) == 0 {
		return fmt.Errorf("playbook %s: no steps", pb.Name)
	}
	if pb.SLA < minSLA || pb.SLA > maxSLA {
		return fmt.Errorf("playbook %s: sla %v out of bounds [%v, %v]", pb.Name, pb.SLA, minSLA, maxSLA)
	}
	for i, s := range pb.Steps {
		if !domain.KnownActions[s.Action] {
			return fmt.Errorf("playbook %s: step %d: unknown action %q", pb.Name, i, s.Action)
		}
	}
	for i, c := range pb.Checks {
		if !domain.KnownChecks[c.Type] {
			return fmt.Errorf("playbook %s: check %d: unknown type %q", pb.Name, i, c.Type)
		}
		if c.Within <= 0 {
			return fmt.Errorf("playbook %s: check %d: within must be positive", pb.Name, i)
		}
		switch c.Type {
		case domain.CheckUnitState:
			// Unit is optional; it defaults to the incident's unit at
			// execution time.
			if c.State == "" {
				return fmt.Errorf("playbook %s: check %d: unit-state needs state", pb.Name, i)
			}
		case domain.CheckHTTP:
			if c.URL == "" {
				return fmt.Errorf("playbook %s: check %d: http needs url", pb.Name, i)
			}
		}
	}
	return nil
}

// LoadDir parses every .yaml/.yml file in dir. A single invalid file
// fails the whole load so a bad edit can never half-apply.
func LoadDir(dir string) (map[string]*domain.Playbook, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read playbook dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	books := make(map[string]*domain.Playbook, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pb, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := books[pb.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate playbook name %q", name, pb.Name)
		}
		books[pb.Name] = pb
	}
	return books, nil
}
