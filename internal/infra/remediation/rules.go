package remediation

import (
	"context"

	"github.com/vietddude/overseer/internal/core/domain"
)

// RulesGenerator maps failure categories to playbooks with a static table.
// Used when no external generator is configured, and in tests.
type RulesGenerator struct {
	byCategory map[domain.FailureCategory]string
}

// NewRulesGenerator creates a generator over the given category table.
func NewRulesGenerator(rules map[domain.FailureCategory]string) *RulesGenerator {
	return &RulesGenerator{byCategory: rules}
}

// DefaultRules pairs the common failure categories with the stock playbooks.
func DefaultRules() map[domain.FailureCategory]string {
	return map[domain.FailureCategory]string{
		domain.CategoryHeartbeatTimeout: "restart-and-verify",
		domain.CategoryStartFailure:     "restart-and-verify",
		domain.CategoryResource:         "shed-and-restart",
	}
}

func (g *RulesGenerator) Propose(
	ctx context.Context,
	bundle *domain.DiagnosticBundle,
) (*Proposal, error) {
	name, ok := g.byCategory[bundle.Category]
	if !ok {
		return nil, ErrNoRemediation
	}
	return &Proposal{PlaybookName: name, Source: "rules"}, nil
}
