// Package remediation talks to the external remediation generator: given a
// diagnostic bundle it returns a playbook reference or "no remediation".
// The control plane is agnostic to what sits behind the endpoint.
package remediation

import (
	"context"
	"errors"

	"github.com/vietddude/overseer/internal/core/domain"
)

// ErrNoRemediation is returned when the generator has nothing to offer.
var ErrNoRemediation = errors.New("no remediation available")

// Proposal references a playbook the generator suggests for a bundle.
type Proposal struct {
	PlaybookName string  `json:"playbook"`
	Confidence   float64 `json:"confidence,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// Generator defines the external remediation generator contract.
type Generator interface {
	// Propose returns a playbook reference for the bundle, or
	// ErrNoRemediation. Must respect ctx deadlines.
	Propose(ctx context.Context, bundle *domain.DiagnosticBundle) (*Proposal, error)
}
