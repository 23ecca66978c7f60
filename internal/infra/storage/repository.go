package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

var (
	// ErrIncidentNotFound is returned when an incident doesn't exist
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrEntryNotFound is returned when a knowledge-base entry doesn't exist
	ErrEntryNotFound = errors.New("knowledge entry not found")
)

// IncidentRepository handles incident persistence
type IncidentRepository interface {
	// Create stores a new open incident
	Create(ctx context.Context, incident *domain.Incident) error

	// Close marks an incident closed with its final outcome
	Close(ctx context.Context, id string, outcome domain.IncidentOutcome, playbook string) error

	// Get retrieves an incident by id
	Get(ctx context.Context, id string) (*domain.Incident, error)

	// ListOpen retrieves all open incidents
	ListOpen(ctx context.Context) ([]*domain.Incident, error)

	// ListRecent retrieves the most recent incidents, newest first
	ListRecent(ctx context.Context, limit int) ([]*domain.Incident, error)

	// CountOpen returns the number of open incidents
	CountOpen(ctx context.Context) (int, error)

	// DeleteClosedBefore removes closed incidents older than the cutoff
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// KnowledgeBaseRepository handles signature -> remediation entries.
// Writers are serialized per signature by the recognition engine;
// reads may happen concurrently.
type KnowledgeBaseRepository interface {
	// Get retrieves the entry for a signature
	Get(ctx context.Context, signature string) (*domain.KnowledgeEntry, error)

	// Put stores or replaces an entry
	Put(ctx context.Context, entry *domain.KnowledgeEntry) error

	// List retrieves all entries
	List(ctx context.Context) ([]*domain.KnowledgeEntry, error)

	// Delete removes an entry
	Delete(ctx context.Context, signature string) error

	// DeleteAll clears the knowledge base
	DeleteAll(ctx context.Context) error
}

// ScenarioLedgerRepository handles the harness pass/fail ledger
type ScenarioLedgerRepository interface {
	// Append records a scenario run
	Append(ctx context.Context, entry *domain.LedgerEntry) error

	// Last retrieves the latest entry for a scenario, nil if none
	Last(ctx context.Context, scenario string) (*domain.LedgerEntry, error)

	// Recent retrieves the most recent entries, newest first
	Recent(ctx context.Context, limit int) ([]*domain.LedgerEntry, error)

	// DeleteBefore removes entries older than the cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
