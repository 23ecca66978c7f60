package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/infra/storage"
)

// MemoryStorage backs every repository when no database is configured.
type MemoryStorage struct {
	incidents map[string]*domain.Incident
	entries   map[string]*domain.KnowledgeEntry
	ledger    []*domain.LedgerEntry
	mu        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		incidents: make(map[string]*domain.Incident),
		entries:   make(map[string]*domain.KnowledgeEntry),
	}
}

// -----------------------------------------------------------------------------
// Incident Repository
// -----------------------------------------------------------------------------

type IncidentRepo struct {
	store *MemoryStorage
}

func NewIncidentRepo(store *MemoryStorage) *IncidentRepo {
	return &IncidentRepo{store: store}
}

func (r *IncidentRepo) Create(ctx context.Context, incident *domain.Incident) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *incident
	r.store.incidents[incident.ID] = &cp
	return nil
}

func (r *IncidentRepo) Close(
	ctx context.Context,
	id string,
	outcome domain.IncidentOutcome,
	playbook string,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	inc, ok := r.store.incidents[id]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrIncidentNotFound, id)
	}
	inc.Status = domain.IncidentStatusClosed
	inc.Outcome = outcome
	if playbook != "" {
		inc.Playbook = playbook
	}
	inc.ClosedAt = time.Now()
	return nil
}

func (r *IncidentRepo) Get(ctx context.Context, id string) (*domain.Incident, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	inc, ok := r.store.incidents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrIncidentNotFound, id)
	}
	cp := *inc
	return &cp, nil
}

func (r *IncidentRepo) ListOpen(ctx context.Context) ([]*domain.Incident, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var out []*domain.Incident
	for _, inc := range r.store.incidents {
		if inc.Status == domain.IncidentStatusOpen {
			cp := *inc
			out = append(out, &cp)
		}
	}
	sortIncidents(out)
	return out, nil
}

func (r *IncidentRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Incident, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.Incident, 0, len(r.store.incidents))
	for _, inc := range r.store.incidents {
		cp := *inc
		out = append(out, &cp)
	}
	sortIncidents(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *IncidentRepo) CountOpen(ctx context.Context) (int, error) {
	open, err := r.ListOpen(ctx)
	return len(open), err
}

func (r *IncidentRepo) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	n := 0
	for id, inc := range r.store.incidents {
		if inc.Status == domain.IncidentStatusClosed && inc.ClosedAt.Before(cutoff) {
			delete(r.store.incidents, id)
			n++
		}
	}
	return n, nil
}

func sortIncidents(incs []*domain.Incident) {
	sort.Slice(incs, func(i, j int) bool {
		return incs[i].CreatedAt.After(incs[j].CreatedAt)
	})
}

// -----------------------------------------------------------------------------
// Knowledge Base Repository
// -----------------------------------------------------------------------------

type KnowledgeRepo struct {
	store *MemoryStorage
}

func NewKnowledgeRepo(store *MemoryStorage) *KnowledgeRepo {
	return &KnowledgeRepo{store: store}
}

func (r *KnowledgeRepo) Get(ctx context.Context, signature string) (*domain.KnowledgeEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	entry, ok := r.store.entries[signature]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrEntryNotFound, signature)
	}
	cp := *entry
	return &cp, nil
}

func (r *KnowledgeRepo) Put(ctx context.Context, entry *domain.KnowledgeEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	r.store.entries[entry.Signature] = &cp
	return nil
}

func (r *KnowledgeRepo) List(ctx context.Context) ([]*domain.KnowledgeEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]*domain.KnowledgeEntry, 0, len(r.store.entries))
	for _, e := range r.store.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature < out[j].Signature })
	return out, nil
}

func (r *KnowledgeRepo) Delete(ctx context.Context, signature string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.entries, signature)
	return nil
}

func (r *KnowledgeRepo) DeleteAll(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.entries = make(map[string]*domain.KnowledgeEntry)
	return nil
}

// -----------------------------------------------------------------------------
// Scenario Ledger Repository
// -----------------------------------------------------------------------------

type LedgerRepo struct {
	store *MemoryStorage
}

func NewLedgerRepo(store *MemoryStorage) *LedgerRepo {
	return &LedgerRepo{store: store}
}

func (r *LedgerRepo) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *entry
	r.store.ledger = append(r.store.ledger, &cp)
	return nil
}

func (r *LedgerRepo) Last(ctx context.Context, scenario string) (*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for i := len(r.store.ledger) - 1; i >= 0; i-- {
		if r.store.ledger[i].ScenarioName == scenario {
			cp := *r.store.ledger[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *LedgerRepo) Recent(ctx context.Context, limit int) ([]*domain.LedgerEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	n := len(r.store.ledger)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*domain.LedgerEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *r.store.ledger[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *LedgerRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	kept := r.store.ledger[:0]
	n := 0
	for _, e := range r.store.ledger {
		if e.RunAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.store.ledger = kept
	return n, nil
}
