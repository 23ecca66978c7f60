package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

var (
	// ErrInvalidTransition is returned for moves the state machine forbids,
	// including dependency-invariant violations. Never retried.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrExhaustedRetries is returned when a restart would exceed the
	// unit's budget. The unit stays in terminal Failed.
	ErrExhaustedRetries = errors.New("restart budget exhausted")

	// ErrUnitNotFound is returned when a unit is not registered.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrAlreadyRegistered is returned on duplicate registration.
	ErrAlreadyRegistered = errors.New("unit already registered")

	// ErrUnknownDependency is returned when a spec names a dependency
	// that is not registered.
	ErrUnknownDependency = errors.New("unknown dependency")
)

// journalCapacity bounds the in-memory transition journal.
const journalCapacity = 1024

// Registry is the canonical store for unit lifecycle state.
type Registry interface {
	// Register adds a unit in Registered state.
	Register(spec domain.UnitSpec) (*domain.Unit, error)

	// Transition moves a unit to a new state, enforcing the state machine,
	// the dependency invariant and the restart budget.
	Transition(name string, to domain.UnitState, reason string) error

	// Get returns a copy of the unit record.
	Get(name string) (*domain.Unit, error)

	// List returns copies of all units.
	List() []*domain.Unit

	// ListByTier returns copies of all units in the given tier.
	ListByTier(tier int) []*domain.Unit

	// Tiers returns all known tiers in ascending (most critical first) order.
	Tiers() []int

	// RecordHeartbeat stamps the unit's last heartbeat.
	RecordHeartbeat(name string, at time.Time) error

	// Deregister removes a unit. Only Stopped units may be deregistered.
	Deregister(name string) error

	// Journal returns the most recent transitions, newest last.
	Journal(limit int) []Transition

	// SetTransitionCallback registers a callback fired after every
	// successful transition.
	SetTransitionCallback(fn func(t Transition))
}

// unitSlot serializes writes for a single unit.
type unitSlot struct {
	mu   sync.Mutex
	unit *domain.Unit
}

// DefaultRegistry implements Registry with per-unit write serialization
// and concurrent reads.
type DefaultRegistry struct {
	mu       sync.RWMutex
	units    map[string]*unitSlot
	seq      atomic.Uint64
	journal  []Transition
	jmu      sync.Mutex
	callback func(Transition)
}

// New creates an empty registry.
func New() *DefaultRegistry {
	return &DefaultRegistry{
		units: make(map[string]*unitSlot),
	}
}

// Register adds a unit in Registered state.
func (r *DefaultRegistry) Register(spec domain.UnitSpec) (*domain.Unit, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("unit name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[spec.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, spec.Name)
	}
	for _, dep := range spec.DependsOn {
		if _, ok := r.units[dep]; !ok {
			return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, spec.Name, dep)
		}
	}

	u := &domain.Unit{
		Name:        spec.Name,
		Tier:        spec.Tier,
		DependsOn:   append([]string(nil), spec.DependsOn...),
		State:       domain.UnitStateRegistered,
		MaxRestarts: spec.MaxRestarts,
		UpdatedAt:   time.Now(),
	}
	r.units[spec.Name] = &unitSlot{unit: u}
	return u.Clone(), nil
}

// Transition moves a unit to a new state.
func (r *DefaultRegistry) Transition(name string, to domain.UnitState, reason string) error {
	slot, err := r.slot(name)
	if err != nil {
		return err
	}

	slot.mu.Lock()
	u := slot.unit
	from := u.State

	if !CanTransition(from, to) {
		slot.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, name, from, to)
	}

	if to == domain.UnitStateStarting {
		// Every entry into Starting consumes one attempt from the budget.
		// Once the budget is spent, Failed is terminal.
		if u.RestartCount >= u.MaxRestarts {
			slot.mu.Unlock()
			return fmt.Errorf("%w: %s after %d attempts", ErrExhaustedRetries, name, u.RestartCount)
		}
		// Dependency invariant: every dependency must be Ready or Running.
		if err := r.checkDependencies(u); err != nil {
			slot.mu.Unlock()
			return err
		}
		u.RestartCount++
	}

	u.State = to
	u.UpdatedAt = time.Now()
	if to == domain.UnitStateFailed || to == domain.UnitStateDegraded {
		u.LastError = reason
	}
	seq := r.seq.Add(1)
	u.Seq = seq
	slot.mu.Unlock()

	t := Transition{
		UnitName:  name,
		From:      from,
		To:        to,
		Reason:    reason,
		Seq:       seq,
		Timestamp: time.Now(),
	}
	r.record(t)
	return nil
}

// checkDependencies verifies every dependency is Ready or Running.
func (r *DefaultRegistry) checkDependencies(u *domain.Unit) error {
	for _, dep := range u.DependsOn {
		depSlot, err := r.slot(dep)
		if err != nil {
			return fmt.Errorf("%w: %s depends on unregistered %s", ErrInvalidTransition, u.Name, dep)
		}
		depSlot.mu.Lock()
		state := depSlot.unit.State
		depSlot.mu.Unlock()
		if state != domain.UnitStateReady && state != domain.UnitStateRunning {
			return fmt.Errorf("%w: %s requires %s ready/running, is %s",
				ErrInvalidTransition, u.Name, dep, state)
		}
	}
	return nil
}

// Get returns a copy of the unit record.
func (r *DefaultRegistry) Get(name string) (*domain.Unit, error) {
	slot, err := r.slot(name)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.unit.Clone(), nil
}

// List returns copies of all units sorted by tier then name.
func (r *DefaultRegistry) List() []*domain.Unit {
	r.mu.RLock()
	slots := make([]*unitSlot, 0, len(r.units))
	for _, s := range r.units {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	units := make([]*domain.Unit, 0, len(slots))
	for _, s := range slots {
		s.mu.Lock()
		units = append(units, s.unit.Clone())
		s.mu.Unlock()
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Tier != units[j].Tier {
			return units[i].Tier < units[j].Tier
		}
		return units[i].Name < units[j].Name
	})
	return units
}

// ListByTier returns copies of all units in the given tier.
func (r *DefaultRegistry) ListByTier(tier int) []*domain.Unit {
	var out []*domain.Unit
	for _, u := range r.List() {
		if u.Tier == tier {
			out = append(out, u)
		}
	}
	return out
}

// Tiers returns all known tiers in ascending order.
func (r *DefaultRegistry) Tiers() []int {
	seen := make(map[int]bool)
	var tiers []int
	for _, u := range r.List() {
		if !seen[u.Tier] {
			seen[u.Tier] = true
			tiers = append(tiers, u.Tier)
		}
	}
	sort.Ints(tiers)
	return tiers
}

// RecordHeartbeat stamps the unit's last heartbeat.
func (r *DefaultRegistry) RecordHeartbeat(name string, at time.Time) error {
	slot, err := r.slot(name)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if at.After(slot.unit.LastHeartbeat) {
		slot.unit.LastHeartbeat = at
	}
	return nil
}

// Deregister removes a unit. Only Stopped units may be deregistered.
func (r *DefaultRegistry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.units[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	slot.mu.Lock()
	state := slot.unit.State
	slot.mu.Unlock()
	if state != domain.UnitStateStopped {
		return fmt.Errorf("%w: deregister requires Stopped, %s is %s",
			ErrInvalidTransition, name, state)
	}
	delete(r.units, name)
	return nil
}

// Journal returns the most recent transitions, newest last.
func (r *DefaultRegistry) Journal(limit int) []Transition {
	r.jmu.Lock()
	defer r.jmu.Unlock()
	if limit <= 0 || limit > len(r.journal) {
		limit = len(r.journal)
	}
	out := make([]Transition, limit)
	copy(out, r.journal[len(r.journal)-limit:])
	return out
}

// SetTransitionCallback registers a callback fired after every transition.
func (r *DefaultRegistry) SetTransitionCallback(fn func(t Transition)) {
	r.jmu.Lock()
	r.callback = fn
	r.jmu.Unlock()
}

func (r *DefaultRegistry) slot(name string) (*unitSlot, error) {
	r.mu.RLock()
	slot, ok := r.units[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	return slot, nil
}

func (r *DefaultRegistry) record(t Transition) {
	r.jmu.Lock()
	r.journal = append(r.journal, t)
	if len(r.journal) > journalCapacity {
		r.journal = r.journal[len(r.journal)-journalCapacity:]
	}
	cb := r.callback
	r.jmu.Unlock()

	if cb != nil {
		cb(t)
	}
}
