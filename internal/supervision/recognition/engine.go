package recognition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/infra/remediation"
	"github.com/vietddude/overseer/internal/infra/storage"
	"github.com/vietddude/overseer/internal/observe"
	"github.com/vietddude/overseer/internal/supervision/metrics"
)

// ApplyFunc executes a playbook against an incident. Implemented by the
// playbook engine; typed as a func to keep the engines decoupled.
type ApplyFunc func(ctx context.Context, playbookName string, incident *domain.Incident) (*domain.ExecutionResult, error)

// Config holds recognition engine settings.
type Config struct {
	GeneratorTimeout time.Duration
	Policy           ConfidencePolicy
}

// Engine turns unit failures into incidents and drives them to a
// disposition: auto-applied playbook, generator-proposed playbook, or
// escalation when nothing applies.
type Engine struct {
	cfg       Config
	capturer  *Capturer
	incidents storage.IncidentRepository
	kb        storage.KnowledgeBaseRepository
	generator remediation.Generator
	apply     ApplyFunc
	bus       *observe.Bus
	log       *slog.Logger

	// Concurrent failures with the same signature share one
	// remediation; distinct signatures proceed independently.
	group singleflight.Group
}

// NewEngine creates a recognition engine.
func NewEngine(
	cfg Config,
	capturer *Capturer,
	incidents storage.IncidentRepository,
	kb storage.KnowledgeBaseRepository,
	generator remediation.Generator,
	apply ApplyFunc,
	bus *observe.Bus,
) *Engine {
	if cfg.GeneratorTimeout <= 0 {
		cfg.GeneratorTimeout = 10 * time.Second
	}
	if cfg.Policy.Rate == 0 {
		cfg.Policy = DefaultConfidencePolicy()
	}
	return &Engine{
		cfg:       cfg,
		capturer:  capturer,
		incidents: incidents,
		kb:        kb,
		generator: generator,
		apply:     apply,
		bus:       bus,
		log:       slog.Default(),
	}
}

// disposition is the shared result of one coalesced remediation.
type disposition struct {
	outcome   domain.IncidentOutcome
	playbook  string
	escalated bool
}

// HandleFailure captures diagnostics for a failed unit, opens an
// incident and drives it to a close. Every failure gets its own
// incident; concurrent failures with an identical signature inherit the
// outcome of the single in-flight remediation.
func (e *Engine) HandleFailure(ctx context.Context, unitName string, failure error) (string, error) {
	category := Categorize(failure)
	msg := ""
	if failure != nil {
		msg = failure.Error()
	}

	bundle := e.capturer.Capture(ctx, unitName, category, msg)
	sig := Compute(unitName, category, msg)

	incident := &domain.Incident{
		ID:        uuid.New().String(),
		UnitName:  unitName,
		Signature: sig,
		Bundle:    bundle,
		Outcome:   domain.OutcomePending,
		Status:    domain.IncidentStatusOpen,
		CreatedAt: time.Now(),
	}
	if err := e.incidents.Create(ctx, incident); err != nil {
		return "", err
	}
	metrics.OpenIncidents.Inc()
	e.publish(domain.NewEvent("recognition", domain.EventIncident, unitName, "opened").
		With("incident_id", incident.ID).
		With("signature", sig).
		With("category", string(category)).
		With("partial_bundle", bundle.Partial))

	v, err, shared := e.group.Do(sig, func() (any, error) {
		return e.remediate(ctx, sig, incident), nil
	})
	if err != nil {
		// The remediate closure never errors; keep the incident honest anyway.
		e.closeIncident(ctx, incident, domain.OutcomeEscalated, "")
		return incident.ID, err
	}
	d := v.(disposition)
	if shared {
		e.log.Debug("Remediation coalesced", "unit", unitName, "signature", sig)
	}

	incident.Escalated = d.escalated
	e.closeIncident(ctx, incident, d.outcome, d.playbook)
	return incident.ID, nil
}

// remediate resolves one signature: pick a playbook (known, proposed or
// none), run it, and fold the result back into the knowledge base.
func (e *Engine) remediate(ctx context.Context, sig string, incident *domain.Incident) disposition {
	entry, err := e.kb.Get(ctx, sig)
	switch {
	case errors.Is(err, storage.ErrEntryNotFound):
		entry = domain.NewKnowledgeEntry(sig)
		if putErr := e.kb.Put(ctx, entry); putErr != nil {
			e.log.Warn("Knowledge entry create failed", "signature", sig, "error", putErr)
		}
	case err != nil:
		e.log.Error("Knowledge lookup failed", "signature", sig, "error", err)
		return disposition{outcome: domain.OutcomeEscalated, escalated: true}
	}

	playbook := ""
	escalated := false
	if entry.AutoApply && entry.PlaybookName != "" {
		playbook = entry.PlaybookName
		e.log.Info("Auto-applying known remediation",
			"unit", incident.UnitName,
			"playbook", playbook,
			"confidence", entry.Confidence,
		)
	} else {
		escalated = true
		proposal, propErr := e.propose(ctx, incident.Bundle)
		if propErr != nil {
			if !errors.Is(propErr, remediation.ErrNoRemediation) {
				e.log.Warn("Remediation generator unavailable",
					"unit", incident.UnitName, "error", propErr)
			}
			return disposition{outcome: domain.OutcomeEscalated, escalated: true}
		}
		playbook = proposal.PlaybookName
		e.log.Info("Generator proposed remediation",
			"unit", incident.UnitName,
			"playbook", playbook,
			"source", proposal.Source,
		)
	}

	outcome := e.execute(ctx, playbook, incident)
	e.updateKnowledge(ctx, entry, playbook, outcome == domain.OutcomeResolved)
	return disposition{outcome: outcome, playbook: playbook, escalated: escalated}
}

func (e *Engine) propose(ctx context.Context, bundle *domain.DiagnosticBundle) (*remediation.Proposal, error) {
	if e.generator == nil {
		return nil, remediation.ErrNoRemediation
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.GeneratorTimeout)
	defer cancel()
	return e.generator.Propose(ctx, bundle)
}

func (e *Engine) execute(ctx context.Context, playbook string, incident *domain.Incident) domain.IncidentOutcome {
	if e.apply == nil || playbook == "" {
		return domain.OutcomeEscalated
	}

	started := time.Now()
	result, err := e.apply(ctx, playbook, incident)
	elapsed := time.Since(started)

	switch {
	case err != nil:
		metrics.RemediationDuration.WithLabelValues(playbook, "error").Observe(elapsed.Seconds())
		e.log.Error("Playbook execution errored",
			"playbook", playbook, "incident", incident.ID, "error", err)
		return domain.OutcomeFailed
	case result.TimedOut:
		metrics.RemediationDuration.WithLabelValues(playbook, "timeout").Observe(elapsed.Seconds())
		return domain.OutcomeTimeout
	case result.Success:
		metrics.RemediationDuration.WithLabelValues(playbook, "success").Observe(elapsed.Seconds())
		return domain.OutcomeResolved
	default:
		metrics.RemediationDuration.WithLabelValues(playbook, "failed").Observe(elapsed.Seconds())
		return domain.OutcomeFailed
	}
}

// updateKnowledge records the attempt against the signature. Escalated
// proposals count too: a generator-sourced playbook that works earns
// confidence toward auto-apply.
func (e *Engine) updateKnowledge(ctx context.Context, entry *domain.KnowledgeEntry, playbook string, success bool) {
	if playbook != "" {
		entry.PlaybookName = playbook
	}
	e.cfg.Policy.Update(entry, success)
	metrics.KnowledgeConfidence.WithLabelValues(entry.Signature).Set(entry.Confidence)

	if err := e.kb.Put(ctx, entry); err != nil {
		e.log.Warn("Knowledge update failed", "signature", entry.Signature, "error", err)
	}
}

func (e *Engine) closeIncident(ctx context.Context, incident *domain.Incident, outcome domain.IncidentOutcome, playbook string) {
	if err := e.incidents.Close(ctx, incident.ID, outcome, playbook); err != nil {
		e.log.Error("Incident close failed", "incident", incident.ID, "error", err)
	}
	metrics.OpenIncidents.Dec()
	metrics.IncidentsTotal.WithLabelValues(incident.UnitName, string(outcome)).Inc()
	e.publish(domain.NewEvent("recognition", domain.EventIncident, incident.UnitName, "closed").
		With("incident_id", incident.ID).
		With("outcome", string(outcome)).
		With("playbook", playbook).
		With("escalated", incident.Escalated))
}

func (e *Engine) publish(ev *domain.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
