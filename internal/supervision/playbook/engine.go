package playbook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/observe"
)

// Collaborator funcs wired in by the control plane. The engine dispatches
// the closed action set onto these; it never reaches into unit internals.
type (
	// RestartFunc stops and restarts a unit through the supervisor.
	RestartFunc func(ctx context.Context, unit string) error
	// ScaleFunc adjusts a resource limit for a unit.
	ScaleFunc func(ctx context.Context, unit string, params map[string]string) error
	// ShedFunc pauses a non-critical unit under load.
	ShedFunc func(ctx context.Context, unit string) error
	// RestoreFunc restores a unit's state from its last snapshot.
	RestoreFunc func(ctx context.Context, unit string, params map[string]string) error
	// RewriteFunc rewrites a unit's configuration.
	RewriteFunc func(ctx context.Context, unit string, params map[string]string) error
	// NotifyFunc delivers an operator notification.
	NotifyFunc func(ctx context.Context, message string, params map[string]string) error
)

// Actions bundles the collaborators for step dispatch.
type Actions struct {
	Restart RestartFunc
	Scale   ScaleFunc
	Shed    ShedFunc
	Restore RestoreFunc
	Rewrite RewriteFunc
	Notify  NotifyFunc
}

// StateSource supplies current unit state for post-condition checks.
type StateSource interface {
	Get(name string) (*domain.Unit, error)
}

// BeatSource supplies the last heartbeat for freshness checks.
type BeatSource interface {
	Last(name string) (time.Time, bool)
}

// Engine executes playbooks step by step under their SLA and verifies
// post-conditions afterwards.
type Engine struct {
	lib     *Library
	states  StateSource
	beats   BeatSource
	actions Actions
	client  *http.Client
	poll    time.Duration
	bus     *observe.Bus
	log     *slog.Logger
}

// NewEngine creates a playbook engine.
func NewEngine(lib *Library, states StateSource, beats BeatSource, actions Actions, bus *observe.Bus) *Engine {
	return &Engine{
		lib:     lib,
		states:  states,
		beats:   beats,
		actions: actions,
		client:  &http.Client{Timeout: 5 * time.Second},
		poll:    500 * time.Millisecond,
		bus:     bus,
		log:     slog.Default(),
	}
}

// Apply looks a playbook up by name and executes it for the incident.
func (e *Engine) Apply(ctx context.Context, name string, incident *domain.Incident) (*domain.ExecutionResult, error) {
	pb, err := e.lib.Get(name)
	if err != nil {
		return nil, err
	}
	return e.Execute(ctx, pb, incident), nil
}

// Execute runs every step in order under the playbook's SLA, then
// evaluates post-condition checks. A non-optional step failure aborts
// the remaining steps; any failing check fails the whole result. There
// is no implicit rollback on SLA breach, only a timed-out result.
func (e *Engine) Execute(ctx context.Context, pb *domain.Playbook, incident *domain.Incident) *domain.ExecutionResult {
	result := &domain.ExecutionResult{
		PlaybookName: pb.Name,
		Version:      pb.Version,
		IncidentID:   incident.ID,
		StartedAt:    time.Now(),
	}
	defer func() { result.FinishedAt = time.Now() }()

	ctx, cancel := context.WithTimeout(ctx, pb.SLA)
	defer cancel()

	e.publish(domain.NewEvent("playbook", domain.EventRemediation, pb.Name, "started").
		With("incident_id", incident.ID).
		With("unit", incident.UnitName))

	stepsOK := e.runSteps(ctx, pb, incident, result)
	checksOK := true
	if stepsOK {
		checksOK = e.runChecks(ctx, pb, incident, result)
	}

	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
	}
	result.Success = stepsOK && checksOK && !result.TimedOut

	outcome := "succeeded"
	if !result.Success {
		outcome = "failed"
	}
	e.publish(domain.NewEvent("playbook", domain.EventRemediation, pb.Name, outcome).
		With("incident_id", incident.ID).
		With("timed_out", result.TimedOut))
	return result
}

func (e *Engine) runSteps(ctx context.Context, pb *domain.Playbook, incident *domain.Incident, result *domain.ExecutionResult) bool {
	for i, step := range pb.Steps {
		if ctx.Err() != nil {
			return false
		}
		started := time.Now()
		err := e.dispatch(ctx, step, incident)
		rec := domain.StepRecord{
			Index:    i,
			Action:   step.Action,
			Optional: step.Optional,
			Duration: time.Since(started),
		}
		if err != nil {
			rec.Error = err.Error()
		}
		result.Steps = append(result.Steps, rec)

		if err != nil {
			if step.Optional {
				e.log.Warn("Optional step failed, continuing",
					"playbook", pb.Name, "step", i, "action", step.Action, "error", err)
				continue
			}
			e.log.Error("Step failed, aborting playbook",
				"playbook", pb.Name, "step", i, "action", step.Action, "error", err)
			return false
		}
	}
	return true
}

// dispatch maps one step onto its collaborator. The action set is
// closed at validation time; an unknown action here is a wiring bug.
func (e *Engine) dispatch(ctx context.Context, step domain.PlaybookStep, incident *domain.Incident) error {
	unit := step.Params["unit"]
	if unit == "" {
		unit = incident.UnitName
	}

	switch step.Action {
	case domain.ActionRestartUnit:
		if e.actions.Restart == nil {
			return fmt.Errorf("restart action not wired")
		}
		return e.actions.Restart(ctx, unit)

	case domain.ActionScaleResource:
		if e.actions.Scale == nil {
			return fmt.Errorf("scale action not wired")
		}
		return e.actions.Scale(ctx, unit, step.Params)

	case domain.ActionShedLoad:
		if e.actions.Shed == nil {
			return fmt.Errorf("shed action not wired")
		}
		return e.actions.Shed(ctx, unit)

	case domain.ActionRestoreFromSnapshot:
		if e.actions.Restore == nil {
			return fmt.Errorf("restore action not wired")
		}
		return e.actions.Restore(ctx, unit, step.Params)

	case domain.ActionRewriteConfig:
		if e.actions.Rewrite == nil {
			return fmt.Errorf("rewrite action not wired")
		}
		return e.actions.Rewrite(ctx, unit, step.Params)

	case domain.ActionRunExternalCheck:
		return e.externalCheck(ctx, step.Params["url"])

	case domain.ActionNotify:
		if e.actions.Notify == nil {
			e.log.Warn("Notify action not wired, logging only", "message", step.Params["message"])
			return nil
		}
		return e.actions.Notify(ctx, step.Params["message"], step.Params)

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func (e *Engine) externalCheck(ctx context.Context, url string) error {
	if url == "" {
		return fmt.Errorf("run-external-check: no url param")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("run-external-check: %s returned %d", url, resp.StatusCode)
	}
	return nil
}

func (e *Engine) runChecks(ctx context.Context, pb *domain.Playbook, incident *domain.Incident, result *domain.ExecutionResult) bool {
	allPassed := true
	for i, check := range pb.Checks {
		if check.Unit == "" {
			check.Unit = incident.UnitName
		}
		started := time.Now()
		passed, detail := e.evaluate(ctx, check)
		result.Checks = append(result.Checks, domain.CheckRecord{
			Index:  i,
			Type:   check.Type,
			Passed: passed,
			Detail: detail,
			Waited: time.Since(started),
		})
		if !passed {
			e.log.Warn("Post-condition check failed",
				"playbook", pb.Name, "check", i, "type", check.Type, "detail", detail)
			allPassed = false
		}
	}
	return allPassed
}

// evaluate runs one post-condition. unit-state samples across the whole
// window and requires the target state to hold at its end, so a unit
// that reaches the state and flaps back out fails the check.
func (e *Engine) evaluate(ctx context.Context, check domain.PlaybookCheck) (bool, string) {
	switch check.Type {
	case domain.CheckUnitState:
		return e.checkUnitState(ctx, check)
	case domain.CheckHeartbeatFresh:
		return e.checkHeartbeatFresh(check)
	case domain.CheckHTTP:
		return e.checkHTTP(ctx, check)
	default:
		return false, fmt.Sprintf("unknown check type %q", check.Type)
	}
}

func (e *Engine) checkUnitState(ctx context.Context, check domain.PlaybookCheck) (bool, string) {
	deadline := time.Now().Add(check.Within)
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	var last domain.UnitState
	for {
		u, err := e.states.Get(check.Unit)
		if err != nil {
			return false, err.Error()
		}
		last = u.State
		if u.Terminal() && u.State != check.State {
			return false, fmt.Sprintf("unit %s terminal in %s", check.Unit, u.State)
		}
		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return false, "sla elapsed during check"
		case <-ticker.C:
		}
	}
	if last != check.State {
		return false, fmt.Sprintf("unit %s in %s, wanted %s", check.Unit, last, check.State)
	}
	return true, ""
}

func (e *Engine) checkHeartbeatFresh(check domain.PlaybookCheck) (bool, string) {
	if e.beats == nil {
		return false, "no heartbeat source wired"
	}
	last, ok := e.beats.Last(check.Unit)
	if !ok {
		return false, fmt.Sprintf("unit %s has no heartbeats", check.Unit)
	}
	age := time.Since(last)
	if age > check.Within {
		return false, fmt.Sprintf("last heartbeat %v ago, wanted within %v", age.Round(time.Millisecond), check.Within)
	}
	return true, ""
}

func (e *Engine) checkHTTP(ctx context.Context, check domain.PlaybookCheck) (bool, string) {
	deadline := time.Now().Add(check.Within)
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		err := e.externalCheck(ctx, check.URL)
		if err == nil {
			return true, ""
		}
		if !time.Now().Before(deadline) {
			return false, err.Error()
		}
		select {
		case <-ctx.Done():
			return false, "sla elapsed during check"
		case <-ticker.C:
		}
	}
}

func (e *Engine) publish(ev *domain.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
