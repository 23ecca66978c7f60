package domain

import "time"

// EventAction names the supervisory action an event describes.
type EventAction string

const (
	EventTransition  EventAction = "transition"
	EventBoot        EventAction = "boot"
	EventHeartbeat   EventAction = "heartbeat"
	EventIncident    EventAction = "incident"
	EventRemediation EventAction = "remediation"
	EventScenario    EventAction = "scenario"
	EventEmergency   EventAction = "emergency" // operator surface
)

// Event is a structured observability record published on the event bus.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"` // component producing the event
	Action    EventAction    `json:"action"`
	Resource  string         `json:"resource"` // unit, playbook, scenario, signature
	Outcome   string         `json:"outcome"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(actor string, action EventAction, resource, outcome string) *Event {
	return &Event{
		Timestamp: time.Now(),
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Outcome:   outcome,
	}
}

// With attaches a payload field and returns the event for chaining.
func (e *Event) With(key string, value any) *Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}
