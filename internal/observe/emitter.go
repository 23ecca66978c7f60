// Package observe publishes structured supervisory events to configured sinks.
package observe

import (
	"context"
	"log/slog"

	"github.com/vietddude/overseer/internal/core/domain"
	"github.com/vietddude/overseer/internal/supervision/metrics"
)

// Emitter defines the interface for publishing supervisory events.
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.Event) error

	// EmitBatch sends multiple events
	EmitBatch(ctx context.Context, events []*domain.Event) error

	// Close closes the emitter
	Close() error
}

// LogEmitter writes events to the structured logger.
type LogEmitter struct {
	log *slog.Logger
}

// NewLogEmitter creates a LogEmitter over the given logger.
func NewLogEmitter(log *slog.Logger) *LogEmitter {
	if log == nil {
		log = slog.Default()
	}
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(ctx context.Context, event *domain.Event) error {
	attrs := []any{
		"actor", event.Actor,
		"resource", event.Resource,
		"outcome", event.Outcome,
	}
	for k, v := range event.Payload {
		attrs = append(attrs, k, v)
	}
	if event.Action == domain.EventEmergency {
		e.log.Error("EMERGENCY", attrs...)
	} else {
		e.log.Info(string(event.Action), attrs...)
	}
	return nil
}

func (e *LogEmitter) EmitBatch(ctx context.Context, events []*domain.Event) error {
	for _, ev := range events {
		if err := e.Emit(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *LogEmitter) Close() error { return nil }

// MetricsEmitter counts events in prometheus.
type MetricsEmitter struct{}

func (e *MetricsEmitter) Emit(ctx context.Context, event *domain.Event) error {
	metrics.EventsTotal.WithLabelValues(string(event.Action), event.Outcome).Inc()
	if event.Action == domain.EventEmergency {
		metrics.EmergenciesTotal.WithLabelValues(event.Resource).Inc()
	}
	return nil
}

func (e *MetricsEmitter) EmitBatch(ctx context.Context, events []*domain.Event) error {
	for _, ev := range events {
		_ = e.Emit(ctx, ev)
	}
	return nil
}

func (e *MetricsEmitter) Close() error { return nil }
