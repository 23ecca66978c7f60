package observe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// logBufferCapacity bounds retained lines per unit.
const logBufferCapacity = 200

// LogBuffer is a slog.Handler wrapper that retains recent log lines per
// unit so diagnostic bundles can include them. Records carrying a "unit"
// attribute are indexed under that unit; everything lands in the global ring.
type LogBuffer struct {
	inner slog.Handler

	mu     sync.Mutex
	global []string
	byUnit map[string][]string
}

// NewLogBuffer wraps an existing handler.
func NewLogBuffer(inner slog.Handler) *LogBuffer {
	return &LogBuffer{
		inner:  inner,
		byUnit: make(map[string][]string),
	}
}

func (b *LogBuffer) Enabled(ctx context.Context, level slog.Level) bool {
	return b.inner.Enabled(ctx, level)
}

func (b *LogBuffer) Handle(ctx context.Context, rec slog.Record) error {
	line := fmt.Sprintf("%s %s %s", rec.Time.Format("15:04:05.000"), rec.Level, rec.Message)
	var unit string
	rec.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		if a.Key == "unit" {
			unit = a.Value.String()
		}
		return true
	})

	b.mu.Lock()
	b.global = appendBounded(b.global, line)
	if unit != "" {
		b.byUnit[unit] = appendBounded(b.byUnit[unit], line)
	}
	b.mu.Unlock()

	return b.inner.Handle(ctx, rec)
}

func (b *LogBuffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attr state lives on the inner handler; the buffer stays shared.
	return &sharedBuffer{LogBuffer: b, inner: b.inner.WithAttrs(attrs)}
}

func (b *LogBuffer) WithGroup(name string) slog.Handler {
	return &sharedBuffer{LogBuffer: b, inner: b.inner.WithGroup(name)}
}

// Recent returns up to n retained lines for a unit, oldest first.
// Falls back to the global ring when the unit has none.
func (b *LogBuffer) Recent(unit string, n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.byUnit[unit]
	if len(src) == 0 {
		src = b.global
	}
	if n <= 0 || n > len(src) {
		n = len(src)
	}
	out := make([]string, n)
	copy(out, src[len(src)-n:])
	return out
}

func appendBounded(lines []string, line string) []string {
	lines = append(lines, line)
	if len(lines) > logBufferCapacity {
		lines = lines[len(lines)-logBufferCapacity:]
	}
	return lines
}

// sharedBuffer keeps derived handlers writing into the parent buffer.
type sharedBuffer struct {
	*LogBuffer
	inner slog.Handler
}

func (s *sharedBuffer) Enabled(ctx context.Context, level slog.Level) bool {
	return s.inner.Enabled(ctx, level)
}

func (s *sharedBuffer) Handle(ctx context.Context, rec slog.Record) error {
	line := fmt.Sprintf("%s %s %s", rec.Time.Format("15:04:05.000"), rec.Level, rec.Message)
	var unit string
	rec.Attrs(func(a slog.Attr) bool {
		line += fmt.Sprintf(" %s=%v", a.Key, a.Value.Any())
		if a.Key == "unit" {
			unit = a.Value.String()
		}
		return true
	})

	s.mu.Lock()
	s.global = appendBounded(s.global, line)
	if unit != "" {
		s.byUnit[unit] = appendBounded(s.byUnit[unit], line)
	}
	s.mu.Unlock()

	return s.inner.Handle(ctx, rec)
}

func (s *sharedBuffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sharedBuffer{LogBuffer: s.LogBuffer, inner: s.inner.WithAttrs(attrs)}
}

func (s *sharedBuffer) WithGroup(name string) slog.Handler {
	return &sharedBuffer{LogBuffer: s.LogBuffer, inner: s.inner.WithGroup(name)}
}
