package recognition

import (
	"context"
	"runtime"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

const (
	defaultLogLines  = 50
	defaultBeatCount = 32
)

// LogSource supplies recent log lines for a unit.
type LogSource interface {
	Recent(unit string, n int) []string
}

// BeatSource supplies recent heartbeat timestamps for a unit.
type BeatSource interface {
	History(unit string, n int) []time.Time
}

// Capturer assembles diagnostic bundles at failure time. Capture is
// bounded by a deadline: whatever is collected when it expires ships as
// a partial bundle rather than stalling remediation.
type Capturer struct {
	logs     LogSource
	beats    BeatSource
	deadline time.Duration
}

// NewCapturer creates a capturer. Either source may be nil.
func NewCapturer(logs LogSource, beats BeatSource, deadline time.Duration) *Capturer {
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	return &Capturer{logs: logs, beats: beats, deadline: deadline}
}

// Capture collects logs, heartbeat history and a resource snapshot for
// the failed unit. The returned bundle is never nil.
func (c *Capturer) Capture(ctx context.Context, unitName string, category domain.FailureCategory, message string) *domain.DiagnosticBundle {
	bundle := &domain.DiagnosticBundle{
		UnitName:   unitName,
		Category:   category,
		Message:    message,
		CapturedAt: time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	type collected struct {
		logs      []string
		beats     []time.Time
		resources domain.ResourceSnapshot
	}
	// The collector writes into its own struct so an expired deadline
	// never races with a late write into the returned bundle.
	done := make(chan collected, 1)
	go func() {
		var col collected
		if c.logs != nil {
			col.logs = c.logs.Recent(unitName, defaultLogLines)
		}
		if c.beats != nil {
			col.beats = c.beats.History(unitName, defaultBeatCount)
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		col.resources = domain.ResourceSnapshot{
			Goroutines: runtime.NumGoroutine(),
			HeapBytes:  ms.HeapAlloc,
			NumGC:      ms.NumGC,
		}
		done <- col
	}()

	select {
	case col := <-done:
		bundle.Logs = col.logs
		bundle.Heartbeats = col.beats
		bundle.Resources = col.resources
	case <-ctx.Done():
		bundle.Partial = true
	}
	return bundle
}
