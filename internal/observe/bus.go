package observe

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/overseer/internal/core/domain"
)

// recentCapacity bounds the in-memory ring of recent events.
const recentCapacity = 512

// Bus fans supervisory events out to emitters over a buffered channel.
// Publish never blocks the caller; when the buffer is full the event is
// dropped and counted.
type Bus struct {
	ch       chan *domain.Event
	emitters []Emitter
	dropped  atomic.Int64

	mu     sync.Mutex
	recent []*domain.Event
	subs   []chan *domain.Event

	done chan struct{}
}

// NewBus creates a bus with the given buffer size and emitters.
func NewBus(buffer int, emitters ...Emitter) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		ch:       make(chan *domain.Event, buffer),
		emitters: emitters,
		done:     make(chan struct{}),
	}
}

// Run consumes the channel and fans out until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return
		case ev := <-b.ch:
			b.dispatch(ctx, ev)
		}
	}
}

// Publish enqueues an event without blocking.
func (b *Bus) Publish(ev *domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Subscribe returns a channel receiving a copy of every dispatched event.
// Slow subscribers miss events rather than stalling the bus.
func (b *Bus) Subscribe() <-chan *domain.Event {
	ch := make(chan *domain.Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Recent returns up to n of the most recently dispatched events, newest last.
func (b *Bus) Recent(n int) []*domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]*domain.Event, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

// Dropped returns how many events were discarded due to backpressure.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) dispatch(ctx context.Context, ev *domain.Event) {
	for _, em := range b.emitters {
		if err := em.Emit(ctx, ev); err != nil {
			slog.Warn("event emit failed", "action", ev.Action, "error", err)
		}
	}

	b.mu.Lock()
	b.recent = append(b.recent, ev)
	if len(b.recent) > recentCapacity {
		b.recent = b.recent[len(b.recent)-recentCapacity:]
	}
	subs := b.subs
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- ev:
		default:
		}
	}
}

// drain flushes whatever is still buffered at shutdown.
func (b *Bus) drain() {
	for {
		select {
		case ev := <-b.ch:
			b.dispatch(context.Background(), ev)
		default:
			return
		}
	}
}
