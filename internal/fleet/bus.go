package fleet

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the bus size when none is configured.
const DefaultCapacity = 1000

// Bus is a bounded FIFO of events.
//
// Emit never blocks: on a full bus the new event is dropped and counted.
// Drain pops a batch. Any number of goroutines may Emit while one
// consumer drains.
type Bus struct {
	capacity int
	clock    *Clock
	now      func() time.Time

	mu      sync.Mutex
	events  []Event
	closed  bool
	signal  chan struct{} // buffered, size 1
	dropped atomic.Int64
	emitted atomic.Int64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithCapacity sets the bus size. Values below 1 are ignored.
func WithCapacity(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithTimeSource sets where event timestamps come from.
func WithTimeSource(now func() time.Time) BusOption {
	return func(b *Bus) { b.now = now }
}

// WithClock sets the logical clock that numbers events.
func WithClock(c *Clock) BusOption {
	return func(b *Bus) { b.clock = c }
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		capacity: DefaultCapacity,
		clock:    NewClock(),
		now:      time.Now,
		signal:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.events = make([]Event, 0, min(b.capacity, 64))
	return b
}

// Emit queues an event. It returns false when the event was dropped
// because the bus is full or closed.
func (b *Bus) Emit(typ EventType, data map[string]any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || len(b.events) >= b.capacity {
		b.dropped.Add(1)
		return false
	}
	b.events = append(b.events, newEvent(b.clock.Next(), typ, data, b.now()))
	b.emitted.Add(1)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case b.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns up to maxN events, oldest first. The rest stay
// queued. A maxN below 1 returns nothing.
func (b *Bus) Drain(maxN int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := min(maxN, len(b.events))
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	copy(out, b.events)

	// Clear popped slots so their data maps can be collected.
	clear(b.events[:n])
	rest := len(b.events) - n
	copy(b.events, b.events[n:])
	clear(b.events[rest:])
	b.events = b.events[:rest]
	return out
}

// Wait returns a channel that receives when events may be available, and
// is closed when the bus closes.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-bus.Wait():
//	    events := bus.Drain(100)
//	}
func (b *Bus) Wait() <-chan struct{} {
	return b.signal
}

// Len returns the number of queued events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Capacity returns the bus size.
func (b *Bus) Capacity() int { return b.capacity }

// Dropped returns how many events were dropped.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Emitted returns how many events were queued.
func (b *Bus) Emitted() int64 { return b.emitted.Load() }

// Close stops the bus accepting events and wakes waiters. Queued events
// can still be drained.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.signal)
}
