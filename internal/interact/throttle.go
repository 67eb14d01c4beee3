package interact

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttle coalesces bursts of triggers into at most one call per interval.
// The call happens on the trailing edge with the most recent value.
type Throttle[T any] struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func(T)

	mu      sync.Mutex
	pending bool
	latest  T
	timer   clockwork.Timer
	stopped bool
}

// NewThrottle returns a Throttle that calls fn at most once per interval.
func NewThrottle[T any](clock clockwork.Clock, interval time.Duration, fn func(T)) *Throttle[T] {
	return &Throttle[T]{clock: clock, interval: interval, fn: fn}
}

// Trigger records v and schedules a call if none is pending.
func (t *Throttle[T]) Trigger(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.latest = v
	if t.pending {
		return
	}
	t.pending = true
	t.timer = t.clock.AfterFunc(t.interval, t.fire)
}

func (t *Throttle[T]) fire() {
	t.mu.Lock()
	if t.stopped || !t.pending {
		t.mu.Unlock()
		return
	}
	v := t.latest
	t.pending = false
	t.timer = nil
	t.mu.Unlock()
	t.fn(v)
}

// Pending reports whether a call is scheduled.
func (t *Throttle[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Stop cancels any pending call; later triggers are ignored.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
