package session

import (
	"context"
	"sync"
	"time"
)

const defaultTickInterval = time.Second

// Timer counts down to an absolute deadline. Remaining time is always derived
// from the deadline so that a restored timer never drifts.
type Timer struct {
	deadline time.Time
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewTimer creates a timer for deadline. A non-positive interval means one second.
func NewTimer(deadline time.Time, interval time.Duration, now func() time.Time) *Timer {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Timer{
		deadline: deadline,
		interval: interval,
		now:      now,
		done:     make(chan struct{}),
	}
}

// Deadline returns the absolute deadline.
func (t *Timer) Deadline() time.Time {
	return t.deadline
}

// Remaining returns max(0, deadline - now).
func (t *Timer) Remaining() time.Duration {
	left := t.deadline.Sub(t.now())
	if left < 0 {
		return 0
	}
	return left
}

// Start runs the countdown in its own goroutine. onTick receives the
// remaining time immediately and then every interval; onExpire runs once
// when the deadline is reached. Start is a no-op on a started or cancelled
// timer.
func (t *Timer) Start(ctx context.Context, onTick func(time.Duration), onExpire func()) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	ctx, t.cancel = context.WithCancel(ctx)
	t.mu.Unlock()

	go t.run(ctx, onTick, onExpire)
}

func (t *Timer) run(ctx context.Context, onTick func(time.Duration), onExpire func()) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	expiry := time.NewTimer(t.Remaining())
	defer expiry.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		left := t.Remaining()
		if left <= 0 {
			if onExpire != nil {
				onExpire()
			}
			return
		}
		if onTick != nil {
			onTick(left)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-expiry.C:
			if ctx.Err() != nil {
				return
			}
			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

// Cancel stops the countdown without firing onExpire. It does not wait for
// the goroutine; use Done for that. Safe to call more than once.
func (t *Timer) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.cancel != nil {
		t.cancel()
	}
	if !t.started {
		close(t.done)
	}
}

// Done is closed once the countdown goroutine has exited, or when a timer
// is cancelled before it was started.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}
