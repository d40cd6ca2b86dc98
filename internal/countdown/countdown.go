// Package countdown implements a drift-corrected once-per-second countdown
// towards an absolute expiry, used to show the time-to-live of pin codes.
//
// Each Timer owns its own next-tick deadline. On every tick the scheduling
// delay is shortened by however late the tick fired, so slow consumers or a
// suspended process do not make the countdown slip. The remaining value is
// always recomputed from the expiry and the clock, never decremented, so a
// skipped tick corrects itself on the next one.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultInterval is the tick interval of a countdown
const DefaultInterval = time.Second

// Timer counts down to a fixed expiry
type Timer struct {
	clock    clock.Clock
	expiry   time.Time
	interval time.Duration

	mu       sync.Mutex
	expected time.Time
	stop     chan struct{}
}

// New creates a stopped countdown towards expiry.
// A nil clock uses the real clock.
func New(c clock.Clock, expiry time.Time) *Timer {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Timer{
		clock:    c,
		expiry:   expiry,
		interval: DefaultInterval,
	}
}

// WithInterval overrides the tick interval. It must be called before Start.
func (t *Timer) WithInterval(interval time.Duration) *Timer {
	if interval > 0 {
		t.interval = interval
	}
	return t
}

// Expiry returns the absolute expiry the timer counts towards
func (t *Timer) Expiry() time.Time {
	return t.expiry
}

// Remaining returns the whole seconds left, never negative
func (t *Timer) Remaining() int {
	return RemainingSeconds(t.expiry, t.clock.Now())
}

// Running reports whether a tick is scheduled
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// Start delivers the remaining seconds to onTick immediately and then once
// per interval until the countdown reaches zero or Stop is called. The zero
// value is delivered exactly once, after which the timer stops itself.
// Starting a running timer restarts it.
func (t *Timer) Start(onTick func(seconds int)) {
	t.Stop()

	now := t.clock.Now()
	remaining := RemainingSeconds(t.expiry, now)
	if remaining == 0 {
		onTick(0)
		return
	}

	stop := make(chan struct{})
	t.mu.Lock()
	t.stop = stop
	t.expected = now.Add(t.interval)
	t.mu.Unlock()

	timer := t.clock.NewTimer(t.interval)
	go t.run(timer, stop, onTick)

	onTick(remaining)
}

func (t *Timer) run(timer clock.Timer, stop chan struct{}, onTick func(int)) {
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C():
		}

		now := t.clock.Now()
		remaining := RemainingSeconds(t.expiry, now)

		t.mu.Lock()
		if t.stop != stop {
			t.mu.Unlock()
			return
		}
		if remaining == 0 {
			t.stop = nil
			t.mu.Unlock()
			onTick(0)
			return
		}
		delay, next := NextDelay(t.interval, t.expected, now)
		t.expected = next
		// Re-arm before handing control to the callback
		timer.Reset(delay)
		t.mu.Unlock()

		onTick(remaining)
	}
}

// Stop cancels the pending tick. Stopping a stopped timer is a no-op.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

// NextDelay computes how long to wait for the next tick given the deadline
// the current tick was expected at, and returns the deadline after that.
// A tick that fired late shortens the next delay by the lateness; whole
// intervals that were missed entirely are skipped rather than replayed.
func NextDelay(interval time.Duration, expected, now time.Time) (time.Duration, time.Time) {
	drift := now.Sub(expected)
	if drift >= interval {
		missed := drift / interval
		expected = expected.Add(missed * interval)
		drift -= missed * interval
	}
	delay := interval - drift
	if delay < 0 {
		delay = 0
	}
	return delay, expected.Add(interval)
}

// RemainingSeconds returns the whole seconds between now and expiry,
// rounded up, and 0 once expiry has passed
func RemainingSeconds(expiry, now time.Time) int {
	left := expiry.Sub(now)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

// Format renders remaining seconds as MM:SS, or "-" once nothing is left
func Format(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
