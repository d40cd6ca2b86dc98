package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

type countingTick struct {
	calls atomic.Int32
	seen  chan struct{}
	err   error
}

func newCountingTick() *countingTick {
	return &countingTick{seen: make(chan struct{}, 64)}
}

func (c *countingTick) tick(ctx context.Context) error {
	c.calls.Add(1)
	c.seen <- struct{}{}
	return c.err
}

func (c *countingTick) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poll")
	}
}

func (c *countingTick) expectNone(t *testing.T) {
	t.Helper()
	select {
	case <-c.seen:
		t.Fatal("unexpected poll")
	case <-time.After(50 * time.Millisecond):
	}
}

// stepAndSettle advances the clock one interval at a time so every tick is
// observed before the next one is produced
func stepAndSettle(t *testing.T, fc *testingclock.FakeClock, c *countingTick, intervals int, expectPoll bool) {
	t.Helper()
	for i := 0; i < intervals; i++ {
		fc.Step(DefaultInterval)
		if expectPoll {
			c.wait(t)
		} else {
			c.expectNone(t)
		}
	}
}

func TestPoller_PollsEveryInterval(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()
	p := New("test", fc, DefaultInterval, c.tick)

	p.Start(context.Background())
	defer p.Stop()

	c.expectNone(t)
	stepAndSettle(t, fc, c, 3, true)
	assert.Equal(t, int32(3), c.calls.Load())
}

func TestPoller_DoubleStartKeepsOneInterval(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()
	p := New("test", fc, DefaultInterval, c.tick)

	p.Start(context.Background())
	p.Start(context.Background())
	defer p.Stop()

	// 15 seconds at a 5 second interval
	stepAndSettle(t, fc, c, 3, true)
	c.expectNone(t)
	assert.Equal(t, int32(3), c.calls.Load(), "expected 3 polls, not 6")
}

func TestPoller_EnsureRunningIsIdempotent(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()
	p := New("test", fc, DefaultInterval, c.tick)

	assert.True(t, p.EnsureRunning(context.Background()))
	assert.False(t, p.EnsureRunning(context.Background()))
	assert.True(t, p.Running())
	defer p.Stop()

	stepAndSettle(t, fc, c, 3, true)
	c.expectNone(t)
	assert.Equal(t, int32(3), c.calls.Load())
}

func TestPoller_StopClearsInterval(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()
	p := New("test", fc, DefaultInterval, c.tick)

	p.Start(context.Background())
	stepAndSettle(t, fc, c, 1, true)

	p.Stop()
	assert.False(t, p.Running())
	assert.False(t, fc.HasWaiters(), "stopped poller must not leave a ticker behind")

	stepAndSettle(t, fc, c, 6, false)
	assert.Equal(t, int32(1), c.calls.Load())

	// Stop is idempotent
	p.Stop()
}

func TestPoller_StopFromInsideTick(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()

	var p *Poller
	p = New("test", fc, DefaultInterval, func(ctx context.Context) error {
		p.Stop()
		return c.tick(ctx)
	})

	p.Start(context.Background())
	stepAndSettle(t, fc, c, 1, true)
	require.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)

	stepAndSettle(t, fc, c, 3, false)
}

func TestPoller_FailedTickKeepsPolling(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()
	c.err = errors.New("connection refused")
	p := New("test", fc, DefaultInterval, c.tick)

	p.Start(context.Background())
	defer p.Stop()

	stepAndSettle(t, fc, c, 3, true)
	assert.True(t, p.Running())
}

func TestPoller_ParentContextCancelEndsLoop(t *testing.T) {
	fc := testingclock.NewFakeClock(epoch)
	c := newCountingTick()
	p := New("test", fc, DefaultInterval, c.tick)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	stepAndSettle(t, fc, c, 2, false)
	p.Stop()
}

func TestNew_Defaults(t *testing.T) {
	p := New("test", nil, 0, func(context.Context) error { return nil })
	assert.Equal(t, DefaultInterval, p.Interval())
	assert.False(t, p.Running())
}
