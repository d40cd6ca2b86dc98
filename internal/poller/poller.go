// Package poller runs a recurring background check on a fixed interval.
//
// The wizard uses a Poller to ask the pairing service for the status of
// every device awaiting confirmation. A Poller is either stopped or running
// exactly one interval; Start on a running poller replaces the old interval
// instead of adding a second one. A failing tick is retried on the next
// interval with no backoff.
package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/muurk/batchpair/internal/logging"
)

// DefaultInterval is how often the pairing status is polled
const DefaultInterval = 5 * time.Second

// TickFunc performs one poll. A returned error is logged and otherwise ignored.
type TickFunc func(ctx context.Context) error

// Poller invokes a TickFunc every interval while running
type Poller struct {
	name     string
	clock    clock.WithTicker
	interval time.Duration
	tick     TickFunc

	mu   sync.Mutex
	run  *run
	runs uint64
}

type run struct {
	id     uint64
	cancel context.CancelFunc
	ticker clock.Ticker
}

// New creates a stopped poller. A nil clock uses the real clock and a
// non-positive interval uses DefaultInterval.
func New(name string, c clock.WithTicker, interval time.Duration, tick TickFunc) *Poller {
	if c == nil {
		c = clock.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		name:     name,
		clock:    c,
		interval: interval,
		tick:     tick,
	}
}

// Interval returns the polling interval
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Running reports whether an interval is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Start begins polling, replacing any interval that is already active.
// The first tick happens one interval after Start.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.startLocked(ctx)
}

// EnsureRunning starts the poller only if it is stopped.
// It reports whether a new interval was started.
func (p *Poller) EnsureRunning(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return false
	}
	p.startLocked(ctx)
	return true
}

// Stop clears the active interval. It does not wait for a tick that is
// already in flight, so it is safe to call from inside the TickFunc, but
// no new tick begins after Stop returns.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) startLocked(ctx context.Context) {
	p.runs++
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		id:     p.runs,
		cancel: cancel,
		ticker: p.clock.NewTicker(p.interval),
	}
	p.run = r

	logging.Debug("Poller started",
		zap.String("poller", p.name),
		zap.Uint64("run", r.id),
		zap.Duration("interval", p.interval),
	)

	go p.loop(runCtx, r)
}

func (p *Poller) stopLocked() {
	if p.run == nil {
		return
	}
	p.run.ticker.Stop()
	p.run.cancel()

	logging.Debug("Poller stopped",
		zap.String("poller", p.name),
		zap.Uint64("run", p.run.id),
	)
	p.run = nil
}

func (p *Poller) current(r *run) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run == r
}

func (p *Poller) loop(ctx context.Context, r *run) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ticker.C():
		}

		// A tick may already be buffered when Stop or a restart happens
		if ctx.Err() != nil || !p.current(r) {
			return
		}

		if err := p.tick(ctx); err != nil {
			logging.Debug("Poll failed, retrying next interval",
				zap.String("poller", p.name),
				zap.Uint64("run", r.id),
				zap.Error(err),
			)
		}
	}
}
