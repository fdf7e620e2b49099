package timectrl

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the time source used by periodic loops. Production code uses
// RealClock; tests drive a ManualClock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// RealClock returns a Clock backed by the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ManualClock is a Clock whose time only moves when Advance is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewManualClock returns a clock frozen at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (m *ManualClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// After registers a timer that fires when the clock is advanced past now+d.
// A non-positive d fires immediately.
func (m *ManualClock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- m.now
		return ch
	}
	m.waiters = append(m.waiters, waiter{at: m.now.Add(d), ch: ch})
	sort.Slice(m.waiters, func(i, j int) bool { return m.waiters[i].at.Before(m.waiters[j].at) })
	return ch
}

// Advance moves the clock forward by d and fires every due timer.
func (m *ManualClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	due := 0
	for due < len(m.waiters) && !m.waiters[due].at.After(now) {
		m.waiters[due].ch <- now
		due++
	}
	m.waiters = m.waiters[due:]
	m.mu.Unlock()
}

// Waiters returns how many timers are pending.
func (m *ManualClock) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// Controller runs registered listeners on every iteration of a periodic loop.
// The wait between iterations is asked from the interval function each time,
// so callers can change it while the loop is running. Stop is observed at the
// next iteration and also cuts a pending wait short.
type Controller struct {
	clock    Clock
	interval func() time.Duration

	mu        sync.Mutex
	listeners []func(context.Context, time.Time)
	stop      chan struct{}
	done      chan struct{}

	stopRequested atomic.Bool
	running       atomic.Bool
	ticks         atomic.Uint64
}

// NewController constructs a controller. A nil clock means RealClock.
func NewController(clock Clock, interval func() time.Duration) *Controller {
	if clock == nil {
		clock = RealClock()
	}
	if interval == nil {
		interval = func() time.Duration { return time.Second }
	}
	return &Controller{clock: clock, interval: interval}
}

// Clock returns the controller's time source.
func (c *Controller) Clock() Clock { return c.clock }

// AddListener registers a callback invoked on every iteration.
func (c *Controller) AddListener(fn func(context.Context, time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start runs the loop in a separate goroutine until Stop is called or ctx is
// done. It returns a channel that is closed when the loop exits. Calling Start
// on a running controller returns the existing done channel.
func (c *Controller) Start(ctx context.Context) <-chan struct{} {
	c.mu.Lock()
	if c.running.Load() {
		done := c.done
		c.mu.Unlock()
		return done
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.stopRequested.Store(false)
	c.running.Store(true)
	stop, done := c.stop, c.done
	c.mu.Unlock()

	go func() {
		defer func() {
			c.running.Store(false)
			close(done)
		}()

		for {
			if c.stopRequested.Load() || ctx.Err() != nil {
				return
			}

			now := c.clock.Now()
			c.ticks.Add(1)
			for _, fn := range c.snapshotListeners() {
				fn(ctx, now)
			}

			if c.stopRequested.Load() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-c.clock.After(c.interval()):
			}
		}
	}()
	return done
}

// Stop asks the loop to exit. It is safe to call from a listener, from any
// goroutine and more than once.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopRequested.Swap(true) {
		return
	}
	if c.stop != nil {
		close(c.stop)
	}
}

// StopRequested reports whether Stop was called since the last Start.
func (c *Controller) StopRequested() bool { return c.stopRequested.Load() }

// Running reports whether the loop goroutine is active.
func (c *Controller) Running() bool { return c.running.Load() }

// Ticks returns how many iterations have run since construction.
func (c *Controller) Ticks() uint64 { return c.ticks.Load() }

func (c *Controller) snapshotListeners() []func(context.Context, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]func(context.Context, time.Time){}, c.listeners...)
}
