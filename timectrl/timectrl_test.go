package timectrl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestManualClockAdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	clk := NewManualClock(start)

	early := clk.After(time.Second)
	late := clk.After(3 * time.Second)
	if clk.Waiters() != 2 {
		t.Fatalf("Waiters() = %d, want 2", clk.Waiters())
	}

	clk.Advance(2 * time.Second)
	select {
	case got := <-early:
		if !got.Equal(start.Add(2 * time.Second)) {
			t.Fatalf("early fired at %v", got)
		}
	default:
		t.Fatalf("expected 1s timer to fire after advancing 2s")
	}
	select {
	case <-late:
		t.Fatalf("3s timer fired too early")
	default:
	}
	if clk.Waiters() != 1 {
		t.Fatalf("Waiters() = %d, want 1", clk.Waiters())
	}
	if got := clk.Now(); !got.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", got, start.Add(2*time.Second))
	}
}

func TestControllerTicksOnEveryInterval(t *testing.T) {
	clk := NewManualClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	tc := NewController(clk, func() time.Duration { return 2 * time.Second })

	var calls atomic.Int32
	tc.AddListener(func(context.Context, time.Time) { calls.Add(1) })

	done := tc.Start(context.Background())
	waitFor(t, "first wait", func() bool { return clk.Waiters() == 1 })
	if calls.Load() != 1 {
		t.Fatalf("listener calls = %d, want 1 before any wait elapses", calls.Load())
	}

	clk.Advance(time.Second)
	if calls.Load() != 1 {
		t.Fatalf("listener ran before the interval elapsed")
	}
	clk.Advance(time.Second)
	waitFor(t, "second tick", func() bool { return calls.Load() == 2 && clk.Waiters() == 1 })

	tc.Stop()
	<-done
	if tc.Running() {
		t.Fatalf("Running() = true after loop exit")
	}
	if tc.Ticks() != 2 {
		t.Fatalf("Ticks() = %d, want 2", tc.Ticks())
	}
}

func TestControllerStopFromListener(t *testing.T) {
	tc := NewController(NewManualClock(time.Now()), func() time.Duration { return 0 })
	var calls int
	tc.AddListener(func(context.Context, time.Time) {
		calls++
		if calls == 3 {
			tc.Stop()
		}
	})

	<-tc.Start(context.Background())
	if calls != 3 {
		t.Fatalf("listener calls = %d, want 3", calls)
	}
}

func TestControllerStopsOnContextCancel(t *testing.T) {
	clk := NewManualClock(time.Now())
	tc := NewController(clk, func() time.Duration { return time.Hour })

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx)
	waitFor(t, "loop to wait", func() bool { return clk.Waiters() == 1 })
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not exit after context cancel")
	}
}

func TestControllerRestartAfterStop(t *testing.T) {
	tc := NewController(nil, func() time.Duration { return 5 * time.Millisecond })
	var calls atomic.Int32
	tc.AddListener(func(context.Context, time.Time) { calls.Add(1) })

	done := tc.Start(context.Background())
	if again := tc.Start(context.Background()); again != done {
		t.Fatalf("Start on a running controller should return the same done channel")
	}
	waitFor(t, "real clock ticks", func() bool { return calls.Load() >= 2 })
	tc.Stop()
	<-done

	before := calls.Load()
	done = tc.Start(context.Background())
	waitFor(t, "restarted ticks", func() bool { return calls.Load() > before })
	tc.Stop()
	tc.Stop()
	<-done
}

func TestControllerReadsIntervalEachIteration(t *testing.T) {
	clk := NewManualClock(time.Now())
	var interval atomic.Int64
	interval.Store(int64(time.Second))
	tc := NewController(clk, func() time.Duration { return time.Duration(interval.Load()) })

	var calls atomic.Int32
	tc.AddListener(func(context.Context, time.Time) { calls.Add(1) })
	done := tc.Start(context.Background())

	waitFor(t, "first wait", func() bool { return clk.Waiters() == 1 })
	interval.Store(int64(3 * time.Second))
	clk.Advance(time.Second)
	waitFor(t, "second wait", func() bool { return calls.Load() == 2 && clk.Waiters() == 1 })

	clk.Advance(2 * time.Second)
	if calls.Load() != 2 {
		t.Fatalf("third tick fired before the new 3s interval elapsed")
	}
	clk.Advance(time.Second)
	waitFor(t, "third tick", func() bool { return calls.Load() == 3 })

	tc.Stop()
	<-done
}
