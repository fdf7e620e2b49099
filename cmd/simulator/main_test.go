package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/model"
	"github.com/signalsfoundry/spectrum-manager/timectrl"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunSingleCycle(t *testing.T) {
	var out bytes.Buffer
	opts := options{environment: "rural", interval: 2 * time.Second, bands: 12, seed: 9}

	if err := run(context.Background(), opts, &out, logging.Noop(), nil); err != nil {
		t.Fatalf("run error: %v", err)
	}
	got := out.String()
	if strings.Count(got, chartTitle) != 1 {
		t.Fatalf("expected exactly one chart, got:\n%s", got)
	}
	if !strings.Contains(got, "[Rural, cycle 1]") {
		t.Fatalf("missing cycle header:\n%s", got)
	}
	for _, phase := range model.Phases {
		if !strings.Contains(got, string(phase)+": ") {
			t.Fatalf("missing phase %s:\n%s", phase, got)
		}
	}
}

func TestRunAutoRefreshUntilCancelled(t *testing.T) {
	out := &syncBuffer{}
	clock := timectrl.NewManualClock(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	opts := options{environment: "Urban", auto: true, interval: time.Second, bands: 6, seed: 4}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, opts, out, logging.Noop(), clock) }()

	for cycle := 1; cycle <= 3; cycle++ {
		deadline := time.Now().Add(2 * time.Second)
		for strings.Count(out.String(), chartTitle) < cycle || clock.Waiters() == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for cycle %d:\n%s", cycle, out.String())
			}
			time.Sleep(time.Millisecond)
		}
		clock.Advance(time.Second)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not return after cancel")
	}
	if !strings.Contains(out.String(), "Auto-refresh is ON") {
		t.Fatalf("missing auto-refresh banner")
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	cases := []struct {
		name string
		opts options
		want error
	}{
		{"environment", options{environment: "Suburban", interval: time.Second, bands: 12}, model.ErrUnknownEnvironment},
		{"interval", options{environment: "Urban", interval: 10 * time.Second, bands: 12}, model.ErrIntervalOutOfRange},
		{"bands", options{environment: "Urban", interval: time.Second, bands: 0}, model.ErrBandCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(context.Background(), tc.opts, &bytes.Buffer{}, logging.Noop(), nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("run err = %v, want %v", err, tc.want)
			}
		})
	}
}
