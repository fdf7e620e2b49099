package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/signalsfoundry/spectrum-manager/core"
	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/sim"
	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
	"github.com/signalsfoundry/spectrum-manager/timectrl"
)

type options struct {
	environment string
	auto        bool
	interval    time.Duration
	bands       int
	seed        uint64
	color       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.environment, "environment", "Urban", "environment awareness: Urban or Rural")
	flag.BoolVar(&opts.auto, "auto", false, "repeat cycles until interrupted")
	flag.DurationVar(&opts.interval, "interval", model.DefaultInterval, "delay between cycles when -auto is set (1s..5s)")
	flag.IntVar(&opts.bands, "bands", model.DefaultBandCount, "number of frequency bands to sense")
	flag.Uint64Var(&opts.seed, "seed", 0, "random seed; 0 seeds from the clock")
	noColor := flag.Bool("no-color", false, "disable ANSI colours")
	flag.Parse()
	opts.color = !*noColor

	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, log, nil); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(2)
	}
}

// run renders one cycle, or keeps rendering cycles until ctx is done when
// auto refresh is requested. A nil clock means the wall clock.
func run(ctx context.Context, opts options, out io.Writer, log logging.Logger, clock timectrl.Clock) error {
	env, err := model.ParseEnvironment(opts.environment)
	if err != nil {
		return err
	}
	settings := model.Settings{Environment: env, AutoRefresh: opts.auto, Interval: opts.interval}
	if err := settings.Validate(); err != nil {
		return err
	}
	if opts.bands <= 0 {
		return fmt.Errorf("-bands must be positive, got %d: %w", opts.bands, model.ErrBandCount)
	}

	sensor := core.NewRandomSensor(opts.bands)
	if opts.seed != 0 {
		sensor = core.NewSensor(opts.bands, opts.seed)
	}

	store := kb.NewKnowledgeBase(settings)
	engine := sim.NewEngine(sensor, store, log, sim.WithClock(clock))
	runner := sim.NewRunner(engine, store, clock, log, nil)
	r := &Renderer{Color: opts.color}

	if !settings.AutoRefresh {
		c, err := runner.RunOnce(ctx)
		if err != nil {
			return err
		}
		return r.Render(out, c)
	}

	var (
		mu        sync.Mutex
		renderErr error
	)
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventCycleCompleted {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if renderErr == nil {
			renderErr = r.Render(out, ev.Cycle)
		}
	})
	defer unsubscribe()

	fmt.Fprintf(out, "Auto-refresh is ON. The simulation will update every %s (Ctrl-C to stop)...\n\n", settings.Interval)
	if err := runner.Run(ctx); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	return renderErr
}
