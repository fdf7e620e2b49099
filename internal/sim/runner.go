package sim

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/observability"
	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
	"github.com/signalsfoundry/spectrum-manager/timectrl"
)

// Runner is the presentation loop. It runs single cycles on demand and, while
// auto refresh is on, repeats them with the configured interval between
// cycles. Settings are read from the knowledge base at the start of every
// cycle; turning auto refresh off stops the loop.
type Runner struct {
	engine  *Engine
	store   *kb.KnowledgeBase
	ctrl    *timectrl.Controller
	log     logging.Logger
	metrics *observability.CycleCollector

	mu   sync.Mutex
	done <-chan struct{}
}

// NewRunner wires a runner. A nil clock means the wall clock.
func NewRunner(engine *Engine, store *kb.KnowledgeBase, clock timectrl.Clock, log logging.Logger, metrics *observability.CycleCollector) *Runner {
	if log == nil {
		log = logging.Noop()
	}
	r := &Runner{
		engine:  engine,
		store:   store,
		log:     log,
		metrics: metrics,
	}
	r.ctrl = timectrl.NewController(clock, func() time.Duration { return r.store.Settings().Interval })
	r.ctrl.AddListener(r.tick)
	return r
}

// RunOnce runs exactly one cycle with the current settings.
func (r *Runner) RunOnce(ctx context.Context) (model.Cycle, error) {
	return r.engine.RunCycle(ctx, r.store.Settings().Environment)
}

// Run keeps the auto-refresh loop in line with the stored settings until ctx
// is done, then stops the loop and waits for it to exit.
func (r *Runner) Run(ctx context.Context) error {
	unsubscribe := r.store.Subscribe(func(ev kb.Event) {
		if ev.Type == kb.EventSettingsUpdated {
			r.apply(ctx, ev.Settings)
		}
	})
	defer unsubscribe()

	r.apply(ctx, r.store.Settings())
	<-ctx.Done()

	r.Stop()
	r.Wait()
	return nil
}

// Start begins auto refresh. If the loop is already running it is left alone;
// if it is still winding down from a Stop, Start waits for it to exit first.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
		default:
			if !r.ctrl.StopRequested() {
				return r.done
			}
			<-r.done
		}
	}

	done := r.ctrl.Start(ctx)
	r.done = done
	r.metrics.SetAutoRefreshRunning(true)
	r.log.Info(ctx, "auto refresh started", logging.Duration("interval", r.store.Settings().Interval))

	go func() {
		<-done
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.done == done {
			r.metrics.SetAutoRefreshRunning(false)
			r.log.Info(context.Background(), "auto refresh stopped", logging.Any("cycles", r.ctrl.Ticks()))
		}
	}()
	return done
}

// Stop raises the stop flag; the loop exits before its next cycle.
func (r *Runner) Stop() { r.ctrl.Stop() }

// Wait blocks until the current loop, if any, has exited.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the auto-refresh loop is active.
func (r *Runner) Running() bool { return r.ctrl.Running() && !r.ctrl.StopRequested() }

func (r *Runner) apply(ctx context.Context, s model.Settings) {
	if s.AutoRefresh {
		r.Start(ctx)
		return
	}
	r.Stop()
}

func (r *Runner) tick(ctx context.Context, _ time.Time) {
	s := r.store.Settings()
	if !s.AutoRefresh {
		r.ctrl.Stop()
		return
	}
	if _, err := r.engine.RunCycle(ctx, s.Environment); err != nil {
		r.log.Debug(ctx, "auto refresh cycle skipped", logging.Err(err))
	}
}
