// Package sim runs sensing cycles and the auto-refresh loop that repeats them.
package sim

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/spectrum-manager/core"
	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/observability"
	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
	"github.com/signalsfoundry/spectrum-manager/timectrl"
)

// Publisher receives every completed cycle, e.g. to forward it to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, c model.Cycle) error
}

// Engine executes one cycle at a time: sense, select, report, then hand the
// result to the knowledge base and any publishers. The occupancy sequence is
// created and consumed inside RunCycle and never shared.
type Engine struct {
	sensor     *core.Sensor
	store      *kb.KnowledgeBase
	log        logging.Logger
	metrics    *observability.CycleCollector
	clock      timectrl.Clock
	publishers []Publisher

	seq atomic.Uint64
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records cycle metrics on c.
func WithMetrics(c *observability.CycleCollector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithPublisher adds a cycle publisher.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publishers = append(e.publishers, p)
		}
	}
}

// WithClock overrides the time source used to stamp cycles.
func WithClock(c timectrl.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// NewEngine constructs an engine around a sensor and a knowledge base.
func NewEngine(sensor *core.Sensor, store *kb.KnowledgeBase, log logging.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	if sensor == nil {
		sensor = core.NewRandomSensor(model.DefaultBandCount)
	}
	e := &Engine{
		sensor: sensor,
		store:  store,
		log:    log,
		clock:  timectrl.RealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bands returns the number of bands sensed per cycle.
func (e *Engine) Bands() int { return e.sensor.Bands() }

// RunCycle performs one full cycle for env. A missing free band is reported
// in the returned cycle's outcome; the only error is a done context.
func (e *Engine) RunCycle(ctx context.Context, env model.Environment) (model.Cycle, error) {
	if err := ctx.Err(); err != nil {
		return model.Cycle{}, fmt.Errorf("run cycle: %w", err)
	}

	id := logging.NewID()
	ctx = logging.ContextWithCycleID(ctx, id)
	ctx, span := observability.StartSpan(ctx, "spectrum.cycle",
		attribute.String("cycle.id", id),
		attribute.String("environment", env.String()),
	)
	defer span.End()

	start := time.Now()
	occ := e.sensor.Sense()
	sel := core.SelectBand(occ, env)
	cycle := model.Cycle{
		ID:          id,
		Seq:         e.seq.Add(1),
		At:          e.clock.Now(),
		Environment: env,
		Occupancy:   occ,
		FreeBands:   occ.FreeBands(),
		Selection:   sel,
		Log:         core.CognitionCycle(sel),
		Outcome:     core.OutcomeFor(sel),
	}
	elapsed := time.Since(start)

	stats := core.Stats(occ)
	band := -1
	if b, ok := sel.Get(); ok {
		band = b
	}
	e.metrics.ObserveCycle(env.String(), string(cycle.Outcome.Status), stats.FreeBands, band, stats.Ratio, elapsed)
	span.SetAttributes(
		attribute.Int("spectrum.free_bands", stats.FreeBands),
		attribute.Int("spectrum.selected_band", band),
		attribute.String("spectrum.outcome", string(cycle.Outcome.Status)),
	)

	log := e.log.With(
		logging.String("cycle_id", id),
		logging.Any("seq", cycle.Seq),
		logging.String("environment", env.String()),
	)
	if cycle.Outcome.Allocated() {
		log.Info(ctx, cycle.Outcome.Message,
			logging.Int("band", band),
			logging.Int("free_bands", stats.FreeBands),
		)
	} else {
		log.Warn(ctx, cycle.Outcome.Message, logging.Int("free_bands", 0))
	}

	if e.store != nil {
		e.store.StoreCycle(cycle)
	}
	for _, p := range e.publishers {
		if err := p.Publish(ctx, cycle); err != nil {
			e.metrics.IncPublishErrors(p.Name())
			span.RecordError(err)
			span.SetStatus(codes.Error, "publish failed")
			log.Warn(ctx, "cycle publish failed", logging.String("publisher", p.Name()), logging.Err(err))
		}
	}

	return cycle, nil
}
