package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CycleCollector bundles Prometheus metrics for sensing cycles and the HTTP
// surface, and exposes a /metrics handler.
type CycleCollector struct {
	gatherer prometheus.Gatherer

	Cycles         *prometheus.CounterVec
	CycleDurations prometheus.Histogram
	FreeBands      prometheus.Gauge
	OccupancyRatio prometheus.Gauge
	SelectedBand   prometheus.Gauge
	AutoRefresh    prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	StreamClients  prometheus.Gauge
}

// NewCycleCollector registers metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCycleCollector(reg prometheus.Registerer) (*CycleCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrum_cycles_total",
		Help: "Completed sensing cycles, labeled by environment and outcome.",
	}, []string{"environment", "outcome"}), "spectrum_cycles_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spectrum_cycle_duration_seconds",
		Help:    "Time spent sensing, selecting and reporting one cycle.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "spectrum_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	freeBands, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_free_bands",
		Help: "Number of free bands in the latest cycle.",
	}), "spectrum_free_bands")
	if err != nil {
		return nil, err
	}
	ratio, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_occupancy_ratio",
		Help: "Fraction of occupied bands in the latest cycle.",
	}), "spectrum_occupancy_ratio")
	if err != nil {
		return nil, err
	}
	selected, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_selected_band",
		Help: "Band chosen in the latest cycle, or -1 when none was free.",
	}), "spectrum_selected_band")
	if err != nil {
		return nil, err
	}
	auto, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_auto_refresh_running",
		Help: "1 while the auto-refresh loop is running.",
	}), "spectrum_auto_refresh_running")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrum_http_requests_total",
		Help: "Handled HTTP requests, labeled by route, method and status code.",
	}, []string{"route", "method", "code"}), "spectrum_http_requests_total")
	if err != nil {
		return nil, err
	}
	publishErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrum_publish_errors_total",
		Help: "Cycle publications that failed, labeled by publisher.",
	}, []string{"publisher"}), "spectrum_publish_errors_total")
	if err != nil {
		return nil, err
	}
	streamClients, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_stream_clients",
		Help: "Connected WebSocket clients.",
	}), "spectrum_stream_clients")
	if err != nil {
		return nil, err
	}

	return &CycleCollector{
		gatherer:       gatherer,
		Cycles:         cycles,
		CycleDurations: durations,
		FreeBands:      freeBands,
		OccupancyRatio: ratio,
		SelectedBand:   selected,
		AutoRefresh:    auto,
		HTTPRequests:   requests,
		PublishErrors:  publishErrors,
		StreamClients:  streamClients,
	}, nil
}

// ObserveCycle records the result of one cycle. band is -1 when nothing was selected.
func (c *CycleCollector) ObserveCycle(environment, outcome string, free, band int, ratio float64, d time.Duration) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(environment, outcome).Inc()
	c.CycleDurations.Observe(d.Seconds())
	c.FreeBands.Set(float64(free))
	c.OccupancyRatio.Set(ratio)
	c.SelectedBand.Set(float64(band))
}

// SetAutoRefreshRunning flips the loop gauge.
func (c *CycleCollector) SetAutoRefreshRunning(running bool) {
	if c == nil {
		return
	}
	if running {
		c.AutoRefresh.Set(1)
		return
	}
	c.AutoRefresh.Set(0)
}

// IncPublishErrors counts a failed publication.
func (c *CycleCollector) IncPublishErrors(publisher string) {
	if c == nil {
		return
	}
	c.PublishErrors.WithLabelValues(publisher).Inc()
}

// AddStreamClients adjusts the connected WebSocket client gauge by delta.
func (c *CycleCollector) AddStreamClients(delta int) {
	if c == nil {
		return
	}
	c.StreamClients.Add(float64(delta))
}

// ObserveHTTP counts one handled request.
func (c *CycleCollector) ObserveHTTP(route, method string, code int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *CycleCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *CycleCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
