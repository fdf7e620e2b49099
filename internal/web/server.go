// Package web serves the operator page, the JSON API and the live cycle stream.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/observability"
	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
)

// CycleRunner runs cycles on demand and reports whether auto refresh is active.
type CycleRunner interface {
	RunOnce(ctx context.Context) (model.Cycle, error)
	Running() bool
}

// SettingsView is the JSON form of the operator settings.
type SettingsView struct {
	Environment     string `json:"environment"`
	AutoRefresh     bool   `json:"auto_refresh"`
	IntervalSeconds int    `json:"interval_seconds"`
	Running         *bool  `json:"running,omitempty"`
}

func newSettingsView(s model.Settings) SettingsView {
	return SettingsView{
		Environment:     s.Environment.String(),
		AutoRefresh:     s.AutoRefresh,
		IntervalSeconds: s.IntervalSeconds(),
	}
}

// settingsPatch is a partial update; absent fields keep their current value.
type settingsPatch struct {
	Environment     *string `json:"environment"`
	AutoRefresh     *bool   `json:"auto_refresh"`
	IntervalSeconds *int    `json:"interval_seconds"`
}

func (p settingsPatch) apply(s model.Settings) (model.Settings, error) {
	if p.Environment != nil {
		env, err := model.ParseEnvironment(*p.Environment)
		if err != nil {
			return s, err
		}
		s.Environment = env
	}
	if p.AutoRefresh != nil {
		s.AutoRefresh = *p.AutoRefresh
	}
	if p.IntervalSeconds != nil {
		s.Interval = time.Duration(*p.IntervalSeconds) * time.Second
	}
	return s, s.Validate()
}

// Server holds the HTTP surface.
type Server struct {
	store   *kb.KnowledgeBase
	runner  CycleRunner
	hub     *Hub
	log     logging.Logger
	metrics *observability.CycleCollector
	page    *template.Template

	serveMetrics bool
}

// Option customises a Server.
type Option func(*Server)

// WithMetricsEndpoint serves /metrics from this server.
func WithMetricsEndpoint() Option {
	return func(s *Server) { s.serveMetrics = true }
}

// NewServer builds the HTTP surface around the knowledge base and runner.
func NewServer(store *kb.KnowledgeBase, runner CycleRunner, log logging.Logger, metrics *observability.CycleCollector, opts ...Option) (*Server, error) {
	if store == nil || runner == nil {
		return nil, errors.New("web: store and runner are required")
	}
	if log == nil {
		log = logging.Noop()
	}
	page, err := parsePage()
	if err != nil {
		return nil, err
	}
	s := &Server{
		store:   store,
		runner:  runner,
		hub:     NewHub(store, log, metrics),
		log:     log,
		metrics: metrics,
		page:    page,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Hub returns the stream hub.
func (s *Server) Hub() *Hub { return s.hub }

// Close disconnects stream clients.
func (s *Server) Close() { s.hub.Close() }

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /{$}", "/", http.HandlerFunc(s.handleIndex))
	s.route(mux, "GET /api/cycle", "/api/cycle", http.HandlerFunc(s.handleLatestCycle))
	s.route(mux, "POST /api/cycle", "/api/cycle", http.HandlerFunc(s.handleRunCycle))
	s.route(mux, "GET /api/settings", "/api/settings", http.HandlerFunc(s.handleGetSettings))
	s.route(mux, "PUT /api/settings", "/api/settings", http.HandlerFunc(s.handlePutSettings))
	s.route(mux, "GET /healthz", "/healthz", http.HandlerFunc(s.handleHealth))
	s.route(mux, "GET /ws", "/ws", s.hub)
	if s.serveMetrics && s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return withRequestID(s.log, mux)
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, withMetrics(name, s.metrics, h))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var latest *model.Cycle
	if c, err := s.store.LatestCycle(); err == nil {
		latest = &c
	}
	data := newPageData(s.store.Settings(), s.runner.Running(), latest)

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		logging.LoggerFromContext(r.Context(), s.log).Error(r.Context(), "render page failed", logging.Err(err))
		writeError(w, fmt.Errorf("render page: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleLatestCycle(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.LatestCycle()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := s.runner.RunOnce(ctx)
	if err != nil {
		logging.LoggerFromContext(ctx, s.log).Warn(ctx, "manual cycle failed", logging.Err(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view := newSettingsView(s.store.Settings())
	running := s.runner.Running()
	view.Running = &running
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.LoggerFromContext(ctx, s.log)

	var patch settingsPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		writeError(w, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	next, err := patch.apply(s.store.Settings())
	if err != nil {
		log.Warn(ctx, "settings rejected", logging.Err(err))
		writeError(w, err)
		return
	}
	if err := s.store.UpdateSettings(next); err != nil {
		writeError(w, err)
		return
	}
	log.Info(ctx, "settings updated",
		logging.String("environment", next.Environment.String()),
		logging.Bool("auto_refresh", next.AutoRefresh),
		logging.Duration("interval", next.Interval),
	)
	writeJSON(w, http.StatusOK, newSettingsView(s.store.Settings()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
