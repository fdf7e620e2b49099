package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/spectrum-manager/core"
	"github.com/signalsfoundry/spectrum-manager/internal/logging"
	"github.com/signalsfoundry/spectrum-manager/internal/observability"
	"github.com/signalsfoundry/spectrum-manager/internal/sim"
	"github.com/signalsfoundry/spectrum-manager/kb"
	"github.com/signalsfoundry/spectrum-manager/model"
)

type testEnv struct {
	store   *kb.KnowledgeBase
	server  *Server
	http    *httptest.Server
	metrics *observability.CycleCollector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	metrics, err := observability.NewCycleCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCycleCollector: %v", err)
	}
	store := kb.NewKnowledgeBase(model.DefaultSettings())
	engine := sim.NewEngine(core.NewSensor(model.DefaultBandCount, 5), store, logging.Noop(), sim.WithMetrics(metrics))
	runner := sim.NewRunner(engine, store, nil, logging.Noop(), metrics)

	srv, err := NewServer(store, runner, logging.Noop(), metrics, WithMetricsEndpoint())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &testEnv{store: store, server: srv, http: ts, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.http.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

type cycleJSON struct {
	ID        string `json:"id"`
	Seq       uint64 `json:"seq"`
	Occupancy []int  `json:"occupancy"`
	Selected  *int   `json:"selected_band"`
	Log       []struct {
		Phase   string `json:"phase"`
		Message string `json:"message"`
	} `json:"log"`
	Outcome struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"outcome"`
}

func TestLatestCycleNotFoundBeforeFirstRun(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/cycle", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		t.Fatalf("error body = %s (%v)", body, err)
	}
}

func TestRunCycleThenFetchLatest(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/cycle", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d: %s", resp.StatusCode, body)
	}
	var ran cycleJSON
	if err := json.Unmarshal(body, &ran); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ran.Occupancy) != model.DefaultBandCount || len(ran.Log) != 5 {
		t.Fatalf("cycle = %+v", ran)
	}
	if ran.Selected != nil && ran.Occupancy[*ran.Selected] != 0 {
		t.Fatalf("selected band %d is occupied", *ran.Selected)
	}
	if (ran.Selected != nil) != (ran.Outcome.Status == "allocated") {
		t.Fatalf("outcome %q inconsistent with selection %v", ran.Outcome.Status, ran.Selected)
	}

	resp, body = env.do(t, http.MethodGet, "/api/cycle", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var latest cycleJSON
	if err := json.Unmarshal(body, &latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest.ID != ran.ID {
		t.Fatalf("latest id = %q, want %q", latest.ID, ran.ID)
	}
}

func TestSettingsRoundTripAndValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/settings", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
	var got SettingsView
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Environment != "Urban" || got.AutoRefresh || got.IntervalSeconds != 2 || got.Running == nil || *got.Running {
		t.Fatalf("default settings = %+v", got)
	}

	resp, body = env.do(t, http.MethodPut, "/api/settings", `{"environment":"rural","interval_seconds":3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d: %s", resp.StatusCode, body)
	}
	if s := env.store.Settings(); s.Environment != model.Rural || s.Interval != 3*time.Second {
		t.Fatalf("stored settings = %+v", s)
	}

	cases := map[string]string{
		"interval too long":  `{"interval_seconds":6}`,
		"interval too short": `{"interval_seconds":0}`,
		"unknown label":      `{"environment":"Suburban"}`,
		"unknown field":      `{"bands":4}`,
		"malformed":          `{"environment":`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPut, "/api/settings", payload)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", resp.StatusCode, body)
			}
		})
	}
	if s := env.store.Settings(); s.Environment != model.Rural || s.Interval != 3*time.Second {
		t.Fatalf("rejected updates changed settings: %+v", s)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("echoed request id = %q, want req-123", got)
	}

	resp, _ = env.do(t, http.MethodGet, "/healthz", "")
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestIndexPageRendersChartAndLog(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "Run Cognitive Simulation") {
		t.Fatalf("page is missing the run button")
	}

	env.do(t, http.MethodPost, "/api/cycle", "")
	_, body = env.do(t, http.MethodGet, "/", "")
	page := string(body)
	if !strings.Contains(page, ChartTitle) {
		t.Fatalf("page is missing the chart title")
	}
	if n := strings.Count(page, "<rect data-band="); n != model.DefaultBandCount {
		t.Fatalf("page has %d bars, want %d", n, model.DefaultBandCount)
	}
	for _, phase := range model.Phases {
		if !strings.Contains(page, "<strong>"+string(phase)+":</strong>") {
			t.Fatalf("page is missing phase %s", phase)
		}
	}

	resp, _ = env.do(t, http.MethodGet, "/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown path status = %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/healthz", "")
	env.do(t, http.MethodGet, "/api/cycle", "")

	if got := testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/healthz", "GET", "200")); got != 1 {
		t.Fatalf("healthz requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/api/cycle", "GET", "404")); got != 1 {
		t.Fatalf("api/cycle 404 requests = %v, want 1", got)
	}

	resp, body := env.do(t, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "spectrum_http_requests_total") {
		t.Fatalf("metrics endpoint status %d missing series", resp.StatusCode)
	}
}

func TestWebSocketStreamsSettingsAndCycles(t *testing.T) {
	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first StreamMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if first.Type != "settings" || first.Settings == nil || first.Settings.Environment != "Urban" {
		t.Fatalf("first frame = %+v", first)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.server.Hub().Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	_, body := env.do(t, http.MethodPost, "/api/cycle", "")
	var ran cycleJSON
	if err := json.Unmarshal(body, &ran); err != nil {
		t.Fatalf("decode: %v", err)
	}

	var frame struct {
		Type  string    `json:"type"`
		Cycle cycleJSON `json:"cycle"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read cycle frame: %v", err)
	}
	if frame.Type != "cycle" || frame.Cycle.ID != ran.ID {
		t.Fatalf("cycle frame = %s %q, want cycle %q", frame.Type, frame.Cycle.ID, ran.ID)
	}

	env.do(t, http.MethodPut, "/api/settings", `{"environment":"Rural"}`)
	var update StreamMessage
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read settings frame: %v", err)
	}
	if update.Type != "settings" || update.Settings.Environment != "Rural" {
		t.Fatalf("settings frame = %+v", update)
	}
}

func TestNewChartColoursBands(t *testing.T) {
	occ, err := model.OccupancyFromBits([]int{0, 1, 0})
	if err != nil {
		t.Fatalf("OccupancyFromBits: %v", err)
	}
	c := NewChart(occ)
	if c.Title != ChartTitle || len(c.Bars) != 3 {
		t.Fatalf("chart = %+v", c)
	}
	want := []string{colorFree, colorOccupied, colorFree}
	for i, b := range c.Bars {
		if b.Color != want[i] || b.Index != i {
			t.Fatalf("bar %d = %+v", i, b)
		}
		if b.Height != c.Bars[0].Height {
			t.Fatalf("bars must share one height")
		}
	}
	if NewChart(nil).Bars != nil {
		t.Fatalf("empty occupancy should produce no bars")
	}
}
