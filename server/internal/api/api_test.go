package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tibiaops/opsdash/pkg/types"
	"github.com/tibiaops/opsdash/server/internal/alerts"
	"github.com/tibiaops/opsdash/server/internal/api"
	"github.com/tibiaops/opsdash/server/internal/config"
	"github.com/tibiaops/opsdash/server/internal/dashboard"
	"github.com/tibiaops/opsdash/server/internal/source"
	"github.com/tibiaops/opsdash/server/internal/store"
)

// --- test helpers -----------------------------------------------------------

type fetchFunc func(ctx context.Context) (*types.MetricsSnapshot, error)

func (f fetchFunc) Fetch(ctx context.Context) (*types.MetricsSnapshot, error) { return f(ctx) }

func snapshot() *types.MetricsSnapshot {
	return &types.MetricsSnapshot{
		Pipeline: &types.Pipeline{
			Labels:           []string{"Mar 9", "Mar 10"},
			CI:               []int{7, 9},
			CD:               []int{2, 3},
			CISuccessRate:    "94%",
			CDSuccessRate:    "98%",
			AvgBuildTime:     "2m 34s",
			TotalDeployments: 127,
		},
		Security: &types.Security{Passed: 80, Warnings: 15, Failed: 5},
		Application: &types.Application{
			TrollsTotal: 342, BastexTotal: 156, EnemiesOnline: 7,
			APICalls: 15420, WorldsMonitored: 14, GuildsMonitored: 2,
		},
	}
}

type fixture struct {
	ctl    *dashboard.Controller
	store  *store.Store
	alerts *alerts.Engine
	gauges *api.Gauges
}

func newFixture(t *testing.T, fetchErr error) *fixture {
	t.Helper()
	f := &fixture{
		store: store.New(time.Hour),
		alerts: alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
			{Name: "failed-scans", Condition: "security.failed > 0", Severity: "warning"},
		}}),
		gauges: api.NewGauges(),
	}
	fetch := fetchFunc(func(context.Context) (*types.MetricsSnapshot, error) {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return snapshot(), nil
	})
	f.ctl = dashboard.New(fetch, dashboard.Options{
		Recorder: f.store,
		OnRender: []dashboard.RenderFunc{f.alerts.Evaluate, f.gauges.Observe},
	})
	f.ctl.Initialize()
	return f
}

func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	if err := f.ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
}

func (f *fixture) handler(extra ...func(*api.Deps)) http.Handler {
	deps := api.Deps{
		Dashboard: f.ctl,
		Store:     f.store,
		Alerts:    f.alerts,
		Gauges:    f.gauges,
	}
	for _, fn := range extra {
		fn(&deps)
	}
	return api.New(deps)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// --- /api/v1/dashboard ------------------------------------------------------

func TestDashboard_RemoteView(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	rr := get(t, f.handler(), "/api/v1/dashboard")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var v dashboard.View
	decode(t, rr, &v)

	if v.Origin != types.OriginRemote {
		t.Errorf("origin: got %q, want remote", v.Origin)
	}
	if c, _ := v.Card(dashboard.CardTotalDeployments); c.Value != "127" {
		t.Errorf("total-deployments: got %q, want 127", c.Value)
	}
	if tile, _ := v.Tile("API Calls"); tile.Value != "15.4K" {
		t.Errorf("API Calls: got %q, want 15.4K", tile.Value)
	}
	if v.Pipeline == nil || len(v.Pipeline.Labels) != 2 {
		t.Fatalf("pipeline_chart: got %+v", v.Pipeline)
	}
	if got := v.Security.Datasets[0].Data; len(got) != 3 || got[2] != 5 {
		t.Errorf("security data: got %v, want [80 15 5]", got)
	}
}

func TestDashboard_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rr := httptest.NewRecorder()
	f.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/dashboard", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_BeforeFirstCycle(t *testing.T) {
	f := newFixture(t, nil)
	rr := get(t, f.handler(), "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" {
		t.Errorf("state: got %q, want unknown", resp.State)
	}
	if resp.CycleCount != 0 {
		t.Errorf("cycle_count: got %d, want 0", resp.CycleCount)
	}
}

func TestHealth_RemoteCycleIsOK(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	var resp api.HealthResponse
	decode(t, get(t, f.handler(), "/api/v1/health"), &resp)

	if resp.State != "ok" {
		t.Errorf("state: got %q, want ok", resp.State)
	}
	if resp.RemoteTotal != 1 || resp.SampleTotal != 0 {
		t.Errorf("totals: got remote=%d sample=%d, want 1/0", resp.RemoteTotal, resp.SampleTotal)
	}
	if resp.LastCycle == nil || resp.LastCycle.Origin != string(types.OriginRemote) {
		t.Errorf("last_cycle: got %+v", resp.LastCycle)
	}
	if resp.LastRefresh == "" {
		t.Error("last_refresh: missing")
	}
}

func TestHealth_SampleCycleIsDegraded(t *testing.T) {
	f := newFixture(t, errors.New("connection refused"))
	f.refresh(t)
	var resp api.HealthResponse
	decode(t, get(t, f.handler(), "/api/v1/health"), &resp)

	if resp.State != "degraded" {
		t.Errorf("state: got %q, want degraded", resp.State)
	}
	if resp.SampleTotal != 1 {
		t.Errorf("sample_total: got %d, want 1", resp.SampleTotal)
	}
}

func TestHealth_IncludesCert(t *testing.T) {
	f := newFixture(t, nil)
	h := f.handler(func(d *api.Deps) {
		d.Cert = func() *source.CertStatus {
			return &source.CertStatus{Endpoint: "metrics.example.com:443", Status: "valid", DaysLeft: 60}
		}
	})
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.Cert == nil || resp.Cert.Status != "valid" {
		t.Errorf("cert: got %+v, want status valid", resp.Cert)
	}
}

// --- /api/v1/history --------------------------------------------------------

func TestHistory_ListsCycles(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	f.refresh(t)
	rr := get(t, f.handler(), "/api/v1/history")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HistoryResponse
	decode(t, rr, &resp)
	if len(resp.Cycles) != 2 {
		t.Errorf("cycles: got %d, want 2", len(resp.Cycles))
	}
	if resp.GeneratedAt == "" {
		t.Error("generated_at: missing")
	}
}

func TestHistory_NoStore(t *testing.T) {
	f := newFixture(t, nil)
	h := f.handler(func(d *api.Deps) { d.Store = nil })
	var resp map[string]interface{}
	decode(t, get(t, h, "/api/v1/history"), &resp)

	cycles, ok := resp["cycles"].([]interface{})
	if !ok || len(cycles) != 0 {
		t.Errorf("cycles: got %v, want empty array", resp["cycles"])
	}
}

// --- /api/v1/alerts ---------------------------------------------------------

func TestAlerts_FiringAfterRender(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	var resp []alerts.Alert
	decode(t, get(t, f.handler(), "/api/v1/alerts"), &resp)

	if len(resp) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(resp))
	}
	if resp[0].RuleName != "failed-scans" || resp[0].State != "firing" {
		t.Errorf("alert: got %s/%s, want failed-scans/firing", resp[0].RuleName, resp[0].State)
	}
}

func TestAlerts_NoEngine(t *testing.T) {
	f := newFixture(t, nil)
	h := f.handler(func(d *api.Deps) { d.Alerts = nil })
	var resp []interface{}
	decode(t, get(t, h, "/api/v1/alerts"), &resp)
	if len(resp) != 0 {
		t.Errorf("alerts: got %d, want 0", len(resp))
	}
}

// --- /api/v1/refresh --------------------------------------------------------

func TestRefresh_Accepted(t *testing.T) {
	f := newFixture(t, nil)
	var calls atomic.Int32
	h := f.handler(func(d *api.Deps) { d.Refresh = func() { calls.Add(1) } })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status: got %d, want 202", rr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("refresh calls: got %d, want 1", calls.Load())
	}
}

func TestRefresh_GetNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	rr := get(t, f.handler(), "/api/v1/refresh")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", rr.Code)
	}
}

func TestRefresh_Unavailable(t *testing.T) {
	f := newFixture(t, nil)
	rr := httptest.NewRecorder()
	f.handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/refresh", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

// --- /metrics ---------------------------------------------------------------

func TestMetrics_Exposition(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	rr := get(t, f.handler(), "/metrics")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`opsdash_refresh_total{origin="remote"} 1`,
		`opsdash_refresh_total{origin="sample"} 0`,
		`opsdash_refresh_aborted_total 0`,
		`opsdash_history_cycles 1`,
		`opsdash_application{counter="api_calls"} 15420`,
		`opsdash_security_scans{result="failed"} 5`,
		`# TYPE opsdash_refresh_total counter`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestMetrics_NoSnapshotYet(t *testing.T) {
	f := newFixture(t, nil)
	body := get(t, f.handler(), "/metrics").Body.String()

	if strings.Contains(body, "opsdash_application") {
		t.Errorf("application gauges before first render:\n%s", body)
	}
	if !strings.Contains(body, "opsdash_refresh_total") {
		t.Errorf("refresh counters missing:\n%s", body)
	}
}

// --- / ----------------------------------------------------------------------

func TestPage_RendersMounts(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	rr := get(t, f.handler(), "/")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`id="pipelineChart"`,
		`id="securityChart"`,
		`id="ci-success-rate">94%<`,
		`id="total-deployments">127<`,
		`id="app-metrics"`,
		`15.4K`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestPage_UnknownPathNotFound(t *testing.T) {
	f := newFixture(t, nil)
	rr := get(t, f.handler(), "/does-not-exist")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestDashboard_ETagRevalidation(t *testing.T) {
	f := newFixture(t, nil)
	f.refresh(t)
	h := f.handler()

	first := get(t, h, "/api/v1/dashboard")
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag: missing")
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("If-None-Match", etag)
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotModified {
		t.Errorf("status: got %d, want 304", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("body: got %d bytes, want none", rr.Body.Len())
	}
}
