package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/tibiaops/opsdash/server/internal/alerts"
	"github.com/tibiaops/opsdash/server/internal/dashboard"
	"github.com/tibiaops/opsdash/server/internal/source"
	"github.com/tibiaops/opsdash/server/internal/store"
)

// Deps are the components the handler reads from.
type Deps struct {
	Dashboard *dashboard.Controller
	Store     *store.Store
	Alerts    *alerts.Engine
	Gauges    *Gauges

	// Refresh starts a refresh cycle without waiting for it.
	Refresh func()

	// Cert returns the latest certificate check of the metrics source, or nil.
	Cert func() *source.CertStatus
}

// Handler is the HTTP handler for the page, /api/v1/* and /metrics.
type Handler struct {
	deps Deps
	mux  *http.ServeMux
}

// New creates a Handler wired to deps and registers all routes.
func New(deps Deps) http.Handler {
	h := &Handler{deps: deps, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/dashboard", h.dashboard)
	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/history", h.history)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/refresh", h.refresh)
	h.mux.HandleFunc("/metrics", h.metrics)
	h.mux.HandleFunc("/", h.page)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// dashboard returns GET /api/v1/dashboard: the current view, tagged with an
// ETag so polling clients can revalidate with If-None-Match.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	v := h.deps.Dashboard.View()
	body, err := json.Marshal(v)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "encode view")
		return
	}
	etag, err := viewETag(v)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "encode view")
		return
	}
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(body, '\n')) //nolint:errcheck
}

// health returns GET /api/v1/health: last cycle and cumulative counters.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := h.deps.Dashboard.Stats()
	resp := HealthResponse{
		State:        "unknown",
		RemoteTotal:  st.Remote,
		SampleTotal:  st.Sample,
		AbortedTotal: st.Aborted,
	}
	if !st.LastRefresh.IsZero() {
		resp.LastRefresh = st.LastRefresh.UTC().Format(time.RFC3339)
	}
	if h.deps.Store != nil {
		resp.CycleCount = h.deps.Store.Count()
		if c, ok := h.deps.Store.Last(); ok {
			resp.LastCycle = &c
			resp.State = cycleState(c)
		}
	}
	if h.deps.Cert != nil {
		resp.Cert = h.deps.Cert()
	}
	jsonResp(w, http.StatusOK, resp)
}

// history returns GET /api/v1/history: cycles within the history TTL.
func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cycles := []store.Cycle{}
	if h.deps.Store != nil {
		cycles = h.deps.Store.List()
	}
	jsonResp(w, http.StatusOK, HistoryResponse{
		Cycles:      cycles,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// alerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.deps.Alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.deps.Alerts.Active())
}

// refresh handles POST /api/v1/refresh: starts a cycle and returns at once.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.deps.Refresh == nil {
		jsonErr(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}
	h.deps.Refresh()
	jsonResp(w, http.StatusAccepted, RefreshResponse{Status: "refresh started"})
}

// --- helpers ----------------------------------------------------------------

// viewETag hashes v without its time-derived UpdatedAgo text, so the tag
// only changes when a render does.
func viewETag(v dashboard.View) (string, error) {
	v.UpdatedAgo = ""
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`"%016x"`, xxh3.Hash(b)), nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// cycleState converts the last refresh cycle to a health state string.
func cycleState(c store.Cycle) string {
	switch {
	case c.Error != "":
		return "degraded"
	case c.Origin == "sample":
		return "degraded"
	default:
		return "ok"
	}
}
