package api

import (
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/tibiaops/opsdash/pkg/types"
)

// Gauges holds the counters of the most recently rendered snapshot for the
// /metrics exposition. Observe has the signature of a dashboard render hook.
type Gauges struct {
	mu       sync.RWMutex
	app      types.Application
	security types.Security
	origin   types.Origin
	set      bool
}

// NewGauges returns an empty Gauges.
func NewGauges() *Gauges {
	return &Gauges{}
}

// Observe records the application and security groups of snap.
func (g *Gauges) Observe(snap *types.MetricsSnapshot, origin types.Origin) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.app = *snap.Application
	g.security = *snap.Security
	g.origin = origin
	g.set = true
}

// metrics returns GET /metrics: refresh counters and last rendered values.
func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	w.WriteHeader(http.StatusOK)

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range h.families() {
		if err := enc.Encode(mf); err != nil {
			return
		}
	}
}

// families builds the metric families exposed on /metrics.
func (h *Handler) families() []*dto.MetricFamily {
	st := h.deps.Dashboard.Stats()

	var lastRefresh float64
	if !st.LastRefresh.IsZero() {
		lastRefresh = float64(st.LastRefresh.UnixNano()) / float64(time.Second)
	}

	out := []*dto.MetricFamily{
		family("opsdash_refresh_total", "Refresh cycles rendered, by data origin.", dto.MetricType_COUNTER,
			counter(float64(st.Remote), "origin", string(types.OriginRemote)),
			counter(float64(st.Sample), "origin", string(types.OriginSample)),
		),
		family("opsdash_refresh_aborted_total", "Refresh cycles aborted by a malformed metrics document.", dto.MetricType_COUNTER,
			counter(float64(st.Aborted)),
		),
		family("opsdash_last_refresh_timestamp_seconds", "Unix timestamp of the last refresh cycle.", dto.MetricType_GAUGE,
			gauge(lastRefresh),
		),
	}
	if h.deps.Store != nil {
		out = append(out, family("opsdash_history_cycles", "Refresh cycles held in memory.", dto.MetricType_GAUGE,
			gauge(float64(h.deps.Store.Count())),
		))
	}

	g := h.deps.Gauges
	if g == nil {
		return out
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.set {
		return out
	}
	a, s := g.app, g.security
	out = append(out,
		family("opsdash_application", "Application counters of the last rendered snapshot.", dto.MetricType_GAUGE,
			gauge(float64(a.TrollsTotal), "counter", "trolls_total"),
			gauge(float64(a.BastexTotal), "counter", "bastex_total"),
			gauge(float64(a.EnemiesOnline), "counter", "enemies_online"),
			gauge(float64(a.APICalls), "counter", "api_calls"),
			gauge(float64(a.WorldsMonitored), "counter", "worlds_monitored"),
			gauge(float64(a.GuildsMonitored), "counter", "guilds_monitored"),
		),
		family("opsdash_security_scans", "Security scan results of the last rendered snapshot.", dto.MetricType_GAUGE,
			gauge(float64(s.Passed), "result", "passed"),
			gauge(float64(s.Warnings), "result", "warnings"),
			gauge(float64(s.Failed), "result", "failed"),
		),
	)
	return out
}

func family(name, help string, typ dto.MetricType, metrics ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: metrics,
	}
}

func counter(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func gauge(v float64, labels ...string) *dto.Metric {
	return &dto.Metric{Label: labelPairs(labels), Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

// labelPairs turns name, value, name, value... into label pairs.
func labelPairs(kv []string) []*dto.LabelPair {
	if len(kv) == 0 {
		return nil
	}
	out := make([]*dto.LabelPair, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &dto.LabelPair{Name: proto.String(kv[i]), Value: proto.String(kv[i+1])})
	}
	return out
}
