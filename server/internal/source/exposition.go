package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/tibiaops/opsdash/pkg/types"
	"github.com/tibiaops/opsdash/server/internal/config"
)

// Series exposed by the tibia metrics server.
const (
	tibiaTrollsTotal       = "tibia_trolls_total"
	tibiaBastexTotal       = "tibia_bastex_total"
	tibiaEnemiesOnline     = "tibia_enemies_online"
	tibiaAPICallsTotal     = "tibia_api_calls_total"
	tibiaWorldsMonitored   = "tibia_worlds_monitored"
	tibiaGuildsMonitored   = "tibia_guilds_monitored"
	tibiaGuildOnlineMember = "tibia_guild_online_members"

	guildLabel = "guild"
)

// ErrNoSeries is returned when an exposition carries none of the tibia series.
var ErrNoSeries = errors.New("exposition: no tibia series")

// scalarSeries maps each single-sample family onto its application field.
var scalarSeries = []struct {
	name  string
	field func(*types.Application) *int
}{
	{tibiaTrollsTotal, func(a *types.Application) *int { return &a.TrollsTotal }},
	{tibiaBastexTotal, func(a *types.Application) *int { return &a.BastexTotal }},
	{tibiaEnemiesOnline, func(a *types.Application) *int { return &a.EnemiesOnline }},
	{tibiaAPICallsTotal, func(a *types.Application) *int { return &a.APICalls }},
	{tibiaWorldsMonitored, func(a *types.Application) *int { return &a.WorldsMonitored }},
	{tibiaGuildsMonitored, func(a *types.Application) *int { return &a.GuildsMonitored }},
}

// Exposition scrapes a Prometheus text endpoint for application counters.
type Exposition struct {
	endpoint string
	client   *http.Client
}

// NewExposition returns a scraper for endpoint using the dashboard's
// outgoing auth and TLS settings.
func NewExposition(endpoint string, auth config.SourceAuth, tlsOpts config.TLSConfig, timeout time.Duration) *Exposition {
	return &Exposition{endpoint: endpoint, client: buildHTTPClient(auth, tlsOpts, timeout)}
}

// Scrape fetches the endpoint and returns the application group it describes.
//
// When the totals for enemies online or guilds monitored are missing they are
// derived from the per-guild tibia_guild_online_members series. Other absent
// series are reported as zero. An exposition with no tibia series at all is
// an error, so the document's own values are not replaced by zeros.
func (e *Exposition) Scrape(ctx context.Context) (*types.Application, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("exposition %q: build request: %w", e.endpoint, err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exposition %q: http get: %w", e.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exposition %q: unexpected status %d", e.endpoint, resp.StatusCode)
	}

	app, err := applicationFrom(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("exposition %q: %w", e.endpoint, err)
	}
	return app, nil
}

// applicationFrom parses a text exposition and maps the tibia families onto
// an application group.
func applicationFrom(r io.Reader) (*types.Application, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}

	var app types.Application
	found := 0
	for _, s := range scalarSeries {
		mf, ok := mfs[s.name]
		if !ok {
			continue
		}
		v, err := scalar(mf)
		if err != nil {
			return nil, err
		}
		*s.field(&app) = v
		found++
	}

	if mf, ok := mfs[tibiaGuildOnlineMember]; ok {
		online, guilds := perGuild(mf)
		if _, ok := mfs[tibiaEnemiesOnline]; !ok {
			app.EnemiesOnline = online
		}
		if _, ok := mfs[tibiaGuildsMonitored]; !ok {
			app.GuildsMonitored = guilds
		}
		found++
	}

	if found == 0 {
		return nil, ErrNoSeries
	}
	return &app, nil
}

// scalar returns the value of a family that carries exactly one unlabelled
// sample. Families split by labels are rejected.
func scalar(mf *dto.MetricFamily) (int, error) {
	ms := mf.GetMetric()
	if len(ms) != 1 || len(ms[0].GetLabel()) != 0 {
		return 0, fmt.Errorf("family %s: want one unlabelled sample, got %d samples", mf.GetName(), len(ms))
	}
	return int(sampleValue(ms[0])), nil
}

// perGuild sums the online members over all guild series and counts the
// distinct guilds they cover.
func perGuild(mf *dto.MetricFamily) (online, guilds int) {
	seen := make(map[string]struct{})
	var total float64
	for _, m := range mf.GetMetric() {
		total += sampleValue(m)
		for _, lp := range m.GetLabel() {
			if lp.GetName() == guildLabel {
				seen[lp.GetValue()] = struct{}{}
			}
		}
	}
	return int(total), len(seen)
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}
