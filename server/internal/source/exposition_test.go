package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tibiaops/opsdash/server/internal/config"
)

// tibiaMetrics is the exposition served by the tibia metrics server.
const tibiaMetrics = `
# HELP tibia_trolls_total Total number of players in trolls list
# TYPE tibia_trolls_total gauge
tibia_trolls_total 351
# HELP tibia_bastex_total Total number of players in bastex list
# TYPE tibia_bastex_total gauge
tibia_bastex_total 160
# HELP tibia_enemies_online Current number of enemies online
# TYPE tibia_enemies_online gauge
tibia_enemies_online 9
# HELP tibia_api_calls_total Total API calls made
# TYPE tibia_api_calls_total counter
tibia_api_calls_total 2500000
# HELP tibia_worlds_monitored Number of worlds being monitored
# TYPE tibia_worlds_monitored gauge
tibia_worlds_monitored 14
# HELP tibia_guild_online_members Online members per enemy guild
# TYPE tibia_guild_online_members gauge
tibia_guild_online_members{guild="Bastex",world="Antica"} 5
tibia_guild_online_members{guild="Trolls",world="Secura"} 4
`

func TestExposition_Scrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(tibiaMetrics))
	}))
	defer srv.Close()

	e := NewExposition(srv.URL, config.SourceAuth{}, config.TLSConfig{}, 2*time.Second)
	app, err := e.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if app.TrollsTotal != 351 {
		t.Errorf("TrollsTotal = %d, want 351", app.TrollsTotal)
	}
	if app.APICalls != 2500000 {
		t.Errorf("APICalls = %d, want 2500000", app.APICalls)
	}
	if app.EnemiesOnline != 9 {
		t.Errorf("EnemiesOnline = %d, want 9", app.EnemiesOnline)
	}
	// No total in the exposition; counted from the per-guild series.
	if app.GuildsMonitored != 2 {
		t.Errorf("GuildsMonitored = %d, want 2", app.GuildsMonitored)
	}
}

func TestExposition_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewExposition(srv.URL, config.SourceAuth{}, config.TLSConfig{}, 2*time.Second)
	if _, err := e.Scrape(context.Background()); err == nil {
		t.Fatal("Scrape: expected error for 500, got nil")
	}
}

func TestApplicationFrom_DerivesFromGuildSeries(t *testing.T) {
	const text = `
# TYPE tibia_trolls_total gauge
tibia_trolls_total 12
# TYPE tibia_guild_online_members gauge
tibia_guild_online_members{guild="Bastex",world="Antica"} 5
tibia_guild_online_members{guild="Bastex",world="Secura"} 1
tibia_guild_online_members{guild="Trolls",world="Secura"} 4
`
	app, err := applicationFrom(strings.NewReader(text))
	if err != nil {
		t.Fatalf("applicationFrom: %v", err)
	}
	if app.EnemiesOnline != 10 {
		t.Errorf("EnemiesOnline = %d, want 10", app.EnemiesOnline)
	}
	if app.GuildsMonitored != 2 {
		t.Errorf("GuildsMonitored = %d, want 2", app.GuildsMonitored)
	}
	if app.TrollsTotal != 12 {
		t.Errorf("TrollsTotal = %d, want 12", app.TrollsTotal)
	}
}

func TestApplicationFrom_ExplicitTotalWins(t *testing.T) {
	const text = `
tibia_enemies_online 3
tibia_guild_online_members{guild="Bastex",world="Antica"} 5
`
	app, err := applicationFrom(strings.NewReader(text))
	if err != nil {
		t.Fatalf("applicationFrom: %v", err)
	}
	if app.EnemiesOnline != 3 {
		t.Errorf("EnemiesOnline = %d, want 3", app.EnemiesOnline)
	}
}

func TestApplicationFrom_RejectsLabelSplitScalar(t *testing.T) {
	const text = `
tibia_trolls_total{world="Antica"} 10
tibia_trolls_total{world="Secura"} 20
`
	if _, err := applicationFrom(strings.NewReader(text)); err == nil {
		t.Fatal("applicationFrom: expected error for label-split family, got nil")
	}
}

func TestApplicationFrom_NoTibiaSeries(t *testing.T) {
	const text = `
# TYPE go_goroutines gauge
go_goroutines 12
`
	_, err := applicationFrom(strings.NewReader(text))
	if !errors.Is(err, ErrNoSeries) {
		t.Fatalf("applicationFrom: got %v, want ErrNoSeries", err)
	}
}
