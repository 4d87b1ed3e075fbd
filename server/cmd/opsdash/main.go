package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tibiaops/opsdash/server/internal/alerts"
	"github.com/tibiaops/opsdash/server/internal/api"
	"github.com/tibiaops/opsdash/server/internal/auth"
	"github.com/tibiaops/opsdash/server/internal/config"
	"github.com/tibiaops/opsdash/server/internal/dashboard"
	"github.com/tibiaops/opsdash/server/internal/schedule"
	"github.com/tibiaops/opsdash/server/internal/source"
	"github.com/tibiaops/opsdash/server/internal/store"
	"github.com/tibiaops/opsdash/server/internal/ws"
)

// certCheckInterval is how often the metrics source certificate is re-checked.
const certCheckInterval = time.Hour

// seedLimit bounds how many persisted cycles are loaded into memory at start.
const seedLimit = 500

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; built-in defaults are used if it does not exist")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("opsdash starting", "config", *configPath)

	cfg, watch, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"source", cfg.Dashboard.Source,
		"refresh_interval", cfg.Dashboard.RefreshInterval,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"storage_backend", cfg.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Cycle history with background TTL eviction and optional persistence.
	st := store.New(cfg.Storage.HistoryTTL)
	if cfg.Storage.Backend == "sqlite" {
		db, err := store.OpenSQLite(cfg.Storage.Path, cfg.Storage.Retention)
		if err != nil {
			slog.Error("failed to open history database", "path", cfg.Storage.Path, "err", err)
			os.Exit(1)
		}
		defer db.Close()

		recent, err := db.Recent(ctx, seedLimit)
		if err != nil {
			slog.Warn("could not load persisted history", "err", err)
		}
		st.Seed(recent)
		st.Attach(db)
		slog.Info("history persistence enabled", "path", cfg.Storage.Path, "seeded", len(recent))
	}
	go st.Run(ctx)

	fetcher, err := source.New(cfg.Dashboard)
	if err != nil {
		slog.Error("invalid metrics source", "source", cfg.Dashboard.Source, "err", err)
		os.Exit(1)
	}

	alertEngine := alerts.New(cfg.Alerts)
	gauges := api.NewGauges()

	// The hub reads views from the controller and the controller notifies the
	// hub after each render, so the hub is built against a late-bound source.
	views := &lateViews{}
	hub := ws.New(views, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	opts := dashboard.Options{
		Recorder: st,
		OnRender: []dashboard.RenderFunc{alertEngine.Evaluate, gauges.Observe, hub.Notify},
	}
	if cfg.Dashboard.Exposition != "" {
		opts.Exposition = source.NewExposition(
			cfg.Dashboard.Exposition,
			cfg.Dashboard.Auth,
			cfg.Dashboard.TLS,
			cfg.Dashboard.Timeout,
		)
		slog.Info("exposition overlay enabled", "endpoint", cfg.Dashboard.Exposition)
	}
	ctl := dashboard.New(fetcher, opts)
	views.set(ctl)
	ctl.Initialize()

	refresh := func(ctx context.Context) {
		if err := ctl.Refresh(ctx); err != nil {
			slog.Error("refresh cycle aborted", "err", err)
		}
	}

	// First cycle runs before the periodic task starts.
	refresh(ctx)

	r := &refresher{ctx: ctx, fn: refresh}
	r.start(cfg.Dashboard.RefreshInterval)
	defer r.stop()

	if watch {
		go func() {
			err := config.Watch(ctx, *configPath, cfg, func(ch config.Change) {
				if ch.Has(config.FieldRefreshInterval) {
					slog.Info("refresh interval changed",
						"from", ch.Old.Dashboard.RefreshInterval, "to", ch.New.Dashboard.RefreshInterval)
					r.start(ch.New.Dashboard.RefreshInterval)
				}
				if fields := ch.RestartRequired(); len(fields) > 0 {
					slog.Warn("config changes take effect after a restart", "fields", fields)
				}
			})
			if err != nil {
				slog.Warn("config watch stopped", "err", err)
			}
		}()
	}

	// TLS certificate of the metrics source, checked at start and hourly.
	var cert atomic.Pointer[source.CertStatus]
	checkCert := func(ctx context.Context) {
		if cs := source.CheckCert(ctx, cfg.Dashboard.Source, cfg.Dashboard.TLS); cs != nil {
			cert.Store(cs)
			if cs.Status != "valid" {
				slog.Warn("metrics source certificate", "status", cs.Status, "days_left", cs.DaysLeft)
			}
		}
	}
	go checkCert(ctx)
	certTask := schedule.Every(ctx, certCheckInterval, checkCert)
	defer certTask.Stop()

	apiHandler := api.New(api.Deps{
		Dashboard: ctl,
		Store:     st,
		Alerts:    alertEngine,
		Gauges:    gauges,
		Refresh:   func() { go refresh(ctx) },
		Cert:      cert.Load,
	})

	guard := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
	)

	// The page inlines the view, so it is guarded like the API. /metrics
	// stays open for scrapers.
	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", apiHandler)
	httpMux.Handle("/ws/stream", guard(hub))
	httpMux.Handle("/", guard(apiHandler))

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("opsdash shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// loadConfig reads path, or falls back to the built-in defaults when the file
// does not exist. watch reports whether the file should be watched.
func loadConfig(path string) (cfg *config.Config, watch bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", path)
		return config.Defaults(), false, nil
	}
	cfg, err = config.Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// refresher owns the periodic refresh task so a config reload can replace it
// with one running at a new interval.
type refresher struct {
	ctx context.Context
	fn  func(context.Context)

	mu   sync.Mutex
	task *schedule.Task
}

func (r *refresher) start(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task != nil {
		r.task.Stop()
	}
	r.task = schedule.Every(r.ctx, interval, r.fn)
}

func (r *refresher) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task != nil {
		r.task.Stop()
		r.task = nil
	}
}

// lateViews lets the hub be constructed before the controller it reads from.
type lateViews struct {
	ctl atomic.Pointer[dashboard.Controller]
}

func (l *lateViews) set(c *dashboard.Controller) { l.ctl.Store(c) }

func (l *lateViews) View() dashboard.View {
	if c := l.ctl.Load(); c != nil {
		return c.View()
	}
	return dashboard.View{}
}
