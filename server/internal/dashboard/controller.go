package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tibiaops/opsdash/pkg/types"
	"github.com/tibiaops/opsdash/server/internal/sample"
	"github.com/tibiaops/opsdash/server/internal/store"
)

// ErrNotInitialized is returned by Render before Initialize has run.
var ErrNotInitialized = errors.New("dashboard: not initialized")

// Fetcher retrieves the metrics document.
type Fetcher interface {
	Fetch(ctx context.Context) (*types.MetricsSnapshot, error)
}

// ApplicationScraper supplies live application counters that replace the
// application group of every snapshot.
type ApplicationScraper interface {
	Scrape(ctx context.Context) (*types.Application, error)
}

// Recorder receives one record per refresh cycle.
type Recorder interface {
	Record(c store.Cycle)
}

// RenderFunc is called after every successful render with the snapshot that
// was rendered. It must not retain or modify snap.
type RenderFunc func(snap *types.MetricsSnapshot, origin types.Origin)

// Options are the optional collaborators of a Controller.
type Options struct {
	Exposition ApplicationScraper
	Recorder   Recorder
	OnRender   []RenderFunc
}

// Stats are cumulative refresh counters.
type Stats struct {
	Remote      uint64
	Sample      uint64
	Aborted     uint64
	LastRefresh time.Time
}

// Controller owns the two chart widgets and the rest of the dashboard's
// visual state for the lifetime of the process.
type Controller struct {
	fetch Fetcher
	opts  Options

	now    func() time.Time // injectable for deterministic tests
	sample func(now time.Time) *types.MetricsSnapshot

	mu          sync.RWMutex
	initialized bool
	pipeline    *Chart
	security    *Chart
	cards       []Card
	tiles       []Tile
	origin      types.Origin
	renderedAt  time.Time

	remote, fallback, aborted atomic.Uint64
	lastRefresh               atomic.Int64
}

// New creates a Controller that retrieves snapshots with f.
func New(f Fetcher, opts Options) *Controller {
	return &Controller{
		fetch: f,
		opts:  opts,
		now:   time.Now,
		sample: func(now time.Time) *types.MetricsSnapshot {
			return sample.Generate(now, nil)
		},
	}
}

// Initialize creates the chart widgets. Only the first call has an effect.
func (c *Controller) Initialize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return
	}
	c.pipeline = newPipelineChart()
	c.security = newSecurityChart()
	c.initialized = true
	slog.Debug("dashboard: charts initialized")
}

// Refresh runs one refresh cycle: fetch, fall back to sample data on any
// retrieval failure, render. A document with a missing group aborts the
// cycle and leaves the previous view in place.
//
// Refresh has no in-flight guard; concurrent calls race and the last render
// to complete wins.
func (c *Controller) Refresh(ctx context.Context) error {
	start := c.now()
	snap, origin := c.retrieve(ctx)

	err := snap.Validate()
	if err == nil && c.opts.Exposition != nil {
		c.overlay(ctx, snap)
	}
	if err == nil {
		err = c.Render(snap, origin)
	}

	cycle := store.Cycle{
		StartedAt: start,
		Duration:  c.now().Sub(start),
		Origin:    string(origin),
	}
	if err != nil {
		cycle.Error = err.Error()
		c.aborted.Add(1)
	} else if origin == types.OriginSample {
		c.fallback.Add(1)
	} else {
		c.remote.Add(1)
	}
	c.lastRefresh.Store(c.now().UnixNano())
	if c.opts.Recorder != nil {
		c.opts.Recorder.Record(cycle)
	}

	if err != nil {
		return fmt.Errorf("dashboard: refresh: %w", err)
	}

	for _, fn := range c.opts.OnRender {
		fn(snap, origin)
	}
	return nil
}

// retrieve returns the fetched document, or a fresh sample snapshot if the
// fetch failed for any reason.
func (c *Controller) retrieve(ctx context.Context) (*types.MetricsSnapshot, types.Origin) {
	snap, err := c.fetch.Fetch(ctx)
	if err != nil {
		slog.Info("dashboard: using sample data", "err", err)
		return c.sample(c.now()), types.OriginSample
	}
	return snap, types.OriginRemote
}

// overlay replaces snap.Application with live counters when they can be
// scraped. Scrape failures keep the document's own values.
func (c *Controller) overlay(ctx context.Context, snap *types.MetricsSnapshot) {
	app, err := c.opts.Exposition.Scrape(ctx)
	if err != nil {
		slog.Warn("dashboard: exposition scrape failed", "err", err)
		return
	}
	snap.Application = app
}

// Render projects snap onto the visual state: cards, both charts and tiles.
// Rendering the same snapshot again yields the same visual state.
func (c *Controller) Render(snap *types.MetricsSnapshot, origin types.Origin) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	p := snap.Pipeline
	if !p.SeriesAligned() {
		slog.Debug("dashboard: pipeline series lengths differ",
			"labels", len(p.Labels), "ci", len(p.CI), "cd", len(p.CD))
	}

	cards := buildCards(p)
	tiles := buildTiles(snap.Application)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return ErrNotInitialized
	}

	c.cards = cards

	c.pipeline.Labels = append([]string(nil), p.Labels...)
	c.pipeline.Datasets[0].Data = append([]int(nil), p.CI...)
	c.pipeline.Datasets[1].Data = append([]int(nil), p.CD...)
	c.pipeline.Update()

	s := snap.Security
	c.security.Datasets[0].Data = []int{s.Passed, s.Warnings, s.Failed}
	c.security.Update()

	c.tiles = tiles
	c.origin = origin
	c.renderedAt = c.now()
	return nil
}

// View returns a copy of the current visual state.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v := View{
		Cards:    append([]Card(nil), c.cards...),
		Pipeline: c.pipeline.clone(),
		Security: c.security.clone(),
		Tiles:    append([]Tile(nil), c.tiles...),
		Origin:   c.origin,
	}
	if !c.renderedAt.IsZero() {
		at := c.renderedAt
		v.RenderedAt = &at
		v.UpdatedAgo = humanize.RelTime(at, c.now(), "ago", "from now")
	}
	return v
}

// Stats returns the cumulative refresh counters.
func (c *Controller) Stats() Stats {
	st := Stats{
		Remote:  c.remote.Load(),
		Sample:  c.fallback.Load(),
		Aborted: c.aborted.Load(),
	}
	if ns := c.lastRefresh.Load(); ns != 0 {
		st.LastRefresh = time.Unix(0, ns)
	}
	return st
}
