package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tibiaops/opsdash/pkg/types"
	"github.com/tibiaops/opsdash/server/internal/config"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"

	// Origin and Digest describe the snapshot of the last transition.
	Origin types.Origin `json:"origin"`
	Digest Digest       `json:"digest"`
}

// Digest is the part of a snapshot that notifications report.
type Digest struct {
	ScansPassed      int `json:"scans_passed"`
	ScansWarnings    int `json:"scans_warnings"`
	ScansFailed      int `json:"scans_failed"`
	EnemiesOnline    int `json:"enemies_online"`
	APICalls         int `json:"api_calls"`
	TotalDeployments int `json:"total_deployments"`
}

func digestOf(snap *types.MetricsSnapshot) Digest {
	var d Digest
	if s := snap.Security; s != nil {
		d.ScansPassed, d.ScansWarnings, d.ScansFailed = s.Passed, s.Warnings, s.Failed
	}
	if a := snap.Application; a != nil {
		d.EnemiesOnline, d.APICalls = a.EnemiesOnline, a.APICalls
	}
	if p := snap.Pipeline; p != nil {
		d.TotalDeployments = p.TotalDeployments
	}
	return d
}

// Engine evaluates alert rules against rendered snapshots and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []config.AlertRule
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	now      func() time.Time

	// deliverFn sends notifications; replaced in tests.
	deliverFn func(*Alert)
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.deliverFn = func(a *Alert) { go e.deliver(a) }
	return e
}

// Evaluate tests all configured rules against snap. It has the signature of
// a dashboard render hook.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(snap *types.MetricsSnapshot, origin types.Origin) {
	if len(e.rules) == 0 {
		return
	}

	now := e.now()
	digest := digestOf(snap)
	for _, rule := range e.rules {
		key := rule.Name
		fires, value := evalCondition(rule.Condition, snap, origin)

		e.mu.Lock()

		if fires {
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			if now.Sub(e.lastFire[key]) > cooldown {
				sev := rule.Severity
				if sev == "" {
					sev = "warning"
				}
				a := &Alert{
					ID:       fmt.Sprintf("%s:%d", rule.Name, now.UnixNano()),
					RuleName: rule.Name,
					Severity: sev,
					Value:    value,
					Message: fmt.Sprintf("[%s] %s fired: %s (value %.2f, %s data)",
						sev, rule.Name, rule.Condition, value, origin),
					FiredAt: now,
					State:   "firing",
					Origin:  origin,
					Digest:  digest,
				}
				e.active[key] = a
				e.lastFire[key] = now
				alertCopy := *a
				e.mu.Unlock()

				slog.Warn("alert fired",
					"rule", rule.Name,
					"value", value,
					"severity", sev,
				)
				e.deliverFn(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		} else {
			if a, ok := e.active[key]; ok && a.State == "firing" {
				resolved := now
				a.State = "resolved"
				a.ResolvedAt = &resolved
				a.Origin = origin
				a.Digest = digest
				delete(e.active, key)

				e.history = append(e.history, a)
				if len(e.history) > maxHistoryLen {
					e.history = e.history[len(e.history)-maxHistoryLen:]
				}
				alertCopy := *a
				e.mu.Unlock()

				slog.Info("alert resolved", "rule", rule.Name)
				e.deliverFn(&alertCopy)
			} else {
				e.mu.Unlock()
			}
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}
