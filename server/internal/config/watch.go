package config

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Field names reported by Diff.
const (
	FieldSource            = "dashboard.source"
	FieldRefreshInterval   = "dashboard.refresh_interval"
	FieldTimeout           = "dashboard.timeout"
	FieldSourceAuth        = "dashboard.auth"
	FieldSourceTLS         = "dashboard.tls"
	FieldExposition        = "dashboard.exposition"
	FieldHTTPPort          = "server.http_port"
	FieldBroadcastInterval = "server.broadcast_interval"
	FieldServerAuth        = "server.auth"
	FieldStorage           = "storage"
	FieldAlerts            = "alerts"
)

// liveFields can be applied without a restart.
var liveFields = map[string]bool{
	FieldRefreshInterval: true,
}

// settleDelay coalesces the burst of events a single save produces
// (truncate, write, chmod, or rename + create).
const settleDelay = 100 * time.Millisecond

// Change is a reload that differs from the running config.
type Change struct {
	Old, New *Config
	Fields   []string
}

// Has reports whether field changed.
func (c Change) Has(field string) bool {
	for _, f := range c.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// RestartRequired returns the changed fields that only take effect on restart.
func (c Change) RestartRequired() []string {
	var out []string
	for _, f := range c.Fields {
		if !liveFields[f] {
			out = append(out, f)
		}
	}
	return out
}

// Diff lists the fields that differ between old and next, in file order.
func Diff(old, next *Config) []string {
	var out []string
	add := func(changed bool, field string) {
		if changed {
			out = append(out, field)
		}
	}
	od, nd := old.Dashboard, next.Dashboard
	add(od.Source != nd.Source, FieldSource)
	add(od.RefreshInterval != nd.RefreshInterval, FieldRefreshInterval)
	add(od.Timeout != nd.Timeout, FieldTimeout)
	add(od.Auth != nd.Auth, FieldSourceAuth)
	add(od.TLS != nd.TLS, FieldSourceTLS)
	add(od.Exposition != nd.Exposition, FieldExposition)

	osrv, nsrv := old.Server, next.Server
	add(osrv.HTTPPort != nsrv.HTTPPort, FieldHTTPPort)
	add(osrv.BroadcastInterval != nsrv.BroadcastInterval, FieldBroadcastInterval)
	add(osrv.Auth != nsrv.Auth, FieldServerAuth)

	add(old.Storage != next.Storage, FieldStorage)
	add(!reflect.DeepEqual(old.Alerts, next.Alerts), FieldAlerts)
	return out
}

// Watch reloads path when it is saved and calls onChange with what differs
// from the running config, starting from current. Saves that change nothing
// and files that fail to load are skipped; the running config stays. It runs
// until ctx is cancelled.
func Watch(ctx context.Context, path string, current *Config, onChange func(Change)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}
	slog.Info("config: watching for changes", "path", path)

	var settle *time.Timer
	var settled <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(settleDelay)
			} else {
				settle.Reset(settleDelay)
			}
			settled = settle.C

		case <-settled:
			settled = nil
			// An atomic save replaces the inode and drops the watch.
			_ = watcher.Add(path)

			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
				continue
			}
			fields := Diff(current, next)
			if len(fields) == 0 {
				slog.Debug("config: saved without changes", "path", path)
				continue
			}
			slog.Info("config: reloaded", "path", path, "changed", fields)
			onChange(Change{Old: current, New: next, Fields: fields})
			current = next

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
