// Package api implements the HTTP surface of the dashboard.
//
// New(deps) returns an http.Handler that serves:
//
//	GET  /                  the dashboard page (cards, chart mounts, app tiles)
//	GET  /api/v1/dashboard  current view: cards, chart configs, tiles, origin
//	GET  /api/v1/health     last refresh cycle, counters, source cert status
//	GET  /api/v1/history    refresh cycles within the history TTL
//	GET  /api/v1/alerts     firing and recently resolved alerts
//	POST /api/v1/refresh    start a refresh cycle now (202)
//	GET  /metrics           the service's own counters, Prometheus text format
//
// All JSON endpoints respond with Content-Type: application/json and return
// 405 for methods they do not serve. JSON types are defined in types.go.
package api
