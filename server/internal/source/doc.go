// Package source retrieves the metrics document for each refresh cycle.
//
// A Fetcher reads the document from an http(s) URL (with optional apikey,
// bearer or basic auth and TLS options) or from the local filesystem, and
// decodes it into a types.MetricsSnapshot. Any transport, status or decode
// failure is returned as an error; the caller decides whether to fall back.
//
// Exposition scrapes a Prometheus text endpoint exposing tibia_* series and
// overlays them on the application group. CheckCert inspects the TLS leaf
// certificate of an https source.
package source
