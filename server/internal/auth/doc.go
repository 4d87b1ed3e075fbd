// Package auth provides HTTP API key authentication for the dashboard's REST
// API and WebSocket stream.
//
// APIKeyMiddleware wraps an http.Handler. When mode is "apikey" and a key is
// configured, requests must carry the key in the configured header (or, for
// browser WebSocket clients that cannot set headers, the "api_key" query
// parameter). Otherwise requests pass through unchanged.
package auth
