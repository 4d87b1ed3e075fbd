package api

import (
	"github.com/tibiaops/opsdash/server/internal/source"
	"github.com/tibiaops/opsdash/server/internal/store"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "ok" when the last cycle rendered remote data, "degraded" when
	// it fell back to sample data or aborted, "unknown" before the first cycle.
	State        string             `json:"state"`
	LastCycle    *store.Cycle       `json:"last_cycle,omitempty"`
	CycleCount   int                `json:"cycle_count"`
	RemoteTotal  uint64             `json:"remote_total"`
	SampleTotal  uint64             `json:"sample_total"`
	AbortedTotal uint64             `json:"aborted_total"`
	LastRefresh  string             `json:"last_refresh,omitempty"` // RFC3339
	Cert         *source.CertStatus `json:"cert,omitempty"`
}

// HistoryResponse is the payload for GET /api/v1/history.
type HistoryResponse struct {
	Cycles      []store.Cycle `json:"cycles"`
	GeneratedAt string        `json:"generated_at"` // RFC3339
}

// RefreshResponse is the payload for POST /api/v1/refresh.
type RefreshResponse struct {
	Status string `json:"status"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
