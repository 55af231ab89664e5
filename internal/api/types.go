package api

import (
	"github.com/herbieproject/herbie-dash/internal/render"
	"github.com/herbieproject/herbie-dash/internal/security"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State            string `json:"state"`
	SourceCount      int    `json:"source_count"`
	PollingCount     int    `json:"polling_count"`
	AwaitingCount    int    `json:"awaiting_count"`
	UnavailableCount int    `json:"unavailable_count"`
	AlertCount       int    `json:"alert_count"`
}

// SourceResponse is one source entry in GET /api/v1/sources or
// GET /api/v1/sources/{id}.
type SourceResponse struct {
	SourceID     string                     `json:"source_id"`
	SourceType   string                     `json:"source_type,omitempty"`
	State        string                     `json:"state"`
	Seq          uint64                     `json:"seq"`
	PolledAt     string                     `json:"polled_at"` // RFC3339
	LastSeen     string                     `json:"last_seen"` // RFC3339
	LastGoodAt   string                     `json:"last_good_at,omitempty"`
	Failures     int                        `json:"consecutive_failures"`
	Stale        bool                       `json:"stale"`
	ErrorMessage string                     `json:"error_message,omitempty"`
	Columns      []string                   `json:"columns"`
	Rows         int                        `json:"rows"`
	Fetched      int                        `json:"fetched"`
	Filled       int                        `json:"filled"`
	LatestTime   string                     `json:"latest_time,omitempty"`
	Latest       map[string]float64         `json:"latest"`
	Delta        map[string]*float64        `json:"delta"`
	MissingDelta []string                   `json:"missing_delta,omitempty"`
	WarningCount int                        `json:"warning_count"`
	Warnings     []snapshot.CoercionWarning `json:"warnings,omitempty"`
	Metrics      []render.Metric            `json:"metrics"`
	Cert         *security.CertStatus       `json:"cert,omitempty"`
	Diagnostics  []DiagnosticHint           `json:"diagnostics"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Sources     []SourceResponse `json:"sources"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// SourceInfo is the static per-source configuration the API needs to render
// charts and widgets.
type SourceInfo struct {
	Type    string
	Chart   render.ChartOptions
	Widgets []render.MetricSpec
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
