package api

import (
	"math"
	"time"

	"github.com/herbieproject/herbie-dash/internal/render"
	"github.com/herbieproject/herbie-dash/internal/security"
	"github.com/herbieproject/herbie-dash/internal/store"
)

// BuildSnapshot returns the full document for every live source.
// Shared by GET /api/v1/snapshot and the WebSocket hub.
func BuildSnapshot(st *store.Store, sources map[string]SourceInfo) SnapshotResponse {
	entries := st.List()
	out := make([]SourceResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSourceResponse(e, sources[e.Frame.SourceID], nil, false))
	}
	return SnapshotResponse{
		Sources:     out,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// toSourceResponse maps a store.Entry to its JSON representation. Warnings
// are included only when detail is set. cert may be nil.
func toSourceResponse(e *store.Entry, info SourceInfo, cert *security.CertStatus, detail bool) SourceResponse {
	f := e.Frame
	resp := SourceResponse{
		SourceID:     f.SourceID,
		SourceType:   info.Type,
		State:        f.State,
		Seq:          f.Seq,
		PolledAt:     f.PolledAt.UTC().Format(time.RFC3339),
		LastSeen:     e.UpdatedAt.UTC().Format(time.RFC3339),
		Failures:     e.Failures,
		Stale:        f.Stale,
		ErrorMessage: f.Err,
		Columns:      []string{},
		Latest:       map[string]float64{},
		Delta:        map[string]*float64{},
		Metrics:      render.Metrics(f, info.Widgets),
		Cert:         cert,
		Diagnostics:  computeDiagnostics(f, cert),
	}
	if !e.LastGoodAt.IsZero() {
		resp.LastGoodAt = e.LastGoodAt.UTC().Format(time.RFC3339)
	}
	if resp.Metrics == nil {
		resp.Metrics = []render.Metric{}
	}

	snap := f.Snapshot
	if snap.Empty() {
		return resp
	}
	resp.Columns = snap.Columns
	resp.Rows = snap.Len()
	resp.Fetched = snap.Fetched
	resp.Filled = snap.Filled
	resp.WarningCount = snap.WarningCount
	resp.Latest = snap.Latest()
	if last, _ := snap.Last(); last.HasTime() {
		resp.LatestTime = last.Time.UTC().Format(time.RFC3339)
	}
	if detail {
		resp.Warnings = snap.Warnings
	}

	if f.Delta != nil {
		for i, col := range f.Delta.Columns {
			v := f.Delta.Values[i]
			if math.IsNaN(v) {
				resp.Delta[col] = nil
				continue
			}
			resp.Delta[col] = &v
		}
		resp.MissingDelta = f.Delta.Missing
	}
	return resp
}
