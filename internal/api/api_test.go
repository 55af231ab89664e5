package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/herbieproject/herbie-dash/internal/alerts"
	"github.com/herbieproject/herbie-dash/internal/api"
	"github.com/herbieproject/herbie-dash/internal/history"
	"github.com/herbieproject/herbie-dash/internal/poller"
	"github.com/herbieproject/herbie-dash/internal/render"
	"github.com/herbieproject/herbie-dash/internal/security"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
	"github.com/herbieproject/herbie-dash/internal/store"
)

// --- test helpers -----------------------------------------------------------

func newStore(frames ...*poller.Frame) *store.Store {
	st := store.New(5 * time.Minute)
	for _, f := range frames {
		st.Put(f)
	}
	return st
}

func herbieSnap(n int, polled time.Time) *snapshot.Snapshot {
	s := &snapshot.Snapshot{Columns: []string{"Light", "Water", "Temp"}, Fetched: n}
	start := polled.Add(-time.Duration(n) * 5 * time.Minute)
	for i := 0; i < n; i++ {
		s.Rows = append(s.Rows, snapshot.Row{
			Index:  i,
			Time:   start.Add(time.Duration(i+1) * 5 * time.Minute),
			Values: []float64{float64(i), 1, 27.5},
		})
	}
	return s
}

func frame(id string, rows int) *poller.Frame {
	now := time.Now()
	return &poller.Frame{
		SourceID: id,
		PolledAt: now,
		State:    poller.StatePolling,
		Snapshot: herbieSnap(rows, now),
		Seq:      1,
	}
}

func withDelta(f *poller.Frame, d *snapshot.Delta) *poller.Frame {
	f.Delta = d
	f.Seq = 2
	return f
}

func unavailable(id string, last *snapshot.Snapshot) *poller.Frame {
	return &poller.Frame{
		SourceID: id,
		PolledAt: time.Now(),
		State:    poller.StateUnavailable,
		Snapshot: last,
		Err:      "source unavailable: csv \"/data/log.csv\": no such file",
		Stale:    true,
		Seq:      3,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

func hasHint(hints []api.DiagnosticHint, key string) bool {
	for _, h := range hints {
		if h.Key == key {
			return true
		}
	}
	return false
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_EmptyStore(t *testing.T) {
	h := api.New(newStore())
	rr := get(t, h, "/api/v1/health")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if resp.State != "unknown" {
		t.Errorf("state: got %q, want unknown", resp.State)
	}
	if resp.SourceCount != 0 {
		t.Errorf("source_count: got %d, want 0", resp.SourceCount)
	}
}

func TestHealth_Degraded(t *testing.T) {
	h := api.New(newStore(
		frame("herbie-a", 3),
		unavailable("herbie-b", nil),
		&poller.Frame{SourceID: "herbie-c", State: poller.StateAwaiting, PolledAt: time.Now()},
	))
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)

	if resp.State != "degraded" {
		t.Errorf("state: got %q, want degraded", resp.State)
	}
	if resp.PollingCount != 1 || resp.UnavailableCount != 1 || resp.AwaitingCount != 1 {
		t.Errorf("counts: got %+v", resp)
	}
}

func TestHealth_Down(t *testing.T) {
	h := api.New(newStore(unavailable("herbie-a", nil)))
	var resp api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &resp)
	if resp.State != "down" {
		t.Errorf("state: got %q, want down", resp.State)
	}
}

// --- /api/v1/sources --------------------------------------------------------

func TestListSources_SortedByID(t *testing.T) {
	h := api.New(newStore(frame("zeta", 2), frame("alpha", 2)))
	rr := get(t, h, "/api/v1/sources")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var list []api.SourceResponse
	decode(t, rr, &list)
	if len(list) != 2 || list[0].SourceID != "alpha" || list[1].SourceID != "zeta" {
		t.Fatalf("sources: got %+v", list)
	}
}

func TestGetSource_Fields(t *testing.T) {
	f := withDelta(frame("herbie", 4), &snapshot.Delta{
		Columns: []string{"Light", "Water", "Temp"},
		Values:  []float64{3, 0, -0.5},
	})
	h := api.New(newStore(f), api.WithSources(map[string]api.SourceInfo{
		"herbie": {Type: "csv", Widgets: []render.MetricSpec{{Channel: "Light", Label: "Lux"}}},
	}))

	rr := get(t, h, "/api/v1/sources/herbie")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var resp api.SourceResponse
	decode(t, rr, &resp)

	if resp.SourceType != "csv" {
		t.Errorf("source_type: got %q", resp.SourceType)
	}
	if resp.Rows != 4 || len(resp.Columns) != 3 {
		t.Errorf("rows/columns: got %d/%v", resp.Rows, resp.Columns)
	}
	if resp.Latest["Light"] != 3 {
		t.Errorf("latest Light: got %v, want 3", resp.Latest["Light"])
	}
	if d := resp.Delta["Temp"]; d == nil || *d != -0.5 {
		t.Errorf("delta Temp: got %v, want -0.5", d)
	}
	if len(resp.Metrics) != 1 || resp.Metrics[0].Label != "Lux" {
		t.Errorf("metrics: got %+v", resp.Metrics)
	}
	if !hasHint(resp.Diagnostics, "healthy") {
		t.Errorf("diagnostics: want healthy, got %+v", resp.Diagnostics)
	}
}

func TestGetSource_NaNDeltaIsNull(t *testing.T) {
	f := withDelta(frame("herbie", 2), &snapshot.Delta{
		Columns: []string{"Light", "Water", "Temp", "Humid"},
		Values:  []float64{1, 0, 0, nan()},
		Missing: []string{"Humid"},
	})
	rr := get(t, api.New(newStore(f)), "/api/v1/sources/herbie")

	var raw map[string]json.RawMessage
	decode(t, rr, &raw)
	if !strings.Contains(string(raw["delta"]), `"Humid":null`) {
		t.Errorf("delta: got %s, want Humid null", raw["delta"])
	}
}

func TestGetSource_FailureStreak(t *testing.T) {
	good := frame("herbie", 3)
	bad := unavailable("herbie", good.Snapshot)
	again := unavailable("herbie", good.Snapshot)
	again.Seq = 4
	rr := get(t, api.New(newStore(good, bad, again)), "/api/v1/sources/herbie")

	var resp api.SourceResponse
	decode(t, rr, &resp)
	if resp.Failures != 2 {
		t.Errorf("consecutive_failures: got %d, want 2", resp.Failures)
	}
	if resp.LastGoodAt == "" {
		t.Error("last_good_at should be set after a fresh frame")
	}
}

func TestGetSource_NotFound(t *testing.T) {
	rr := get(t, api.New(newStore()), "/api/v1/sources/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	var body map[string]string
	decode(t, rr, &body)
	if body["error"] == "" {
		t.Error("expected error message in body")
	}
}

func TestGetSource_UnavailableKeepsLastGood(t *testing.T) {
	last := herbieSnap(3, time.Now())
	h := api.New(newStore(unavailable("herbie", last)))

	var resp api.SourceResponse
	decode(t, get(t, h, "/api/v1/sources/herbie"), &resp)

	if resp.State != poller.StateUnavailable || !resp.Stale {
		t.Errorf("state/stale: got %q/%v", resp.State, resp.Stale)
	}
	if resp.Rows != 3 {
		t.Errorf("rows: got %d, want last good 3", resp.Rows)
	}
	if resp.ErrorMessage == "" {
		t.Error("error_message should be set")
	}
	if !hasHint(resp.Diagnostics, "source_unavailable") || !hasHint(resp.Diagnostics, "showing_last_good") {
		t.Errorf("diagnostics: got %+v", resp.Diagnostics)
	}
}

type fakeCerts map[string]*security.CertStatus

func (f fakeCerts) Status(id string) (*security.CertStatus, bool) {
	cs, ok := f[id]
	return cs, ok
}

func TestGetSource_Cert(t *testing.T) {
	certs := fakeCerts{"herbie": {Endpoint: "https://feed.example.com", Status: security.CertExpired}}
	h := api.New(newStore(frame("herbie", 2)), api.WithCerts(certs))

	var resp api.SourceResponse
	decode(t, get(t, h, "/api/v1/sources/herbie"), &resp)
	if resp.Cert == nil || resp.Cert.Status != security.CertExpired {
		t.Errorf("cert: got %+v", resp.Cert)
	}
	if !hasHint(resp.Diagnostics, "cert_expired") {
		t.Errorf("diagnostics: got %+v", resp.Diagnostics)
	}

	var list []api.SourceResponse
	decode(t, get(t, h, "/api/v1/sources"), &list)
	if list[0].Cert != nil {
		t.Error("list view should not carry certificate detail")
	}
}

// --- table / chart ----------------------------------------------------------

func TestTable_Tail(t *testing.T) {
	h := api.New(newStore(frame("herbie", 10)))
	rr := get(t, h, "/api/v1/sources/herbie/table?tail=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var tbl render.Table
	decode(t, rr, &tbl)
	if tbl.Total != 10 || len(tbl.Rows) != 3 {
		t.Fatalf("table: total %d rows %d", tbl.Total, len(tbl.Rows))
	}
	if tbl.Rows[2].Index != 9 {
		t.Errorf("last row index: got %d, want 9", tbl.Rows[2].Index)
	}
}

func TestTable_BadTail(t *testing.T) {
	h := api.New(newStore(frame("herbie", 2)))
	if rr := get(t, h, "/api/v1/sources/herbie/table?tail=abc"); rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestChart_PNG(t *testing.T) {
	h := api.New(newStore(frame("herbie", 6)))
	rr := get(t, h, "/api/v1/sources/herbie/chart.png")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content-type: got %q", ct)
	}
	if !strings.HasPrefix(rr.Body.String(), "\x89PNG") {
		t.Error("body is not a PNG")
	}
}

func TestChart_NoData(t *testing.T) {
	f := &poller.Frame{SourceID: "herbie", State: poller.StateAwaiting, PolledAt: time.Now()}
	rr := get(t, api.New(newStore(f)), "/api/v1/sources/herbie/chart.png")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- history ----------------------------------------------------------------

type fakeHistory struct {
	gotID    string
	gotLimit int
	err      error
}

func (f *fakeHistory) Query(_ context.Context, id string, _ time.Time, limit int) ([]history.Reading, error) {
	f.gotID, f.gotLimit = id, limit
	if f.err != nil {
		return nil, f.err
	}
	return []history.Reading{{SourceID: id, Channel: "Light", Value: 5}}, nil
}

func TestHistory_Disabled(t *testing.T) {
	rr := get(t, api.New(newStore()), "/api/v1/sources/herbie/history")
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", rr.Code)
	}
}

func TestHistory_Query(t *testing.T) {
	fh := &fakeHistory{}
	h := api.New(newStore(), api.WithHistory(fh))
	rr := get(t, h, "/api/v1/sources/herbie/history?since=2024-03-01T00:00:00Z&limit=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var readings []history.Reading
	decode(t, rr, &readings)
	if len(readings) != 1 || fh.gotID != "herbie" || fh.gotLimit != 5 {
		t.Errorf("query: id %q limit %d readings %+v", fh.gotID, fh.gotLimit, readings)
	}
}

func TestHistory_BadSince(t *testing.T) {
	h := api.New(newStore(), api.WithHistory(&fakeHistory{}))
	if rr := get(t, h, "/api/v1/sources/herbie/history?since=yesterday"); rr.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rr.Code)
	}
}

func TestHistory_Error(t *testing.T) {
	h := api.New(newStore(), api.WithHistory(&fakeHistory{err: errors.New("disk full")}))
	if rr := get(t, h, "/api/v1/sources/herbie/history"); rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
}

// --- alerts / snapshot ------------------------------------------------------

type fakeAlerts []*alerts.Alert

func (f fakeAlerts) Active() []*alerts.Alert { return f }

func TestAlerts_Empty(t *testing.T) {
	rr := get(t, api.New(newStore()), "/api/v1/alerts")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("body: got %s, want []", rr.Body.String())
	}
}

func TestAlerts_CountedInHealth(t *testing.T) {
	al := fakeAlerts{
		{ID: "1", RuleName: "dry soil", State: alerts.StateFiring},
		{ID: "2", RuleName: "hot", State: alerts.StateResolved},
	}
	h := api.New(newStore(frame("herbie", 1)), api.WithAlerts(al))

	var list []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts"), &list)
	if len(list) != 2 {
		t.Errorf("alerts: got %d, want 2", len(list))
	}
	var health api.HealthResponse
	decode(t, get(t, h, "/api/v1/health"), &health)
	if health.AlertCount != 1 {
		t.Errorf("alert_count: got %d, want 1", health.AlertCount)
	}
}

func TestSnapshot(t *testing.T) {
	h := api.New(newStore(frame("a", 1), frame("b", 2)))
	var resp api.SnapshotResponse
	decode(t, get(t, h, "/api/v1/snapshot"), &resp)
	if len(resp.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2", len(resp.Sources))
	}
	if _, err := time.Parse(time.RFC3339, resp.GeneratedAt); err != nil {
		t.Errorf("generated_at: %v", err)
	}
}

func TestUnknownRoute(t *testing.T) {
	rr := get(t, api.New(newStore()), "/api/v1/nope")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	for _, path := range []string{"/api/v1/health", "/api/v1/sources/herbie/chart.png"} {
		rr := httptest.NewRecorder()
		api.New(newStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: status got %d, want 405", path, rr.Code)
			continue
		}
		var body struct {
			Error string `json:"error"`
		}
		decode(t, rr, &body)
		if body.Error != "method not allowed" {
			t.Errorf("POST %s: error got %q", path, body.Error)
		}
	}
}

func TestUnknownAPIPath_JSON404(t *testing.T) {
	rr := get(t, api.New(newStore()), "/api/v1/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content-type: got %q", ct)
	}
}

func TestChart_DuplicateTimestamps(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := &snapshot.Snapshot{
		Columns: []string{"Light", "Water"},
		Rows: []snapshot.Row{
			{Index: 0, Time: at, Values: []float64{120, 30}},
			{Index: 1, Time: at, Values: []float64{125, 31}},
		},
	}
	f := &poller.Frame{SourceID: "herbie", State: poller.StatePolling, Snapshot: snap, PolledAt: time.Now()}
	rr := get(t, api.New(newStore(f)), "/api/v1/sources/herbie/chart.png")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
}

func nan() float64 { return math.NaN() }
