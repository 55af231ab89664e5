package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/herbieproject/herbie-dash/internal/alerts"
	"github.com/herbieproject/herbie-dash/internal/history"
	"github.com/herbieproject/herbie-dash/internal/poller"
	"github.com/herbieproject/herbie-dash/internal/render"
	"github.com/herbieproject/herbie-dash/internal/security"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
	"github.com/herbieproject/herbie-dash/internal/store"
)

const defaultTableTail = 50

// AlertLister returns the alerts to show on the dashboard.
type AlertLister interface {
	Active() []*alerts.Alert
}

// HistoryQuerier answers range queries over stored readings.
type HistoryQuerier interface {
	Query(ctx context.Context, sourceID string, since time.Time, limit int) ([]history.Reading, error)
}

// CertLookup returns the latest certificate check for a source.
type CertLookup interface {
	Status(sourceID string) (*security.CertStatus, bool)
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads source state from the frame store and returns JSON responses.
type Handler struct {
	store   *store.Store
	sources map[string]SourceInfo
	alerts  AlertLister
	history HistoryQuerier
	certs   CertLookup
	router  *mux.Router
}

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithSources sets per-source chart and widget configuration.
func WithSources(s map[string]SourceInfo) Option { return func(h *Handler) { h.sources = s } }

// WithAlerts serves alerts from the given engine.
func WithAlerts(a AlertLister) Option { return func(h *Handler) { h.alerts = a } }

// WithHistory enables the history endpoint.
func WithHistory(q HistoryQuerier) Option { return func(h *Handler) { h.history = q } }

// WithCerts adds certificate status to single-source responses.
func WithCerts(c CertLookup) Option { return func(h *Handler) { h.certs = c } }

// New creates a Handler wired to the given frame store and registers all routes.
func New(st *store.Store, opts ...Option) *Handler {
	h := &Handler{store: st, sources: map[string]SourceInfo{}, router: mux.NewRouter()}
	for _, o := range opts {
		o(h)
	}

	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	notAllowed := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r := h.router
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notAllowed

	// Subrouters resolve misses themselves; without their own handlers a
	// wrong method under /api/v1 surfaces as a plain 404.
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.NotFoundHandler = notFound
	v1.MethodNotAllowedHandler = notAllowed
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/sources", h.listSources).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{id}", h.getSource).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{id}/table", h.table).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{id}/chart.png", h.chart).Methods(http.MethodGet)
	v1.HandleFunc("/sources/{id}/history", h.historyRange).Methods(http.MethodGet)
	v1.HandleFunc("/alerts", h.listAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot", h.snapshot).Methods(http.MethodGet)

	return h
}

// Router exposes the underlying router so callers can mount extra routes
// (WebSocket stream, /metrics) next to the API.
func (h *Handler) Router() *mux.Router { return h.router }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: overall state and per-state counts.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	counts := h.store.StateCounts()
	resp := HealthResponse{
		PollingCount:     counts[poller.StatePolling],
		AwaitingCount:    counts[poller.StateAwaiting],
		UnavailableCount: counts[poller.StateUnavailable],
	}
	for _, n := range counts {
		resp.SourceCount += n
	}
	if h.alerts != nil {
		for _, a := range h.alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	switch {
	case resp.SourceCount == 0:
		resp.State = "unknown"
	case resp.UnavailableCount == resp.SourceCount:
		resp.State = "down"
	case resp.UnavailableCount > 0:
		resp.State = "degraded"
	default:
		resp.State = "ok"
	}
	jsonResp(w, http.StatusOK, resp)
}

// listSources returns GET /api/v1/sources: all live sources.
func (h *Handler) listSources(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.sources).Sources)
}

// getSource returns GET /api/v1/sources/{id}: a single live source.
func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	e, ok := h.liveEntry(w, r)
	if !ok {
		return
	}
	id := e.Frame.SourceID
	var cert *security.CertStatus
	if h.certs != nil {
		cert, _ = h.certs.Status(id)
	}
	jsonResp(w, http.StatusOK, toSourceResponse(e, h.sources[id], cert, true))
}

// table returns GET /api/v1/sources/{id}/table?tail=N.
func (h *Handler) table(w http.ResponseWriter, r *http.Request) {
	e, ok := h.liveEntry(w, r)
	if !ok {
		return
	}
	tail, ok := intParam(w, r, "tail", defaultTableTail)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, render.TailTable(e.Frame.Snapshot, tail))
}

// chart returns GET /api/v1/sources/{id}/chart.png?tail=N as image/png.
func (h *Handler) chart(w http.ResponseWriter, r *http.Request) {
	e, ok := h.liveEntry(w, r)
	if !ok {
		return
	}
	opts := h.sources[e.Frame.SourceID].Chart
	if opts.Title == "" {
		opts.Title = e.Frame.SourceID
	}
	tail, ok := intParam(w, r, "tail", opts.Tail)
	if !ok {
		return
	}
	opts.Tail = tail

	var buf bytes.Buffer
	err := render.Chart(e.Frame.Snapshot, opts, &buf)
	switch {
	case errors.Is(err, snapshot.ErrEmptySnapshot), errors.Is(err, render.ErrNoChartData):
		jsonErr(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// historyRange returns GET /api/v1/sources/{id}/history?since=RFC3339&limit=N.
func (h *Handler) historyRange(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		jsonErr(w, http.StatusNotImplemented, "history storage is disabled")
		return
	}
	id := mux.Vars(r)["id"]

	var since time.Time
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = t
	}
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}

	readings, err := h.history.Query(r.Context(), id, since, limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, readings)
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot: full JSON dump of all live sources.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store, h.sources))
}

// --- helpers ----------------------------------------------------------------

// liveEntry looks up {id}, writing a 404 when the source is unknown or its
// entry has outlived the TTL.
func (h *Handler) liveEntry(w http.ResponseWriter, r *http.Request) (*store.Entry, bool) {
	e, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok || !h.store.Live(e) {
		jsonErr(w, http.StatusNotFound, "source not found")
		return nil, false
	}
	return e, true
}

// intParam parses a non-negative integer query parameter, writing a 400 on
// malformed input.
func intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		jsonErr(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
