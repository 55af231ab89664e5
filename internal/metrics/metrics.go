package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/herbieproject/herbie-dash/internal/poller"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

const namespace = "herbie_dash"

// Metrics holds the collectors. It implements poller.Observer.
type Metrics struct {
	reg *prometheus.Registry

	polls         *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec
	rows          *prometheus.GaugeVec
	warnings      *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by source and result (ok, empty, unavailable).",
		}, []string{"source", "result"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent fetching and normalizing one poll.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"source"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      "Rows retained in the latest snapshot after the retention cutoff.",
		}, []string{"source"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coercion_warnings_total",
			Help:      "Cells that could not be used as-is during normalization.",
		}, []string{"source"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Fetches that failed with the source unavailable.",
		}, []string{"source"}),
	}
	m.reg.MustRegister(
		m.polls, m.pollDuration, m.rows, m.warnings, m.fetchFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePoll records one poll outcome.
func (m *Metrics) ObservePoll(sourceID, result string, elapsed time.Duration) {
	m.polls.WithLabelValues(sourceID, result).Inc()
	m.pollDuration.WithLabelValues(sourceID).Observe(elapsed.Seconds())
	if result == poller.ResultUnavailable {
		m.fetchFailures.WithLabelValues(sourceID).Inc()
	}
}

// ObserveSnapshot records the size and warning count of a fresh snapshot.
func (m *Metrics) ObserveSnapshot(sourceID string, snap *snapshot.Snapshot) {
	m.rows.WithLabelValues(sourceID).Set(float64(snap.Len()))
	if snap != nil && snap.WarningCount > 0 {
		m.warnings.WithLabelValues(sourceID).Add(float64(snap.WarningCount))
	}
}

// WatchWSClients registers a gauge reading the live WebSocket client count.
func (m *Metrics) WatchWSClients(count func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_clients",
		Help:      "Connected WebSocket clients.",
	}, func() float64 { return float64(count()) }))
}

// WatchShipperPending registers a gauge reading the InfluxDB buffer depth.
func (m *Metrics) WatchShipperPending(pending func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "influx_pending_points",
		Help:      "Points buffered for the InfluxDB mirror.",
	}, func() float64 { return float64(pending()) }))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
