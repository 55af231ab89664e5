package receiver

import (
	"context"
	"log/slog"
	"time"

	"github.com/herbieproject/herbie-dash/internal/poller"
	"github.com/herbieproject/herbie-dash/internal/render"
	"github.com/herbieproject/herbie-dash/internal/store"
)

const historyTimeout = 5 * time.Second

// Evaluator checks alert rules against a frame.
type Evaluator interface {
	Evaluate(f *poller.Frame)
}

// Appender persists a frame's latest readings.
type Appender interface {
	Append(ctx context.Context, f *poller.Frame) error
}

// Shipper mirrors a frame to an external time-series store.
type Shipper interface {
	Ship(f *poller.Frame)
}

// Receiver implements poller.Renderer.
type Receiver struct {
	store   *store.Store
	alerts  Evaluator
	history Appender
	shipper Shipper
	widgets map[string][]render.MetricSpec
}

// Option configures optional Receiver sinks.
type Option func(*Receiver)

// WithAlerts evaluates alert rules on every frame.
func WithAlerts(e Evaluator) Option { return func(r *Receiver) { r.alerts = e } }

// WithHistory appends fresh readings to the history store.
func WithHistory(a Appender) Option { return func(r *Receiver) { r.history = a } }

// WithShipper mirrors fresh readings to InfluxDB.
func WithShipper(s Shipper) Option { return func(r *Receiver) { r.shipper = s } }

// WithWidgets sets the metric widgets logged per source.
func WithWidgets(w map[string][]render.MetricSpec) Option {
	return func(r *Receiver) { r.widgets = w }
}

// New creates a Receiver that writes every frame to st.
func New(st *store.Store, opts ...Option) *Receiver {
	r := &Receiver{store: st}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render hands f to every configured sink. Sink failures are logged and do
// not stop the remaining sinks.
func (r *Receiver) Render(f *poller.Frame) {
	if f == nil || f.SourceID == "" {
		slog.Warn("receiver: dropping frame without source id")
		return
	}

	r.store.Put(f)

	if r.alerts != nil {
		r.alerts.Evaluate(f)
	}

	if r.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := r.history.Append(ctx, f); err != nil {
			slog.Warn("receiver: history append failed", "source", f.SourceID, "err", err)
		}
		cancel()
	}

	if r.shipper != nil {
		r.shipper.Ship(f)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("receiver: frame rendered",
			"source", f.SourceID,
			"seq", f.Seq,
			"state", f.State,
			"rows", f.Snapshot.Len(),
			"metrics", render.Metrics(f, r.widgets[f.SourceID]),
		)
	}
}
