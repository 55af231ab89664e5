package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/herbieproject/herbie-dash/internal/backoff"
	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
	"github.com/herbieproject/herbie-dash/internal/source"
)

// Poll results reported to an Observer.
const (
	ResultOK          = "ok"
	ResultEmpty       = "empty"
	ResultUnavailable = "unavailable"
)

// Observer receives per-poll measurements. Implementations must be safe for
// concurrent use by several pollers.
type Observer interface {
	ObservePoll(sourceID, result string, elapsed time.Duration)
	ObserveSnapshot(sourceID string, snap *snapshot.Snapshot)
}

// Settings configures a Poller.
type Settings struct {
	Interval     time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	Normalize    snapshot.Options

	// Observer is optional.
	Observer Observer
}

// SettingsFor builds Settings for one configured source.
func SettingsFor(dash config.DashboardConfig, src config.Source) Settings {
	return Settings{
		Interval:     dash.PollInterval,
		RetryInitial: dash.RetryInitial,
		RetryMax:     dash.RetryMax,
		Normalize:    NormalizeOptions(src.Normalize),
	}
}

// Poller polls one source and publishes a Frame per poll.
//
// Poll and Run must be called from a single goroutine. SetOptions and
// SetInterval are safe to call from any goroutine.
type Poller struct {
	id       string
	reader   source.Reader
	renderer Renderer
	observer Observer

	opts     atomic.Pointer[snapshot.Options]
	interval atomic.Int64

	backoff *backoff.Backoff
	now     func() time.Time

	state    string
	previous *snapshot.Snapshot
	seq      uint64
}

// New returns a Poller in the awaiting state.
func New(id string, reader source.Reader, renderer Renderer, s Settings) *Poller {
	if s.RetryInitial <= 0 {
		s.RetryInitial = config.DefaultRetryInitial
	}
	if s.RetryMax <= 0 {
		s.RetryMax = config.DefaultRetryMax
	}
	p := &Poller{
		id:       id,
		reader:   reader,
		renderer: renderer,
		observer: s.Observer,
		backoff:  backoff.New(s.RetryInitial, s.RetryMax),
		now:      time.Now,
		state:    StateAwaiting,
	}
	p.SetOptions(s.Normalize)
	p.SetInterval(s.Interval)
	return p
}

// ID returns the source ID this poller drives.
func (p *Poller) ID() string { return p.id }

// State returns awaiting until the first non-empty snapshot, polling after.
func (p *Poller) State() string { return p.state }

// SetOptions replaces the normalize options used from the next poll on.
func (p *Poller) SetOptions(opts snapshot.Options) {
	p.opts.Store(&opts)
}

// SetInterval replaces the poll interval used from the next wait on.
func (p *Poller) SetInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.interval.Store(int64(d))
}

// Poll runs one fetch, normalize, diff and hand-off cycle.
//
// It returns the published frame, or nil when nothing was published: the
// snapshot was empty, or ctx was cancelled during the fetch.
func (p *Poller) Poll(ctx context.Context) *Frame {
	start := p.now()

	raw, err := p.reader.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		p.observe(ResultUnavailable, start)
		slog.Warn("poller: fetch failed", "source", p.id, "err", err)

		f := p.frame(StateUnavailable, start)
		f.Snapshot = p.previous
		f.Err = err.Error()
		f.Stale = p.previous != nil
		p.renderer.Render(f)
		return f
	}

	cur, delta, err := Advance(p.previous, raw, *p.opts.Load())
	if errors.Is(err, snapshot.ErrEmptySnapshot) {
		p.observe(ResultEmpty, start)
		slog.Warn("poller: empty snapshot, keeping previous",
			"source", p.id, "fetched", cur.Fetched)
		return nil
	}
	if err != nil {
		// ComputeDelta only fails on empty input, which Advance rules out.
		slog.Error("poller: advance failed", "source", p.id, "err", err)
		return nil
	}

	p.observe(ResultOK, start)
	if p.observer != nil {
		p.observer.ObserveSnapshot(p.id, cur)
	}
	if cur.WarningCount > 0 {
		slog.Debug("poller: coercion warnings",
			"source", p.id, "count", cur.WarningCount, "first", cur.Warnings[0])
	}

	p.previous = cur
	p.state = StatePolling

	f := p.frame(StatePolling, start)
	f.Snapshot = cur
	f.Delta = delta
	p.renderer.Render(f)
	return f
}

// Run polls until ctx is cancelled. After a successful or empty poll it waits
// the poll interval; after a fetch failure it waits the next backoff step.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("poller: started", "source", p.id, "interval", time.Duration(p.interval.Load()))
	for {
		f := p.Poll(ctx)
		if ctx.Err() != nil {
			slog.Info("poller: stopped", "source", p.id)
			return
		}

		wait := time.Duration(p.interval.Load())
		if f != nil && f.State == StateUnavailable {
			wait = p.backoff.Next()
			slog.Debug("poller: backing off", "source", p.id, "wait", wait)
		} else {
			p.backoff.Reset()
		}

		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("poller: stopped", "source", p.id)
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) frame(state string, at time.Time) *Frame {
	p.seq++
	return &Frame{
		SourceID: p.id,
		PolledAt: at.UTC(),
		State:    state,
		Seq:      p.seq,
	}
}

func (p *Poller) observe(result string, start time.Time) {
	if p.observer == nil {
		return
	}
	p.observer.ObservePoll(p.id, result, p.now().Sub(start))
}
