package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/herbieproject/herbie-dash/internal/poller"
)

// minEvictEvery bounds how often Run sweeps for expired sources.
const minEvictEvery = time.Second

// Entry is the latest frame of one source plus its poll history summary.
// Entries are replaced, never mutated, so callers may keep them.
type Entry struct {
	Frame *poller.Frame

	// UpdatedAt is when the last frame arrived.
	UpdatedAt time.Time

	// LastGoodAt is when the source last delivered a fresh snapshot. Zero
	// until the first one.
	LastGoodAt time.Time

	// Failures counts unavailable frames since the last fresh snapshot.
	Failures int
}

// Healthy reports whether the latest frame carries fresh data.
func (e *Entry) Healthy() bool {
	return e.Frame.State == poller.StatePolling && !e.Frame.Stale
}

// Store keeps the latest frame per source ID. Sources whose last frame is
// older than the TTL drop out of List and are removed by Run.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	sources map[string]*Entry
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{ttl: ttl, now: time.Now, sources: make(map[string]*Entry)}
}

// TTL returns the configured time-to-live.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put records f as the latest frame of its source and reports whether it
// was accepted. A frame whose Seq is lower than the stored one arrived out
// of order and is dropped. Callers must not modify f after calling Put.
func (s *Store) Put(f *poller.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	next := &Entry{Frame: f, UpdatedAt: now}
	if prev, ok := s.sources[f.SourceID]; ok {
		if f.Seq < prev.Frame.Seq {
			slog.Debug("store: dropping out-of-order frame",
				"source", f.SourceID, "seq", f.Seq, "stored_seq", prev.Frame.Seq)
			return false
		}
		next.LastGoodAt = prev.LastGoodAt
		next.Failures = prev.Failures
	}

	switch {
	case next.Healthy():
		next.LastGoodAt = now
		next.Failures = 0
	case f.State == poller.StateUnavailable:
		next.Failures++
	}
	s.sources[f.SourceID] = next
	return true
}

// Get returns the entry for sourceID, which may have outlived the TTL if
// Evict has not run yet.
func (s *Store) Get(sourceID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sources[sourceID]
	return e, ok
}

// Live reports whether e was updated within the TTL. A TTL of zero keeps
// every source live.
func (s *Store) Live(e *Entry) bool {
	return s.ttl <= 0 || s.now().Sub(e.UpdatedAt) < s.ttl
}

// List returns the live entries ordered by source ID.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0, len(s.sources))
	for _, e := range s.sources {
		if s.Live(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Frame.SourceID < out[j].Frame.SourceID })
	return out
}

// StateCounts returns the number of live sources per poll state.
func (s *Store) StateCounts() map[string]int {
	counts := map[string]int{
		poller.StateAwaiting:    0,
		poller.StatePolling:     0,
		poller.StateUnavailable: 0,
	}
	for _, e := range s.List() {
		counts[e.Frame.State]++
	}
	return counts
}

// Count returns the number of sources held, expired ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sources)
}

// Evict removes sources not updated within the TTL before now and returns
// their IDs.
func (s *Store) Evict(now time.Time) []string {
	if s.ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var gone []string
	for id, e := range s.sources {
		if now.Sub(e.UpdatedAt) >= s.ttl {
			delete(s.sources, id)
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	return gone
}

// Run sweeps expired sources every half TTL until ctx is cancelled. It
// returns at once when the TTL is zero.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	every := max(s.ttl/2, minEvictEvery)
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for _, id := range s.Evict(now) {
				slog.Info("store: source expired", "source", id, "ttl", s.ttl)
			}
		}
	}
}
