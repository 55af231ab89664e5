package poller

import (
	"time"

	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// Poll loop states as reported in a Frame.
const (
	StateAwaiting    = "awaiting"
	StatePolling     = "polling"
	StateUnavailable = "unavailable"
)

// Frame is what one poll hands to the rendering side.
type Frame struct {
	SourceID string
	PolledAt time.Time
	State    string

	// Snapshot is the current snapshot, or the last good one when the
	// source is unavailable. Nil before the first successful poll.
	Snapshot *snapshot.Snapshot

	// Delta is nil on the first snapshot and on unavailable frames.
	Delta *snapshot.Delta

	// Err is the message of the fetch failure that produced this frame.
	Err string

	// Stale marks a frame whose Snapshot was not refreshed by this poll.
	Stale bool

	// Seq increases by one for every frame a Poller publishes.
	Seq uint64
}

// Renderer receives every published frame. Render must not retain the
// frame's Snapshot for mutation; snapshots are shared read-only.
type Renderer interface {
	Render(f *Frame)
}

// RendererFunc adapts a plain function to Renderer.
type RendererFunc func(f *Frame)

func (fn RendererFunc) Render(f *Frame) { fn(f) }
