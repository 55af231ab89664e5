// Package poller drives the fetch, normalize, diff and hand-off cycle for
// one sensor source.
//
// Advance is the pure step: it normalizes a fresh fetch and diffs it against
// the previous snapshot. Poller wraps Advance with a Reader, a Renderer, a
// fixed poll interval and exponential backoff after fetch failures. Each
// configured source gets its own Poller running in its own goroutine; the
// previous snapshot is owned by that goroutine and never shared.
package poller
