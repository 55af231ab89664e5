// Package backoff implements truncated exponential backoff with jitter, used
// by the poll loop after a fetch failure and by the InfluxDB shipper after a
// failed write.
package backoff

import (
	"math/rand"
	"time"
)

const multiplier = 2.0

// Backoff yields growing waits from Initial up to Max, each with +-25% jitter.
// It is not safe for concurrent use; each loop owns its own Backoff.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// New returns a Backoff starting at initial and capped at max.
func New(initial, max time.Duration) *Backoff {
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, current: initial}
}

// Next returns the current backoff duration and advances the internal state.
func (b *Backoff) Next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * multiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the backoff to its initial duration.
func (b *Backoff) Reset() {
	b.current = b.initial
}
