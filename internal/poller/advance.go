package poller

import (
	"github.com/herbieproject/herbie-dash/internal/config"
	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// Advance normalizes raw and diffs it against previous.
//
// It returns snapshot.ErrEmptySnapshot, together with the empty snapshot,
// when nothing survives the retention cutoff. delta is nil when previous is
// nil.
func Advance(previous *snapshot.Snapshot, raw snapshot.Raw, opts snapshot.Options) (*snapshot.Snapshot, *snapshot.Delta, error) {
	cur := snapshot.Normalize(raw, opts)
	if cur.Empty() {
		return cur, nil, snapshot.ErrEmptySnapshot
	}
	if previous.Empty() {
		return cur, nil, nil
	}
	delta, err := snapshot.ComputeDelta(previous, cur)
	if err != nil {
		return cur, nil, err
	}
	return cur, delta, nil
}

// NormalizeOptions converts a source's normalize block into snapshot options.
func NormalizeOptions(n config.NormalizeConfig) snapshot.Options {
	return snapshot.Options{
		TimeField:       n.TimeField,
		Rename:          n.Rename,
		DropColumns:     n.DropColumns,
		SkipBeforeIndex: n.SkipBeforeIndex,
		TimeLayouts:     n.TimeLayouts,
		Location:        n.Location(),
	}
}
