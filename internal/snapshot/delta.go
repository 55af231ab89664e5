package snapshot

import "math"

// Delta is the per-channel change of the latest row between two polls.
//
// A column present in only one of the two snapshots gets NaN and is listed
// in Missing; callers that serialize deltas must handle NaN.
type Delta struct {
	Columns []string
	Values  []float64
	Missing []string
}

// ComputeDelta returns current.last - previous.last for every channel.
//
// Columns follow current's order, then any columns only previous has.
// Both snapshots must be non-empty; otherwise ErrEmptySnapshot is returned.
func ComputeDelta(previous, current *Snapshot) (*Delta, error) {
	prevLast, ok := previous.Last()
	if !ok {
		return nil, ErrEmptySnapshot
	}
	curLast, ok := current.Last()
	if !ok {
		return nil, ErrEmptySnapshot
	}

	d := &Delta{}
	for i, col := range current.Columns {
		d.Columns = append(d.Columns, col)
		j := previous.ColumnIndex(col)
		if j < 0 {
			d.Values = append(d.Values, math.NaN())
			d.Missing = append(d.Missing, col)
			continue
		}
		d.Values = append(d.Values, curLast.Values[i]-prevLast.Values[j])
	}
	for _, col := range previous.Columns {
		if current.ColumnIndex(col) >= 0 {
			continue
		}
		d.Columns = append(d.Columns, col)
		d.Values = append(d.Values, math.NaN())
		d.Missing = append(d.Missing, col)
	}
	return d, nil
}

// Value returns the delta for col. ok is false when the column is unknown
// or missing on one side.
func (d *Delta) Value(col string) (float64, bool) {
	if d == nil {
		return 0, false
	}
	for i, c := range d.Columns {
		if c == col {
			v := d.Values[i]
			return v, !math.IsNaN(v)
		}
	}
	return 0, false
}

// Map returns the deltas of columns present on both sides.
func (d *Delta) Map() map[string]float64 {
	if d == nil {
		return nil
	}
	out := make(map[string]float64, len(d.Columns))
	for i, c := range d.Columns {
		if !math.IsNaN(d.Values[i]) {
			out[c] = d.Values[i]
		}
	}
	return out
}
