package render

import (
	"github.com/herbieproject/herbie-dash/internal/poller"
)

// MetricSpec selects one channel for a value/delta widget.
type MetricSpec struct {
	Channel string
	Label   string
}

// Metric is one rendered widget: the latest value and its change since the
// previous poll. Delta is nil on the first snapshot, on unavailable frames
// and when the channel is missing from the previous snapshot.
type Metric struct {
	Label   string   `json:"label"`
	Channel string   `json:"channel"`
	Value   float64  `json:"value"`
	Delta   *float64 `json:"delta"`
}

// Metrics builds widgets for specs. With no specs every column gets a widget
// labelled by its channel name. Channels absent from the snapshot are
// skipped.
func Metrics(f *poller.Frame, specs []MetricSpec) []Metric {
	if f == nil || f.Snapshot.Empty() {
		return nil
	}
	if len(specs) == 0 {
		for _, col := range f.Snapshot.Columns {
			specs = append(specs, MetricSpec{Channel: col})
		}
	}

	last, _ := f.Snapshot.Last()
	out := make([]Metric, 0, len(specs))
	for _, spec := range specs {
		i := f.Snapshot.ColumnIndex(spec.Channel)
		if i < 0 {
			continue
		}
		m := Metric{
			Label:   spec.Label,
			Channel: spec.Channel,
			Value:   last.Values[i],
		}
		if m.Label == "" {
			m.Label = spec.Channel
		}
		if d, ok := f.Delta.Value(spec.Channel); ok {
			m.Delta = &d
		}
		out = append(out, m)
	}
	return out
}
