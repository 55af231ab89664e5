package shipper

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/herbieproject/herbie-dash/internal/poller"
)

const measurement = "sensor_data"

// toPoint converts the latest row of a fresh frame into one point with a
// field per channel. It returns nil for frames that carry no new reading.
func toPoint(f *poller.Frame) *write.Point {
	if f == nil || f.Stale || f.State != poller.StatePolling || f.Snapshot.Empty() {
		return nil
	}
	last, _ := f.Snapshot.Last()

	fields := make(map[string]interface{}, len(f.Snapshot.Columns))
	for i, col := range f.Snapshot.Columns {
		fields[col] = last.Values[i]
	}

	ts := f.PolledAt
	if last.HasTime() {
		ts = last.Time
	}
	return influxdb2.NewPoint(measurement, map[string]string{"source_id": f.SourceID}, fields, ts)
}
