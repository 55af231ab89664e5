package render

import (
	"time"

	"github.com/herbieproject/herbie-dash/internal/snapshot"
)

// TableRow is one row of the tail table. Time is nil for rows whose
// timestamp was missing or malformed.
type TableRow struct {
	Index  int                `json:"index"`
	Time   *time.Time         `json:"time"`
	Values map[string]float64 `json:"values"`
}

// Table is the tail view of a snapshot.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
	Total   int        `json:"total"`
}

// TailTable returns the last n rows of snap keyed by column. n <= 0 returns
// every row.
func TailTable(snap *snapshot.Snapshot, n int) Table {
	t := Table{Total: snap.Len()}
	if snap.Empty() {
		t.Columns = []string{}
		t.Rows = []TableRow{}
		return t
	}
	t.Columns = snap.Columns
	for _, r := range snap.Tail(n) {
		row := TableRow{Index: r.Index, Values: make(map[string]float64, len(snap.Columns))}
		if r.HasTime() {
			ts := r.Time
			row.Time = &ts
		}
		for i, col := range snap.Columns {
			row.Values[col] = r.Values[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
