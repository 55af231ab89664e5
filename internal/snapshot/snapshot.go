package snapshot

import (
	"errors"
	"time"
)

// ErrEmptySnapshot is returned when a snapshot has no rows left after the
// retention cutoff, so there is no latest row to display or diff.
var ErrEmptySnapshot = errors.New("snapshot: no rows after retention cutoff")

// maxWarnings bounds Snapshot.Warnings; WarningCount keeps the full total.
const maxWarnings = 100

// Warning kinds recorded during normalization.
const (
	WarnNonNumeric         = "non_numeric"
	WarnMalformedTimestamp = "malformed_timestamp"
)

// Record is one raw source row: field name to raw cell value.
// Values may be string, float64, int, int64, bool, json.Number or nil.
type Record map[string]any

// Raw is the output of one fetch.
//
// Fields fixes the column order the source presented. When empty, the order
// is derived from the records: first-seen across records, keys of each record
// taken in lexical order.
type Raw struct {
	Fields  []string
	Records []Record
}

// Row is one normalized row.
type Row struct {
	// Index is the row's position in the full fetched history, before the
	// retention cutoff was applied.
	Index int `json:"index"`

	// Time is the parsed timestamp. The zero value marks a missing or
	// malformed timestamp.
	Time time.Time `json:"time"`

	// Values holds one finite number per Snapshot column.
	Values []float64 `json:"values"`
}

// HasTime reports whether the row carries a parsed timestamp.
func (r Row) HasTime() bool { return !r.Time.IsZero() }

// CoercionWarning records a cell whose raw value could not be used as-is.
type CoercionWarning struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Kind   string `json:"kind"`
}

// Snapshot is a time-indexed table of numeric sensor channels: one
// fetch-and-normalize result. Snapshots are not modified after Normalize
// returns them.
type Snapshot struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`

	// Warnings holds the first coercion warnings; WarningCount is the total.
	Warnings     []CoercionWarning `json:"warnings,omitempty"`
	WarningCount int               `json:"warning_count"`

	// Filled counts missing cells replaced by zero.
	Filled int `json:"filled"`

	// Fetched is the number of raw rows before the retention cutoff.
	Fetched int `json:"fetched"`
}

// Len returns the number of retained rows.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Empty reports whether the snapshot has no rows.
func (s *Snapshot) Empty() bool { return s.Len() == 0 }

// ColumnIndex returns the position of col, or -1.
func (s *Snapshot) ColumnIndex(col string) int {
	for i, c := range s.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

// Last returns the latest row. ok is false for an empty snapshot.
func (s *Snapshot) Last() (Row, bool) {
	if s.Empty() {
		return Row{}, false
	}
	return s.Rows[len(s.Rows)-1], true
}

// Latest returns the latest row as a column-to-value map, or nil when empty.
func (s *Snapshot) Latest() map[string]float64 {
	last, ok := s.Last()
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(s.Columns))
	for i, c := range s.Columns {
		out[c] = last.Values[i]
	}
	return out
}

// Tail returns the last n rows (all rows when n <= 0 or n exceeds the length).
// The returned slice shares memory with the snapshot and must not be modified.
func (s *Snapshot) Tail(n int) []Row {
	if s == nil {
		return nil
	}
	if n <= 0 || n >= len(s.Rows) {
		return s.Rows
	}
	return s.Rows[len(s.Rows)-n:]
}

// Series returns the values of col across rows, in row order.
func (s *Snapshot) Series(col string, rows []Row) []float64 {
	idx := s.ColumnIndex(col)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Values[idx]
	}
	return out
}
