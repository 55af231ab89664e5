package snapshot

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// defaultTimeLayouts are tried, in order, after any configured layouts.
var defaultTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"1/2/2006 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// Options controls Normalize.
type Options struct {
	// TimeField is the field (after renaming) parsed into the row timestamp.
	TimeField string

	// Rename maps raw field names to canonical names. Unknown keys are ignored.
	Rename map[string]string

	// DropColumns are removed when present.
	DropColumns []string

	// SkipBeforeIndex discards the first rows when the history is longer.
	SkipBeforeIndex int

	// TimeLayouts are tried before the built-in layouts.
	TimeLayouts []string

	// Location is used for layouts without a zone offset. Nil means UTC.
	Location *time.Location
}

// Normalize turns raw source rows into a Snapshot. It never fails: missing
// cells become zero, unparseable cells become zero with a CoercionWarning,
// and malformed timestamps become the zero-time marker with a warning.
//
// Row order is preserved exactly. Duplicate or out-of-order timestamps are
// kept as they arrived.
func Normalize(raw Raw, opts Options) *Snapshot {
	fields := raw.Fields
	if len(fields) == 0 {
		fields = deriveFields(raw.Records)
	}

	// Rename, collapsing fields that map onto the same name. The first
	// occurrence fixes the column position.
	type source struct {
		canonical string
		raw       []string
	}
	var order []*source
	byName := make(map[string]*source)
	for _, f := range fields {
		name := f
		if to, ok := opts.Rename[f]; ok && to != "" {
			name = to
		}
		s, ok := byName[name]
		if !ok {
			s = &source{canonical: name}
			byName[name] = s
			order = append(order, s)
		}
		s.raw = append(s.raw, f)
	}

	drop := make(map[string]bool, len(opts.DropColumns))
	for _, c := range opts.DropColumns {
		drop[c] = true
	}

	var timeSrc *source
	var cols []*source
	for _, s := range order {
		switch {
		case opts.TimeField != "" && s.canonical == opts.TimeField:
			timeSrc = s
		case drop[s.canonical]:
		default:
			cols = append(cols, s)
		}
	}

	out := &Snapshot{
		Columns: make([]string, len(cols)),
		Fetched: len(raw.Records),
	}
	for i, c := range cols {
		out.Columns[i] = c.canonical
	}

	// Every step is per-row, so applying the positional cutoff first gives
	// the same table and keeps warnings limited to retained rows.
	// A negative cutoff keeps everything.
	start := 0
	if opts.SkipBeforeIndex > 0 && len(raw.Records) > opts.SkipBeforeIndex {
		start = opts.SkipBeforeIndex
	}

	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	layouts := append(append([]string(nil), opts.TimeLayouts...), defaultTimeLayouts...)

	out.Rows = make([]Row, 0, len(raw.Records)-start)
	for i := start; i < len(raw.Records); i++ {
		rec := raw.Records[i]
		row := Row{Index: i, Values: make([]float64, len(cols))}

		if timeSrc != nil {
			v := lookup(rec, timeSrc.raw)
			ts, ok := parseTime(v, layouts, loc)
			if ok {
				row.Time = ts
			} else {
				out.warn(CoercionWarning{Row: i, Column: timeSrc.canonical, Value: cellString(v), Kind: WarnMalformedTimestamp})
			}
		} else if opts.TimeField != "" {
			out.warn(CoercionWarning{Row: i, Column: opts.TimeField, Kind: WarnMalformedTimestamp})
		}

		for j, c := range cols {
			v := lookup(rec, c.raw)
			if isMissing(v) {
				out.Filled++
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				out.warn(CoercionWarning{Row: i, Column: c.canonical, Value: cellString(v), Kind: WarnNonNumeric})
				continue
			}
			row.Values[j] = f
		}
		out.Rows = append(out.Rows, row)
	}

	return out
}

func (s *Snapshot) warn(w CoercionWarning) {
	s.WarningCount++
	if len(s.Warnings) < maxWarnings {
		s.Warnings = append(s.Warnings, w)
	}
}

// deriveFields returns the union of record keys in first-seen order.
func deriveFields(recs []Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range recs {
		keys := make([]string, 0, len(r))
		for k := range r {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// lookup returns the value of the last non-missing raw field feeding a
// canonical column.
func lookup(rec Record, names []string) any {
	var v any
	for _, n := range names {
		if cur, ok := rec[n]; ok && !isMissing(cur) {
			v = cur
		}
	}
	return v
}

func isMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case json.Number:
		return strings.TrimSpace(string(t)) == ""
	}
	return false
}

// toFloat converts a raw cell to a finite float64.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case bool:
		if t {
			f = 1
		}
	case json.Number:
		p, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseTime(v any, layouts []string, loc *time.Location) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case nil:
		return time.Time{}, false
	}
	s := strings.TrimSpace(cellString(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return string(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
