// Package snapshot turns raw sensor-log rows into a time-indexed numeric
// table and diffs the latest rows of two polls.
//
// normalize.go provides the pure Normalize(Raw, Options) function: rename
// fields, parse the time field into the row index, drop identifier columns,
// apply the retention cutoff, fill missing cells with zero and coerce every
// cell to a finite float64. It never returns an error; every lossy step that
// touched real data is reported as a CoercionWarning on the Snapshot.
//
// delta.go provides ComputeDelta(previous, current), the elementwise
// difference of the two last rows. Columns that exist on only one side get
// NaN and are listed in Delta.Missing rather than failing the whole poll.
package snapshot
