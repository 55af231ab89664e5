// Package render turns snapshots and frames into what the dashboard shows:
// a PNG line chart per source, value/delta metric widgets and the tail
// table.
package render
