// Package source fetches raw sensor-log rows from the configured backends.
//
// Each backend implements Reader:
//
//	xlsx:       a local workbook sheet, reopened on every fetch
//	csv:        a local CSV file with a header row
//	gsheet:     a Google Sheets CSV export fetched over HTTP
//	json:       an HTTP endpoint returning an array of row objects
//	prometheus: a text exposition endpoint; each scrape appends one row to
//	            a bounded in-memory history
//
// Readers only fetch and split rows into fields. Renaming, type coercion and
// the retention cutoff happen in package snapshot. Every fetch failure wraps
// ErrSourceUnavailable so the poller can back off without inspecting
// backend-specific errors.
package source
