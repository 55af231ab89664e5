// Package history keeps the latest reading and delta of every channel per
// poll in SQLite, so the API can answer range queries beyond what the
// in-memory snapshot retains.
package history
