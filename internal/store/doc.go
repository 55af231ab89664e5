// Package store holds the latest poll frame of every source in memory with
// TTL-based eviction of sources that stopped reporting.
package store
