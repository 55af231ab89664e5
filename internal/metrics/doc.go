// Package metrics exposes herbie-dash's own Prometheus metrics on a private
// registry: poll outcomes and latency per source, rows retained, coercion
// warnings, fetch failures and WebSocket clients.
package metrics
