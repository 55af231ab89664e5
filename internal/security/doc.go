// Package security checks the TLS certificates of HTTPS-backed sources
// (Google Sheets exports, JSON feeds, Prometheus exporters).
//
// Check dials one source endpoint and reports its leaf certificate as valid,
// expiring (30 days or less), expired or unreachable. Monitor repeats the
// check on an interval and serves the latest CertStatus per source to the
// REST API, where it surfaces as a diagnostic hint.
package security
