// Package config loads and watches the herbie-dash configuration file.
//
// Top-level types:
//   - Config{LogLevel, Dashboard, Server}: full config tree parsed from YAML
//   - DashboardConfig: poll_interval, retry bounds, sources []
//   - Source: id, type (xlsx|csv|gsheet|json|prometheus), path/endpoint,
//     auth, tls, normalize (rename table, drop columns, retention cutoff),
//     chart and metric widget settings
//   - ServerConfig: http port, snapshot TTL, WebSocket cadence, API auth,
//     alerts, sqlite storage, InfluxDB mirror
//
// Secrets never live in the file: *_env fields name environment variables
// that Key(), Token(), Password() and URL() resolve at call time.
//
// Load(path) reads the YAML file, applies defaults (5s poll, 1s..60s retry,
// port 8080, 5m TTL, 2000-row chart tail), then validates required fields
// and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config.
package config
