// Package ws implements the WebSocket hub that streams the dashboard.
//
// New(store, interval, opts...) creates a Hub. Hub.Run(ctx) broadcasts on a
// ticker and whenever Notify is called after a fresh poll; it blocks until
// ctx is cancelled, then closes all active connections. Hub.ServeHTTP
// upgrades an HTTP connection, sends the current snapshot immediately, then
// streams updates.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// Browser origins are checked against the configured CORS origins. The hub
// is mounted at /ws/stream.
package ws
