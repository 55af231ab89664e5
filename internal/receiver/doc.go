// Package receiver is the rendering side of the poll loop. Receiver
// implements poller.Renderer and fans every frame out to the in-memory
// store, the alert engine, the SQLite history and the InfluxDB mirror.
package receiver
