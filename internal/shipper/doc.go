// Package shipper mirrors fresh sensor readings into InfluxDB.
//
// Ship is non-blocking: points go into a bounded buffer and the oldest point
// is evicted when it is full. Run drains the buffer through the blocking
// write API and backs off exponentially while InfluxDB rejects or cannot be
// reached.
package shipper
