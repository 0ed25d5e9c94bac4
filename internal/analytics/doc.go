// Package analytics records variant serve events and turns their history
// into optimization recommendations. Recording is strictly non-blocking:
// events flow through a buffered channel into an append-only SQLite log,
// with optional JSON republication over NATS, and are dropped under
// pressure rather than slowing delivery. The advisor is read-only.
package analytics
