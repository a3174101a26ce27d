// Package audit records session lifecycle events.
//
// Only connection metadata is recorded (open/close, remote address, close
// reason, frame count). Message payloads are never stored.
//
// Events are queued in a growable in-memory buffer and written to
// PostgreSQL in batches, so a slow database never blocks a session.
package audit
