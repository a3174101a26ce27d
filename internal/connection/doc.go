// Package connection wraps accepted WebSocket connections.
//
// A Conn:
//   - Tracks its lifecycle state (Open, Closing, Erroring, Closed)
//   - Serializes writes and bounds each one with a write deadline
//   - Acknowledges peer close frames with a close handshake
//   - Keeps the connection alive with periodic pings
package connection
