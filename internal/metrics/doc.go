// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection counts and session close reasons
//   - Frame, broadcast and send-failure rates
//   - Malformed frames and handler faults
//   - Dispatch latency
package metrics
