package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotOpen       = errors.New("connection not open")
	ErrPeerClosed    = errors.New("peer closed connection")
	ErrFrameTooLarge = errors.New("frame exceeds read limit")
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing  // close handshake started by the peer or the read limit
	StateErroring // protocol error, about to close
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateErroring:
		return "erroring"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures an accepted connection.
type Config struct {
	WriteTimeout    time.Duration // Deadline for each outgoing frame
	PingInterval    time.Duration // Keepalive ping period (0 = no pings)
	PongTimeout     time.Duration // Max silence before reads fail (0 = no read deadline)
	MaxMessageBytes int64         // Read limit per frame (0 = unlimited)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageBytes: 4096,
	}
}
