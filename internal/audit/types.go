package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a lifecycle transition.
type EventType string

const (
	EventOpen  EventType = "open"
	EventClose EventType = "close"
)

// Event is one session lifecycle record.
type Event struct {
	ConnID     uuid.UUID
	Type       EventType
	RemoteAddr string
	Reason     string // Close reason (close events only)
	Frames     int64  // Frames handled by the session (close events only)
	At         time.Time
}

// Sink accepts lifecycle events. Record must not block.
type Sink interface {
	Record(ev Event)
}

// NopSink discards every event.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(Event) {}

// WriterConfig configures the batch writer.
type WriterConfig struct {
	BatchSize     int           // Max rows per insert batch
	FlushInterval time.Duration // Max time an event waits before being written
	BufferSize    int           // Initial buffer capacity
	MaxBuffered   int           // Events beyond this are dropped (0 = unbounded)
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    1000,
		MaxBuffered:   100000,
	}
}

// WriterStats contains runtime statistics.
type WriterStats struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Buffer  BufferStats
}
