package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Member is a registered connection.
type Member interface {
	// Send writes one frame. It must return within a bounded time.
	Send(data []byte) error

	// IsOpen reports whether the member accepts frames.
	IsOpen() bool

	// Close closes the member's transport.
	Close(code int, reason string) error
}

// Config configures the registry.
type Config struct {
	FanoutConcurrency int // Max concurrent sends per broadcast (<=0 = one goroutine per member)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		FanoutConcurrency: 64,
	}
}

// BroadcastResult summarizes one broadcast.
type BroadcastResult struct {
	Attempted int         // Open members a send was issued to
	Delivered int         // Sends that succeeded
	Skipped   int         // Members that were not open
	Cancelled int         // Sends dropped because ctx was done
	Failed    []uuid.UUID // Members whose send failed (now removed)
}

// Registry is a concurrency-safe set of live connections.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	members map[uuid.UUID]Member
}

// New creates an empty registry.
func New(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		cfg:     cfg,
		logger:  logger,
		members: make(map[uuid.UUID]Member),
	}
}

// Add registers a member under a fresh identifier.
func (r *Registry) Add(m Member) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	for {
		if _, exists := r.members[id]; !exists {
			break
		}
		id = uuid.New()
	}
	r.members[id] = m
	return id
}

// Remove deletes a member. It reports whether the member was present;
// removing an unknown id is a no-op.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Get returns the member registered under id.
func (r *Registry) Get(id uuid.UUID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[id]
	return m, ok
}

// Len returns the number of registered members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

type entry struct {
	id     uuid.UUID
	member Member
}

// snapshot copies the current members so sends happen without the lock.
func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]entry, 0, len(r.members))
	for id, m := range r.members {
		entries = append(entries, entry{id: id, member: m})
	}
	return entries
}

// Broadcast sends data to every open member and waits for all sends to
// finish. Members that are not open are skipped. Members whose send fails
// are removed and closed.
//
// If ctx is cancelled, sends that have not started yet are skipped.
func (r *Registry) Broadcast(ctx context.Context, data []byte) BroadcastResult {
	entries := r.snapshot()

	var (
		mu     sync.Mutex
		result BroadcastResult
	)

	var g errgroup.Group
	if r.cfg.FanoutConcurrency > 0 {
		g.SetLimit(r.cfg.FanoutConcurrency)
	}

	for _, e := range entries {
		if !e.member.IsOpen() {
			result.Skipped++
			continue
		}
		result.Attempted++
		e := e

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				result.Cancelled++
				mu.Unlock()
				return nil
			}

			err := e.member.Send(data)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Debug("broadcast send failed", "conn_id", e.id, "error", err)
				result.Failed = append(result.Failed, e.id)
				return nil
			}
			result.Delivered++
			return nil
		})
	}
	g.Wait()

	for _, id := range result.Failed {
		r.evict(id)
	}

	return result
}

// evict removes a member whose send failed and closes it.
func (r *Registry) evict(id uuid.UUID) {
	r.mu.Lock()
	m, ok := r.members[id]
	if ok {
		delete(r.members, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := m.Close(websocket.CloseInternalServerErr, "send failed"); err != nil {
		r.logger.Debug("close after send failure", "conn_id", id, "error", err)
	}
}

// CloseAll closes every registered member and returns how many were closed.
// Members stay registered until their sessions remove them.
func (r *Registry) CloseAll(code int, reason string) int {
	entries := r.snapshot()
	for _, e := range entries {
		if err := e.member.Close(code, reason); err != nil {
			r.logger.Debug("close member", "conn_id", e.id, "error", err)
		}
	}
	return len(entries)
}
