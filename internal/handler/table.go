package handler

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrFrozen is returned by Register once the table has been frozen.
var ErrFrozen = errors.New("handler table is frozen")

// Handler transforms a payload into the response broadcast for a route.
type Handler interface {
	Handle(ctx context.Context, payload string) (string, error)
}

// HandlerFunc adapts a function with an error result to Handler.
type HandlerFunc func(ctx context.Context, payload string) (string, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

// Func adapts a pure string transformation to Handler. It never fails.
func Func(fn func(string) string) Handler {
	return HandlerFunc(func(_ context.Context, payload string) (string, error) {
		return fn(payload), nil
	})
}

// Table maps route names to handlers.
type Table struct {
	mu       sync.Mutex
	handlers map[string]Handler
	frozen   bool
}

// NewTable creates an empty, writable table.
func NewTable() *Table {
	return &Table{handlers: make(map[string]Handler)}
}

// Register binds a handler to a route. Registering a route again replaces
// the previous handler.
func (t *Table) Register(route string, h Handler) error {
	if h == nil {
		return errors.New("handler is nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen {
		return ErrFrozen
	}
	t.handlers[route] = h
	return nil
}

// Freeze ends the configuration phase. It is safe to call more than once.
func (t *Table) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen
}

// Lookup returns the handler for route.
//
// Lookup must only be called after Freeze; the map is read without locking.
func (t *Table) Lookup(route string) (Handler, bool) {
	h, ok := t.handlers[route]
	return h, ok
}

// Routes returns the registered route names in sorted order.
func (t *Table) Routes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	routes := make([]string, 0, len(t.handlers))
	for r := range t.handlers {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}
