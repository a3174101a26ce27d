package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rickgao/resend/internal/audit"
	"github.com/rickgao/resend/internal/connection"
	"github.com/rickgao/resend/internal/envelope"
	"github.com/rickgao/resend/internal/handler"
	"github.com/rickgao/resend/internal/metrics"
	"github.com/rickgao/resend/internal/registry"
)

const tracerName = "github.com/rickgao/resend/internal/relay"

// Config configures a Relay.
type Config struct {
	Conn     connection.Config
	Registry registry.Config

	// SessionLogs logs connects and disconnects at info level instead of debug.
	SessionLogs bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Conn:     connection.DefaultConfig(),
		Registry: registry.DefaultConfig(),
	}
}

// Option configures optional Relay collaborators.
type Option func(*Relay)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithAuditSink sets where session lifecycle events go.
func WithAuditSink(sink audit.Sink) Option {
	return func(r *Relay) {
		if sink != nil {
			r.audit = sink
		}
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Relay) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// Relay owns the connection registry and the handler table and runs one
// session per accepted connection. It implements http.Handler.
type Relay struct {
	cfg      Config
	logger   *slog.Logger
	handlers *handler.Table
	registry *registry.Registry
	metrics  *metrics.Metrics
	audit    audit.Sink
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	// Serving lifetime; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// New creates a relay serving the given handlers. The table is frozen:
// routes cannot be registered once the relay exists.
func New(cfg Config, handlers *handler.Table, opts ...Option) *Relay {
	if handlers == nil {
		handlers = handler.NewTable()
	}
	handlers.Freeze()

	r := &Relay{
		cfg:      cfg,
		logger:   slog.Default(),
		handlers: handlers,
		audit:    audit.NopSink{},
		tracer:   otel.Tracer(tracerName),
		upgrader: websocket.Upgrader{
			// allow_connections_from is declared but not enforced.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.NewUnregistered()
	}

	r.registry = registry.New(cfg.Registry, r.logger)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Connections returns the number of registered connections.
func (r *Relay) Connections() int {
	return r.registry.Len()
}

// Routes returns the routes that have a handler.
func (r *Relay) Routes() []string {
	return r.handlers.Routes()
}

// Dispatch resolves env's route, computes the response and broadcasts
// {route, response} to every open connection. Routes without a handler
// pass the payload through unchanged.
//
// A failing or panicking handler yields a *HandlerError and nothing is
// broadcast.
func (r *Relay) Dispatch(ctx context.Context, env envelope.Envelope) (registry.BroadcastResult, error) {
	ctx, span := r.tracer.Start(ctx, "relay.Dispatch",
		trace.WithAttributes(attribute.String("relay.route", env.Route)),
	)
	defer span.End()

	start := time.Now()

	response := env.Data
	h, handled := r.handlers.Lookup(env.Route)
	span.SetAttributes(attribute.Bool("relay.handled", handled))
	if handled {
		out, err := invoke(ctx, env.Route, h, env.Data)
		if err != nil {
			r.metrics.HandlerFaults.Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler fault")
			return registry.BroadcastResult{}, err
		}
		response = out
	}

	data, err := envelope.Encode(envelope.Envelope{Route: env.Route, Data: response})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode")
		return registry.BroadcastResult{}, err
	}

	result := r.broadcast(ctx, metrics.KindData, data)
	span.SetAttributes(
		attribute.Int("relay.recipients", result.Attempted),
		attribute.Int("relay.failed", len(result.Failed)),
	)
	r.metrics.DispatchDuration.WithLabelValues(strconv.FormatBool(handled)).Observe(time.Since(start).Seconds())
	return result, nil
}

// NotifyError broadcasts the fixed error envelope to every open connection.
func (r *Relay) NotifyError(ctx context.Context) registry.BroadcastResult {
	return r.broadcast(ctx, metrics.KindError, envelope.ErrorFrame())
}

// broadcast fans data out and records the outcome.
func (r *Relay) broadcast(ctx context.Context, kind string, data []byte) registry.BroadcastResult {
	result := r.registry.Broadcast(ctx, data)

	r.metrics.Broadcasts.WithLabelValues(kind).Inc()
	r.metrics.Deliveries.Add(float64(result.Delivered))
	if n := len(result.Failed); n > 0 {
		r.metrics.SendFailures.Add(float64(n))
		r.metrics.ActiveConnections.Set(float64(r.registry.Len()))
		r.logger.Warn("dropped connections after failed send",
			"kind", kind,
			"failed", n,
			"delivered", result.Delivered,
		)
	}
	return result
}

// invoke calls h and converts errors and panics into *HandlerError.
func invoke(ctx context.Context, route string, h handler.Handler, payload string) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Route: route, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	out, err = h.Handle(ctx, payload)
	if err != nil {
		return "", &HandlerError{Route: route, Err: err}
	}
	return out, nil
}

// ServeHTTP upgrades the request to a WebSocket and runs its session until
// it ends. Requests that are not WebSocket upgrades get 400.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if !websocket.IsWebSocketUpgrade(req) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		http.Error(w, ErrShutdown.Error(), http.StatusServiceUnavailable)
		return
	}
	r.sessions.Add(1)
	r.mu.Unlock()
	defer r.sessions.Done()

	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		r.logger.Debug("websocket upgrade failed", "remote_addr", req.RemoteAddr, "error", err)
		return
	}

	conn := connection.New(ws, r.cfg.Conn, r.logger)
	r.serve(r.ctx, conn)
}

// Shutdown stops accepting connections, closes every open connection with
// 1001 (going away) and waits for all sessions to end or ctx to expire.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	n := r.registry.CloseAll(websocket.CloseGoingAway, "server shutting down")
	r.logger.Info("closing connections", "count", n)

	done := make(chan struct{})
	go func() {
		r.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("all sessions ended")
		return nil
	case <-ctx.Done():
		r.logger.Warn("relay shutdown timed out", "remaining", r.registry.Len())
		return ctx.Err()
	}
}
