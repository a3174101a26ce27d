package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/resend/internal/audit"
	"github.com/rickgao/resend/internal/config"
	"github.com/rickgao/resend/internal/connection"
	"github.com/rickgao/resend/internal/handler"
	"github.com/rickgao/resend/internal/metrics"
	"github.com/rickgao/resend/internal/registry"
	"github.com/rickgao/resend/internal/relay"
	"github.com/rickgao/resend/internal/version"
)

// newLogger builds the process logger from the log settings.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// buildHandlers fills a handler table from configuration. Script paths are
// resolved relative to baseDir. The returned func releases script states.
func buildHandlers(bindings map[string]config.HandlerConfig, baseDir string) (*handler.Table, func(), error) {
	table := handler.NewTable()
	var scripts []*handler.Script
	closeAll := func() {
		for _, s := range scripts {
			s.Close()
		}
	}

	routes := make([]string, 0, len(bindings))
	for route := range bindings {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	for _, route := range routes {
		hc := bindings[route]

		var h handler.Handler
		switch {
		case hc.Builtin != "":
			b, err := handler.Builtin(hc.Builtin)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("handlers.%s: %w", route, err)
			}
			h = b
		case hc.Script != "":
			path := hc.Script
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			s, err := handler.LoadScript(path)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("handlers.%s: %w", route, err)
			}
			if hc.Timeout > 0 {
				s.SetTimeout(hc.Timeout)
			}
			scripts = append(scripts, s)
			h = s
		default:
			closeAll()
			return nil, nil, fmt.Errorf("handlers.%s: builtin or script is required", route)
		}

		if err := table.Register(route, h); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("handlers.%s: %w", route, err)
		}
	}

	return table, closeAll, nil
}

// relayConfig maps server settings onto the relay.
func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		Conn: connection.Config{
			WriteTimeout:    cfg.Server.WriteTimeout,
			PingInterval:    cfg.Server.PingInterval,
			PongTimeout:     cfg.Server.PongTimeout,
			MaxMessageBytes: cfg.Server.MaxMessageBytes,
		},
		Registry: registry.Config{
			FanoutConcurrency: cfg.Server.FanoutConcurrency,
		},
		SessionLogs: cfg.EnableLogs,
	}
}

func auditWriterConfig(cfg config.AuditConfig) audit.WriterConfig {
	return audit.WriterConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		BufferSize:    cfg.BufferSize,
		MaxBuffered:   cfg.MaxBuffered,
	}
}

func listenAddr(cfg config.ServerConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// pinger reports whether a dependency is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// routerDeps are the collaborators exposed over HTTP.
type routerDeps struct {
	Relay    *relay.Relay
	Gatherer prometheus.Gatherer // nil disables /metrics
	Database pinger              // nil when audit is disabled
	Logger   *slog.Logger
}

// newRouter mounts the relay at ws_path next to the health and metrics
// endpoints.
func newRouter(cfg *config.Config, deps routerDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler(deps.Relay, deps.Database, deps.Logger))
	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, metrics.Handler(deps.Gatherer))
	}

	// "/" accepts upgrades on any path not claimed above.
	if cfg.Server.WSPath == "/" {
		r.Handle("/*", deps.Relay)
	} else {
		r.Handle(cfg.Server.WSPath, deps.Relay)
	}

	return r
}

// healthHandler reports relay and database status as JSON.
func healthHandler(rel *relay.Relay, db pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		health.Components["relay"] = map[string]any{
			"connections": rel.Connections(),
			"routes":      rel.Routes(),
		}

		if db != nil {
			if err := db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["audit_db"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["audit_db"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("failed to write health response", "error", err)
		}
	}
}
