package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		return fmt.Errorf("server.ws_path must start with /, got %q", c.Server.WSPath)
	}
	if c.Server.MaxMessageBytes < 1 {
		return errors.New("server.max_message_bytes must be >= 1")
	}
	if c.Server.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be > 0")
	}
	if c.Server.PingInterval < 0 || c.Server.PongTimeout < 0 {
		return errors.New("server.ping_interval and server.pong_timeout must be >= 0")
	}
	if c.Server.PongTimeout > 0 && c.Server.PingInterval >= c.Server.PongTimeout {
		return fmt.Errorf("server.ping_interval (%s) must be shorter than server.pong_timeout (%s)",
			c.Server.PingInterval, c.Server.PongTimeout)
	}
	if c.Server.FanoutConcurrency < 1 {
		return errors.New("server.fanout_concurrency must be >= 1")
	}

	for i, r := range c.Routes {
		if r.Name == "" {
			return fmt.Errorf("routes[%d].name is required", i)
		}
		if r.Route == "" {
			return fmt.Errorf("routes[%d].route is required", i)
		}
	}

	for _, route := range c.handlerRoutes() {
		h := c.Handlers[route]
		if (h.Builtin == "") == (h.Script == "") {
			return fmt.Errorf("handlers.%s: exactly one of builtin or script is required", route)
		}
		if h.Timeout < 0 {
			return fmt.Errorf("handlers.%s.timeout must be >= 0", route)
		}
		if h.Timeout > 0 && h.Script == "" {
			return fmt.Errorf("handlers.%s.timeout only applies to script handlers", route)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if c.Audit.Enabled {
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.FlushInterval <= 0 {
			return errors.New("audit.flush_interval must be > 0")
		}
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
	}

	return nil
}

// Warnings lists declared settings the relay does not enforce.
func (c *Config) Warnings() []string {
	var warnings []string
	if len(c.AllowConnectionsFrom) > 0 {
		warnings = append(warnings, "allow_connections_from is declared but not enforced; all origins are accepted")
	}
	if !c.GlobalAccess {
		warnings = append(warnings, "global_access=false is declared but not enforced; all clients are accepted")
	}
	if !c.AllowJSON {
		warnings = append(warnings, "allow_json=false is declared but not enforced; envelopes are always JSON")
	}
	return warnings
}

// handlerRoutes returns handler route names in sorted order.
func (c *Config) handlerRoutes() []string {
	routes := make([]string, 0, len(c.Handlers))
	for r := range c.Handlers {
		routes = append(routes, r)
	}
	sort.Strings(routes)
	return routes
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
