package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	// Declared, not enforced.
	AllowConnectionsFrom []string `yaml:"allow_connections_from" toml:"allow_connections_from"`
	GlobalAccess         bool     `yaml:"global_access" toml:"global_access"`
	Routes               []Route  `yaml:"routes" toml:"routes"`
	AllowJSON            bool     `yaml:"allow_json" toml:"allow_json"`

	// EnableLogs turns on per-session connect/disconnect logging.
	EnableLogs bool `yaml:"enable_logs" toml:"enable_logs"`

	Server   ServerConfig             `yaml:"server" toml:"server"`
	Handlers map[string]HandlerConfig `yaml:"handlers" toml:"handlers"`
	Log      LogConfig                `yaml:"log" toml:"log"`
	Metrics  MetricsConfig            `yaml:"metrics" toml:"metrics"`
	Audit    AuditConfig              `yaml:"audit" toml:"audit"`
}

// Route is a named route declaration. Informational only; dispatch does not
// consult it.
type Route struct {
	Name  string `yaml:"name" toml:"name"`
	Route string `yaml:"route" toml:"route"`
}

// ServerConfig holds listener and WebSocket settings.
type ServerConfig struct {
	Host              string        `yaml:"host" toml:"host"`
	Port              int           `yaml:"port" toml:"port"`
	WSPath            string        `yaml:"ws_path" toml:"ws_path"`
	MaxMessageBytes   int64         `yaml:"max_message_bytes" toml:"max_message_bytes"`
	WriteTimeout      time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval" toml:"ping_interval"`
	PongTimeout       time.Duration `yaml:"pong_timeout" toml:"pong_timeout"`
	FanoutConcurrency int           `yaml:"fanout_concurrency" toml:"fanout_concurrency"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// HandlerConfig binds a route to a built-in transform or a Lua script.
// Exactly one of the two must be set.
type HandlerConfig struct {
	Builtin string        `yaml:"builtin" toml:"builtin"`
	Script  string        `yaml:"script" toml:"script"`
	Timeout time.Duration `yaml:"timeout" toml:"timeout"` // Per-call script limit (0 = default)
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// AuditConfig holds session audit trail settings.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size" toml:"buffer_size"`
	MaxBuffered   int           `yaml:"max_buffered" toml:"max_buffered"`
	Database      DBConfig      `yaml:"database" toml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}
