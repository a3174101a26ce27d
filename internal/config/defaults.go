package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHost              = "localhost"
	DefaultPort              = 8080
	DefaultWSPath            = "/"
	DefaultMaxMessageBytes   = 4096
	DefaultWriteTimeout      = 5 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultPongTimeout       = 60 * time.Second
	DefaultFanoutConcurrency = 64
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultMetricsPath       = "/metrics"
	DefaultAuditBatchSize    = 500
	DefaultAuditFlush        = 1 * time.Second
	DefaultAuditBufferSize   = 1000
	DefaultAuditMaxBuffered  = 100000
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
)

// New returns the config a file is decoded into. It holds the declared
// fields at their documented defaults (global access and JSON payloads
// allowed, session logs off) and the keepalive settings, for which zero is
// a meaningful value ("disabled") and so cannot be defaulted after decoding.
func New() *Config {
	return &Config{
		GlobalAccess: true,
		AllowJSON:    true,
		EnableLogs:   false,
		Server: ServerConfig{
			PingInterval: DefaultPingInterval,
			PongTimeout:  DefaultPongTimeout,
		},
	}
}

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}
	if c.Server.MaxMessageBytes == 0 {
		c.Server.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.FanoutConcurrency == 0 {
		c.Server.FanoutConcurrency = DefaultFanoutConcurrency
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Audit defaults
	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultAuditBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultAuditFlush
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultAuditBufferSize
	}
	if c.Audit.MaxBuffered == 0 {
		c.Audit.MaxBuffered = DefaultAuditMaxBuffered
	}
	applyDBDefaults(&c.Audit.Database)
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
