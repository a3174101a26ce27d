// Package config handles relay configuration loading.
//
// Files are YAML (.yaml, .yml) or TOML (.toml) and support ${VAR} syntax for
// environment variable interpolation.
//
// The access fields (allow_connections_from, global_access), the routes list
// and allow_json are declared for compatibility but are not enforced by the
// relay. Warnings reports when they are set to anything restrictive.
package config
