// Package config provides the configuration schema, loader, and hot-reload
// watcher for mcpguard.
package config

import "github.com/MrWong99/mcpguard/internal/guardcore"

// Config is the root configuration structure for mcpguard.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Routes []RouteConfig `yaml:"routes"`
}

// ServerConfig holds network and logging settings for the mcpguard process.
type ServerConfig struct {
	// ListenAddr is the TCP address the proxy listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// AdminAddr is the TCP address the schema/admin HTTP API listens on.
	// Leave empty to serve it on ListenAddr.
	AdminAddr string `yaml:"admin_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// LogLevel is a validated slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised level names.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// RouteConfig binds a named upstream MCP route to the ordered set of guards
// that protect it. A route typically corresponds to one upstream MCP server
// (or a logical group of servers sharing the same security policy).
type RouteConfig struct {
	// Name uniquely identifies this route (used in logs, metrics, and the
	// admin reload endpoint: POST /admin/guards/{route}/reload).
	Name string `yaml:"name"`

	// SecurityGuards is the ordered list of guard instances wired into this
	// route's chain. Dispatch order within a phase is by Priority, not by
	// this slice's order; see [guardcore.GuardDescriptor.Priority].
	SecurityGuards []guardcore.GuardDescriptor `yaml:"security_guards"`

	// MaxRouteMemoryBytes caps the summed memory budget of every sandboxed
	// ("wasm") guard bound to this route. Zero means unlimited. Enforced by
	// [engine.Engine.Reload], not at configuration load time, since it
	// depends on each wasm guard's manifest-declared max_memory rather than
	// anything this package can see.
	MaxRouteMemoryBytes int64 `yaml:"max_route_memory_bytes"`
}
