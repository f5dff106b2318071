// Package config loads and validates the on-disk YAML configuration for the
// mcpserverd daemon: the core protocol knobs (pkg/mcp.Config), the transport
// binding, the tool providers to wire up, logging, and the hot-reload
// watch path.
package config

import "github.com/gridctl/mcpserverd/pkg/mcp"

// DaemonConfig is the root of mcpserverd's YAML configuration file.
type DaemonConfig struct {
	Server    mcp.Config      `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
	Transport TransportConfig `yaml:"transport,omitempty"`
	Tools     []ToolConfig    `yaml:"tools,omitempty"`
	Reload    ReloadConfig    `yaml:"reload,omitempty"`
}

// LoggingConfig controls pkg/logging's structured logger construction.
type LoggingConfig struct {
	Level     string `yaml:"level,omitempty"`      // debug|info|warn|error, default info
	Format    string `yaml:"format,omitempty"`      // json|text, default json
	File      string `yaml:"file,omitempty"`        // rotated log file path; empty means stderr
	MaxSizeMB int    `yaml:"max_size_mb,omitempty"` // lumberjack rotation knobs
	MaxBackups int   `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
	BufferSize int    `yaml:"buffer_size,omitempty"` // in-memory ring buffer for status/diagnostics
}

// TransportConfig selects and configures the wire binding.
type TransportConfig struct {
	// Kind is the transport implementation to bind: currently only "stdio"
	// is implemented in-tree (pkg/transport/stdio). HTTP/SSE bindings are
	// out of scope for this runtime.
	Kind string `yaml:"kind,omitempty"`
}

// ToolConfig describes one tool to register, dispatched by Kind to the
// matching pkg/toolprovider/* package. It doubles as the schema for a
// standalone tool manifest file (pkg/reload reads these as HuJSON, one tool
// per file) and as an entry in DaemonConfig.Tools (YAML) — both tag sets
// are kept in sync so the two sources round-trip identically.
type ToolConfig struct {
	Name        string `yaml:"name" json:"name"`
	Kind        string `yaml:"kind" json:"kind"` // "subprocess" | "openapi" | "script"
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Subprocess provider fields (pkg/toolprovider/subprocess).
	Command  []string          `yaml:"command,omitempty" json:"command,omitempty"`
	WorkDir  string            `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
	Env      map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Upstream string            `yaml:"upstream_tool,omitempty" json:"upstream_tool,omitempty"`

	// OpenAPI provider fields (pkg/toolprovider/openapi).
	OpenAPISpec string `yaml:"openapi_spec,omitempty" json:"openapi_spec,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Operation   string `yaml:"operation_id,omitempty" json:"operation_id,omitempty"`

	// Script provider fields (pkg/toolprovider/script).
	ScriptFile  string         `yaml:"script_file,omitempty" json:"script_file,omitempty"`
	InputSchema map[string]any `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
}

// ReloadConfig controls the fsnotify-driven tool hot-reload watcher.
type ReloadConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	ManifestDir string `yaml:"manifest_dir,omitempty"`
}

// SetDefaults fills in every field that has a documented default, without
// overriding anything the file already specified.
func (c *DaemonConfig) SetDefaults() {
	defaults := mcp.DefaultConfig()
	if c.Server.MaxClients == 0 {
		c.Server.MaxClients = defaults.MaxClients
	}
	if c.Server.MaxClientRequests == 0 {
		c.Server.MaxClientRequests = defaults.MaxClientRequests
	}
	if c.Server.MaxTools == 0 {
		c.Server.MaxTools = defaults.MaxTools
	}
	if c.Server.RequestWorkers == 0 {
		c.Server.RequestWorkers = defaults.RequestWorkers
	}
	if c.Server.ToolNameMaxLen == 0 {
		c.Server.ToolNameMaxLen = defaults.ToolNameMaxLen
	}
	if c.Server.ToolInputArgsMaxLen == 0 {
		c.Server.ToolInputArgsMaxLen = defaults.ToolInputArgsMaxLen
	}
	if c.Server.MaxMessageSize == 0 {
		c.Server.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.Server.ToolExecTimeoutMS == 0 {
		c.Server.ToolExecTimeoutMS = defaults.ToolExecTimeoutMS
	}
	if c.Server.ToolIdleTimeoutMS == 0 {
		c.Server.ToolIdleTimeoutMS = defaults.ToolIdleTimeoutMS
	}
	if c.Server.ToolCancelTimeoutMS == 0 {
		c.Server.ToolCancelTimeoutMS = defaults.ToolCancelTimeoutMS
	}
	if c.Server.ClientTimeoutMS == 0 {
		c.Server.ClientTimeoutMS = defaults.ClientTimeoutMS
	}
	if c.Server.HealthCheckIntervalMS == 0 {
		c.Server.HealthCheckIntervalMS = defaults.HealthCheckIntervalMS
	}
	if c.Server.ServerInfoName == "" {
		c.Server.ServerInfoName = defaults.ServerInfoName
	}
	if c.Server.ServerInfoVersion == "" {
		c.Server.ServerInfoVersion = defaults.ServerInfoVersion
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.BufferSize == 0 {
		c.Logging.BufferSize = 1000
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = "stdio"
	}
}
