package mcp

import "time"

// Config holds every tunable limit of the server, exposed as runtime
// configuration (loaded from YAML by pkg/config) since a hosted Go
// server has no compile-time knob step.
type Config struct {
	MaxClients             int `yaml:"max_clients"`
	MaxClientRequests      int `yaml:"max_client_requests"`
	MaxTools               int `yaml:"max_tools"`
	RequestWorkers         int `yaml:"request_workers"`
	ToolNameMaxLen         int `yaml:"tool_name_max_len"`
	ToolInputArgsMaxLen    int `yaml:"tool_input_args_max_len"`
	MaxMessageSize         int `yaml:"max_message_size"`

	ToolExecTimeoutMS     int64 `yaml:"tool_exec_timeout_ms"`
	ToolIdleTimeoutMS     int64 `yaml:"tool_idle_timeout_ms"`
	ToolCancelTimeoutMS   int64 `yaml:"tool_cancel_timeout_ms"`
	ClientTimeoutMS       int64 `yaml:"client_timeout_ms"`
	HealthCheckIntervalMS int64 `yaml:"health_check_interval_ms"`

	ServerInfoName    string `yaml:"server_info_name"`
	ServerInfoVersion string `yaml:"server_info_version"`

	// RequestQueueCapacity sizes the worker pool's request queue; zero
	// means MaxClients*MaxClientRequests.
	RequestQueueCapacity int `yaml:"request_queue_capacity"`
}

// DefaultConfig returns the reference defaults.
func DefaultConfig() Config {
	return Config{
		MaxClients:            4,
		MaxClientRequests:     2,
		MaxTools:              8,
		RequestWorkers:        2,
		ToolNameMaxLen:        32,
		ToolInputArgsMaxLen:   512,
		MaxMessageSize:        1024,
		ToolExecTimeoutMS:     30000,
		ToolIdleTimeoutMS:     5000,
		ToolCancelTimeoutMS:   5000,
		ClientTimeoutMS:       60000,
		HealthCheckIntervalMS: 1000,
		ServerInfoName:        "mcpserverd",
		ServerInfoVersion:     "1.0.0",
	}
}

func (c Config) execTimeout() time.Duration   { return time.Duration(c.ToolExecTimeoutMS) * time.Millisecond }
func (c Config) idleTimeout() time.Duration   { return time.Duration(c.ToolIdleTimeoutMS) * time.Millisecond }
func (c Config) cancelTimeout() time.Duration { return time.Duration(c.ToolCancelTimeoutMS) * time.Millisecond }
func (c Config) clientTimeout() time.Duration { return time.Duration(c.ClientTimeoutMS) * time.Millisecond }
func (c Config) healthInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalMS) * time.Millisecond
}

func (c Config) queueCapacity() int {
	if c.RequestQueueCapacity > 0 {
		return c.RequestQueueCapacity
	}
	return c.MaxClients * c.MaxClientRequests
}
