package config

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ValidationError represents a single configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "validation errors:\n  - " + strings.Join(msgs, "\n  - ")
}

// Validate checks a DaemonConfig for errors, after SetDefaults has run.
func Validate(c *DaemonConfig) error {
	var errs ValidationErrors

	if c.Server.MaxClients <= 0 {
		errs = append(errs, ValidationError{"server.max_clients", "must be positive"})
	}
	if c.Server.MaxClientRequests <= 0 {
		errs = append(errs, ValidationError{"server.max_client_requests", "must be positive"})
	}
	if c.Server.MaxTools <= 0 {
		errs = append(errs, ValidationError{"server.max_tools", "must be positive"})
	}
	if c.Server.RequestWorkers <= 0 {
		errs = append(errs, ValidationError{"server.request_workers", "must be positive"})
	}
	if c.Server.ServerInfoName == "" {
		errs = append(errs, ValidationError{"server.server_info_name", "is required"})
	}
	if _, err := semver.NewVersion(c.Server.ServerInfoVersion); err != nil {
		errs = append(errs, ValidationError{"server.server_info_version", fmt.Sprintf("not a valid semantic version: %v", err)})
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{"logging.level", "must be one of debug, info, warn, error"})
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{"logging.format", "must be json or text"})
	}

	switch c.Transport.Kind {
	case "stdio":
	case "":
		errs = append(errs, ValidationError{"transport.kind", "is required"})
	default:
		errs = append(errs, ValidationError{"transport.kind", fmt.Sprintf("unsupported transport %q", c.Transport.Kind)})
	}

	seen := make(map[string]bool, len(c.Tools))
	for i, t := range c.Tools {
		prefix := fmt.Sprintf("tools[%d]", i)
		if t.Name == "" {
			errs = append(errs, ValidationError{prefix + ".name", "is required"})
		} else if seen[t.Name] {
			errs = append(errs, ValidationError{prefix + ".name", fmt.Sprintf("duplicate tool name %q", t.Name)})
		} else {
			seen[t.Name] = true
		}

		switch t.Kind {
		case "subprocess":
			if len(t.Command) == 0 {
				errs = append(errs, ValidationError{prefix + ".command", "is required for a subprocess tool"})
			}
		case "openapi":
			if t.OpenAPISpec == "" {
				errs = append(errs, ValidationError{prefix + ".openapi_spec", "is required for an openapi tool"})
			}
			if t.Operation == "" {
				errs = append(errs, ValidationError{prefix + ".operation_id", "is required for an openapi tool"})
			}
		case "script":
			if t.ScriptFile == "" {
				errs = append(errs, ValidationError{prefix + ".script_file", "is required for a script tool"})
			}
		case "":
			errs = append(errs, ValidationError{prefix + ".kind", "is required"})
		default:
			errs = append(errs, ValidationError{prefix + ".kind", fmt.Sprintf("unsupported tool kind %q", t.Kind)})
		}
	}

	if c.Reload.Enabled && c.Reload.ManifestDir == "" {
		errs = append(errs, ValidationError{"reload.manifest_dir", "is required when reload.enabled is true"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
