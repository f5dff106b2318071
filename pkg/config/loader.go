package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a daemon config file, expanding environment
// variables, resolving relative paths against the file's own directory, and
// validating the result.
func Load(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg DaemonConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	expandEnvVars(&cfg)
	resolveRelativePaths(&cfg, filepath.Dir(path))
	cfg.SetDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvVars expands $VAR / ${VAR} references in string fields a
// deployment is likely to parameterize: tool commands, environment maps,
// and file paths that often carry secrets or host-specific values.
func expandEnvVars(c *DaemonConfig) {
	c.Server.ServerInfoVersion = os.ExpandEnv(c.Server.ServerInfoVersion)
	c.Logging.File = os.ExpandEnv(c.Logging.File)
	c.Reload.ManifestDir = os.ExpandEnv(c.Reload.ManifestDir)

	for i := range c.Tools {
		t := &c.Tools[i]
		for j := range t.Command {
			t.Command[j] = os.ExpandEnv(t.Command[j])
		}
		t.WorkDir = os.ExpandEnv(t.WorkDir)
		for k, v := range t.Env {
			t.Env[k] = os.ExpandEnv(v)
		}
		t.OpenAPISpec = os.ExpandEnv(t.OpenAPISpec)
		t.BaseURL = os.ExpandEnv(t.BaseURL)
		t.ScriptFile = os.ExpandEnv(t.ScriptFile)
	}
}

// resolveRelativePaths anchors filesystem paths in the config to the
// directory the config file itself lives in, so a daemon can be started
// from any working directory.
func resolveRelativePaths(c *DaemonConfig, basePath string) {
	c.Logging.File = resolvePath(c.Logging.File, basePath)
	c.Reload.ManifestDir = resolvePath(c.Reload.ManifestDir, basePath)

	for i := range c.Tools {
		t := &c.Tools[i]
		t.WorkDir = resolvePath(t.WorkDir, basePath)
		if !isURL(t.OpenAPISpec) {
			t.OpenAPISpec = resolvePath(t.OpenAPISpec, basePath)
		}
		t.ScriptFile = resolvePath(t.ScriptFile, basePath)
	}
}

func resolvePath(path, basePath string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			if len(path) == 1 {
				return home
			}
			if path[1] == '/' || path[1] == filepath.Separator {
				return filepath.Join(home, path[2:])
			}
		}
	}
	return filepath.Join(basePath, path)
}

func isURL(s string) bool {
	return len(s) >= 7 && (s[:7] == "http://" || (len(s) >= 8 && s[:8] == "https://"))
}
