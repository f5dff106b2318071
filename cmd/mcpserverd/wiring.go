package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
	"github.com/gridctl/mcpserverd/pkg/reload"
	"github.com/gridctl/mcpserverd/pkg/toolprovider/openapi"
	"github.com/gridctl/mcpserverd/pkg/toolprovider/script"
	"github.com/gridctl/mcpserverd/pkg/toolprovider/subprocess"
)

// buildLogger assembles the component-tagged, buffer-backed, optionally
// rotated structured logger described by cfg: a JSON or text slog handler
// over stderr or a lumberjack-rotated file, with every record also mirrored
// into an in-memory ring buffer that serve's SIGUSR1 status dump reads.
func buildLogger(cfg config.LoggingConfig) (*slog.Logger, *logging.LogBuffer) {
	var out io.Writer = os.Stderr
	if cfg.File != "" {
		out = logging.NewRotatingWriter(logging.RotatingFileConfig{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
		})
	}

	base := logging.NewStructuredLogger(logging.Config{
		Level:     logging.ParseLevel(cfg.Level),
		Format:    logging.ParseFormat(cfg.Format),
		Output:    out,
		Component: "mcpserverd",
	})

	buffer := logging.NewLogBuffer(cfg.BufferSize)
	handler := logging.NewBufferHandler(buffer, base.Handler())
	return slog.New(handler), buffer
}

// buildToolFactory closes over the server, the daemon's own execution
// timeout, and its logger, dispatching each tool config to the
// pkg/toolprovider package matching its Kind. It satisfies
// reload.ToolFactory, so the same closure builds both the tools the
// daemon starts with and the ones the manifest watcher adds later.
func buildToolFactory(server *mcp.Server, execTimeout time.Duration, logger *slog.Logger) reload.ToolFactory {
	return func(cfg config.ToolConfig) (mcp.ToolRecord, error) {
		switch cfg.Kind {
		case "subprocess":
			client, err := subprocess.New(cfg)
			if err != nil {
				return mcp.ToolRecord{}, err
			}
			client.SetServer(server)
			client.SetLogger(logger)
			return client.Record(cfg), nil

		case "openapi":
			tool, err := openapi.New(cfg)
			if err != nil {
				return mcp.ToolRecord{}, err
			}
			tool.SetServer(server)
			tool.SetLogger(logger)
			return tool.Record(cfg), nil

		case "script":
			tool, err := script.New(cfg, execTimeout)
			if err != nil {
				return mcp.ToolRecord{}, err
			}
			tool.SetServer(server)
			tool.SetLogger(logger)
			return tool.Record(cfg), nil

		default:
			return mcp.ToolRecord{}, fmt.Errorf("tool %q: unknown kind %q", cfg.Name, cfg.Kind)
		}
	}
}
