package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
	"github.com/gridctl/mcpserverd/pkg/output"
	"github.com/gridctl/mcpserverd/pkg/reload"
	"github.com/gridctl/mcpserverd/pkg/transport/stdio"
)

var serveConfigPath string

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to the daemon's YAML config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server, blocking until signalled",
	Long: `Loads a daemon config, registers its tools, and serves MCP
requests over the configured transport until it receives SIGINT or
SIGTERM. Send SIGUSR1 to a running daemon to print a status snapshot
to stderr without interrupting it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveConfigPath)
	},
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, buffer := buildLogger(cfg.Logging)

	printer := output.New()
	printer.Banner(version)

	server := mcp.NewServer(cfg.Server, mcp.WithLogger(logger))
	execTimeout := time.Duration(cfg.Server.ToolExecTimeoutMS) * time.Millisecond
	factory := buildToolFactory(server, execTimeout, logger)

	if len(cfg.Tools) == 0 {
		printer.Info("no tools configured, registering built-in demo tools")
		for _, record := range demoTools(server) {
			if err := server.AddTool(record); err != nil {
				return fmt.Errorf("registering demo tool %q: %w", record.Name, err)
			}
		}
	} else {
		for _, toolCfg := range cfg.Tools {
			record, err := factory(toolCfg)
			if err != nil {
				return fmt.Errorf("building tool %q: %w", toolCfg.Name, err)
			}
			if err := server.AddTool(record); err != nil {
				return fmt.Errorf("registering tool %q: %w", toolCfg.Name, err)
			}
			printer.Info("registered tool", "name", toolCfg.Name, "kind", toolCfg.Kind)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer server.Stop()

	var reloadHandler *reload.Handler
	if cfg.Reload.Enabled {
		reloadHandler = reload.NewHandler(cfg.Reload.ManifestDir, nil, server, factory)
		reloadHandler.SetLogger(logger)
		if _, err := reloadHandler.Reload(ctx); err != nil {
			printer.Warn("initial manifest load failed", "error", err)
		}

		watcher := reload.NewDirWatcher(cfg.Reload.ManifestDir, func() error {
			_, err := reloadHandler.Reload(ctx)
			return err
		})
		watcher.SetLogger(logger)
		go func() {
			if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
				printer.Warn("manifest watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Transport.Kind != "" && cfg.Transport.Kind != "stdio" {
		return fmt.Errorf("unsupported transport kind %q", cfg.Transport.Kind)
	}

	tr := stdio.New(os.Stdin, os.Stdout)
	tr.SetLogger(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGUSR1:
				dumpStatus(printer, server, buffer)
			default:
				printer.Info("received signal, shutting down", "signal", sig.String())
				cancel()
				return
			}
		}
	}()

	printer.Info("serving MCP requests over stdio")
	if err := tr.Serve(ctx, server); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

// dumpStatus renders the same tool table the status command shows offline,
// plus the live client count Snapshot exposes and the most recent buffered
// log lines, to stderr — a lightweight in-process substitute for an admin
// socket, which the core's Non-goals rule out entirely.
func dumpStatus(printer *output.Printer, server *mcp.Server, buffer *logging.LogBuffer) {
	tools := server.Tools()
	summaries := make([]output.ToolSummary, 0, len(tools))
	for _, t := range tools {
		activity, _ := server.ToolActivity(t.Name)
		summaries = append(summaries, output.ToolSummary{
			Name:        t.Name,
			Description: t.Description,
			Busy:        activity > 0,
		})
	}
	printer.Tools(summaries)
	printer.Info("clients connected", "count", server.Snapshot().Clients)

	for _, entry := range buffer.GetRecent(10) {
		printer.Print("  [%s] %s %s\n", entry.Timestamp, entry.Level, entry.Message)
	}
}
