package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/output"
)

var statusConfigPath string

func init() {
	statusCmd.Flags().StringVarP(&statusConfigPath, "config", "c", "", "path to the daemon's YAML config file (required)")
	_ = statusCmd.MarkFlagRequired("config")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the tools a config file would register",
	Long: `Renders the tool table a "serve" run against this config would
register, without starting the daemon. The core never opens a socket,
so there is no live admin surface to query across processes — to
inspect clients and in-flight executions on a running daemon, send it
SIGUSR1 and read its stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(statusConfigPath)
	},
}

func runStatus(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	printer := output.New()

	if len(cfg.Tools) == 0 {
		printer.Println("no tools configured; `serve` would register the built-in demo tools (echo, clock)")
		return nil
	}

	summaries := make([]output.ToolSummary, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		summaries = append(summaries, output.ToolSummary{
			Name:        t.Name,
			Kind:        t.Kind,
			Description: t.Description,
		})
	}
	printer.Tools(summaries)

	if cfg.Reload.Enabled {
		printer.Info("hot reload enabled", "manifest_dir", cfg.Reload.ManifestDir)
	}
	return nil
}
