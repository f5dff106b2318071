package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mcpserverd",
	Short: "MCP server runtime",
	Long: `mcpserverd hosts an MCP (Model Context Protocol) server: a bounded
set of clients talk JSON-RPC to a fixed worker pool, which dispatches
tools/call requests to tools backed by a subprocess, an OpenAPI
operation, or a sandboxed script, all through the same execution
registry, timeouts, and cancellation path.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
