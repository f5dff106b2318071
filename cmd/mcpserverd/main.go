// Command mcpserverd runs the MCP server runtime as a standalone daemon:
// it loads a YAML config, wires a transport binding and tool providers
// around pkg/mcp.Server, and blocks serving requests until signalled.
package main

func main() {
	Execute()
}
