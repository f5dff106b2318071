package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gridctl/mcpserverd/pkg/mcp"
)

// demoTools returns the tools registered when the config declares none,
// so `mcpserverd serve` is useful out of the box without a manifest: an
// echo tool and a clock tool, both pure Go callbacks with no subprocess,
// OpenAPI, or script indirection.
func demoTools(server *mcp.Server) []mcp.ToolRecord {
	return []mcp.ToolRecord{
		{
			Name:        "echo",
			Description: "Returns the message argument unchanged.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`),
			Callback:    echoCallback(server),
		},
		{
			Name:        "clock",
			Description: "Returns the server's current UTC time in RFC3339.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Callback:    clockCallback(server),
		},
	}
}

func echoCallback(server *mcp.Server) mcp.ToolCallback {
	return func(ctx context.Context, event mcp.ToolEvent, argumentsJSON []byte, token mcp.ExecutionToken) error {
		if event != mcp.EventInvoke {
			return nil
		}
		var args struct {
			Message string `json:"message"`
		}
		if len(argumentsJSON) > 0 {
			if err := json.Unmarshal(argumentsJSON, &args); err != nil {
				return server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
					Type:    mcp.ToolMessageResponse,
					Data:    []byte(fmt.Sprintf("invalid arguments: %v", err)),
					IsError: true,
				})
			}
		}
		return server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
			Type: mcp.ToolMessageResponse,
			Data: []byte(args.Message),
		})
	}
}

func clockCallback(server *mcp.Server) mcp.ToolCallback {
	return func(ctx context.Context, event mcp.ToolEvent, argumentsJSON []byte, token mcp.ExecutionToken) error {
		if event != mcp.EventInvoke {
			return nil
		}
		return server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
			Type: mcp.ToolMessageResponse,
			Data: []byte(time.Now().UTC().Format(time.RFC3339)),
		})
	}
}
