// Package mcp implements the server-side core of a Model Context Protocol
// runtime: a per-client session lifecycle, a refcounted client registry, a
// tool registry gated by an activity counter, an execution registry that
// tracks every in-flight tool invocation, a bounded worker pool, a JSON-RPC
// dispatcher for the MCP method set, and a health monitor that enforces
// idle/exec/cancel/client timeouts. The core never opens a socket itself —
// wire transports and tool callbacks are external collaborators described
// by the Transport and ToolCallback interfaces.
package mcp

import (
	"encoding/json"

	"github.com/gridctl/mcpserverd/pkg/jsonrpc"
)

// ProtocolVersion is the MCP wire protocol version this server speaks.
// initialize requests quoting any other value fail with InvalidArgument.
const ProtocolVersion = "2025-11-25"

// Request, Response and Error are the JSON-RPC 2.0 envelope types, shared
// with pkg/jsonrpc so transport bindings and the core agree on the wire
// format without an extra conversion step.
type (
	Request  = jsonrpc.Request
	Response = jsonrpc.Response
	RPCError = jsonrpc.Error
)

// ServerInfo identifies this server in the initialize reply.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies the remote peer, as reported in initialize params.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities describes what the server supports. The core only ever
// advertises tools, with listChanged left false — it has no push channel
// for tool-list change notifications.
type Capabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
}

// ToolsCapability indicates tool-call support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ResourcesCapability indicates resource support. The core never populates
// this — it exists so a host application can extend Capabilities without a
// wire break.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// PromptsCapability indicates prompt support. Unused by the core today, see
// ResourcesCapability.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is the parsed body of an initialize request.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// InitializeResult is the reply to a successful initialize request.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// Tool is one tool's metadata, as advertised by tools/list. InputSchema,
// OutputSchema, Title and Description are all carried unconditionally
// (unlike the Kconfig-gated fields in the firmware original); OutputSchema,
// Title and Description are omitted from the wire when empty, while
// inputSchema is always emitted (as null when unset).
type Tool struct {
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ToolsListResult is the reply to tools/list. NextCursor is always nil —
// the registry is bounded and never produces more than one page — but the
// field is always emitted as a JSON null, not omitted, for wire
// compatibility with paginating clients that check for the key's presence.
type ToolsListResult struct {
	Tools      []Tool  `json:"tools"`
	NextCursor *string `json:"nextCursor"`
}

// ToolCallParams is the parsed body of a tools/call request. Arguments is
// the raw, uncanonicalised JSON of the "arguments" object, extracted by
// brace matching and forwarded verbatim to the tool callback.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolCallResult is the reply to a successful tools/call.
type ToolCallResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// NewTextContent builds a single text content block.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// CancelledParams is the parsed body of a notifications/cancelled message.
type CancelledParams struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitempty"`
}
