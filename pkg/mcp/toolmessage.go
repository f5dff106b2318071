package mcp

// ToolMessageType distinguishes the three kinds of message a callback may
// submit for a given execution token.
type ToolMessageType int

const (
	// ToolMessagePing keeps the execution alive (refreshes
	// last_message_timestamp) without producing a reply.
	ToolMessagePing ToolMessageType = iota
	// ToolMessageResponse is the final tools/call reply.
	ToolMessageResponse
	// ToolMessageCancelAck acknowledges an observed cancellation; it
	// finishes the execution without emitting any JSON-RPC reply.
	ToolMessageCancelAck
)

// ToolMessage is submitted by a tool callback via Server.SubmitToolMessage.
// Data is the text of the single content block the final reply carries;
// IsError marks a tool-level failure (still a JSON-RPC success envelope,
// with result.isError true, per MCP convention).
type ToolMessage struct {
	Type    ToolMessageType
	Data    []byte
	IsError bool
}
