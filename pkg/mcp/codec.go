package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Method is the closed set of MCP methods the codec recognises.
type Method int

const (
	MethodUnknown Method = iota
	MethodInitialize
	MethodPing
	MethodToolsList
	MethodToolsCall
	MethodNotificationsInitialized
	MethodNotificationsCancelled
)

var methodNames = map[string]Method{
	"initialize":                MethodInitialize,
	"ping":                      MethodPing,
	"tools/list":                MethodToolsList,
	"tools/call":                MethodToolsCall,
	"notifications/initialized": MethodNotificationsInitialized,
	"notifications/cancelled":   MethodNotificationsCancelled,
}

// Message is the tagged variant the codec produces for every successfully
// parsed envelope: at most one of the typed param fields is populated,
// selected by Method (initialize, tools/call and notifications/cancelled
// each fill one; ping, tools/list, notifications/initialized and unknown
// methods fill none). ID is nil for notifications.
type Message struct {
	Method    Method
	ID        *json.RawMessage
	IsNotify  bool
	RawMethod string // original method string, for diagnostics/unknown-method replies

	Initialize  *InitializeParams
	ToolsCall   *ToolCallParams
	Cancelled   *CancelledParams
}

// rawEnvelope mirrors the wire shape loosely enough to detect request vs.
// notification vs. (rejected) response bodies before full typed parsing.
type rawEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ParseMessage parses one inbound JSON-RPC envelope. It never canonicalises
// the "arguments" sub-object of a tools/call — that field is extracted
// verbatim by brace matching in parseToolsCallParams.
func ParseMessage(data []byte) (*Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, newError(KindInvalidRequest, "malformed JSON: %v", err)
	}
	if env.JSONRPC != "2.0" {
		return nil, newError(KindInvalidRequest, `"jsonrpc" must be "2.0"`)
	}
	if env.Result != nil || env.Error != nil {
		return nil, newError(KindInvalidRequest, "server does not accept response bodies")
	}
	if env.Method == "" {
		return nil, newError(KindInvalidRequest, "missing \"method\"")
	}

	msg := &Message{
		ID:        env.ID,
		IsNotify:  env.ID == nil,
		RawMethod: env.Method,
		Method:    MethodUnknown,
	}
	method, known := methodNames[env.Method]
	if !known {
		// Unknown methods parse successfully; the dispatcher turns this
		// into MethodNotFound.
		return msg, nil
	}
	msg.Method = method

	switch method {
	case MethodInitialize:
		var p InitializeParams
		if len(env.Params) > 0 {
			if err := json.Unmarshal(env.Params, &p); err != nil {
				return nil, newError(KindInvalidRequest, "invalid initialize params: %v", err)
			}
		}
		msg.Initialize = &p
	case MethodToolsCall:
		p, err := parseToolsCallParams(env.Params)
		if err != nil {
			return nil, err
		}
		msg.ToolsCall = p
	case MethodNotificationsCancelled:
		var p CancelledParams
		if len(env.Params) > 0 {
			if err := json.Unmarshal(env.Params, &p); err != nil {
				return nil, newError(KindInvalidRequest, "invalid cancelled params: %v", err)
			}
		}
		msg.Cancelled = &p
	case MethodPing, MethodToolsList, MethodNotificationsInitialized:
		// Params are opaque/ignored for these methods.
	}

	return msg, nil
}

// toolsCallShape is used only to recover "name"; "arguments" is re-extracted
// separately, raw, by brace matching.
type toolsCallShape struct {
	Name string `json:"name"`
}

func parseToolsCallParams(params json.RawMessage) (*ToolCallParams, error) {
	var shape toolsCallShape
	if len(params) > 0 {
		if err := json.Unmarshal(params, &shape); err != nil {
			return nil, newError(KindInvalidRequest, "invalid tools/call params: %v", err)
		}
	}
	if shape.Name == "" {
		return nil, newError(KindInvalidArgument, "\"name\" is required")
	}

	args, err := extractRawField(params, "arguments")
	if err != nil {
		return nil, err
	}

	return &ToolCallParams{Name: shape.Name, Arguments: args}, nil
}

// extractRawField locates the top-level field `key` inside a JSON object and
// returns its raw bytes verbatim, by brace/bracket matching rather than
// unmarshal-then-remarshal — this preserves the caller's formatting and
// field order instead of canonicalising it.
func extractRawField(obj json.RawMessage, key string) (json.RawMessage, error) {
	if len(obj) == 0 {
		return nil, nil
	}
	needle := []byte(fmt.Sprintf(`"%s"`, key))
	idx := bytes.Index(obj, needle)
	if idx < 0 {
		return nil, nil
	}

	// Advance past `"key"` and the following colon (skipping whitespace).
	i := idx + len(needle)
	for i < len(obj) && (obj[i] == ' ' || obj[i] == '\t' || obj[i] == '\n' || obj[i] == '\r') {
		i++
	}
	if i >= len(obj) || obj[i] != ':' {
		return nil, newError(KindInvalidRequest, "malformed \"%s\" field", key)
	}
	i++
	for i < len(obj) && (obj[i] == ' ' || obj[i] == '\t' || obj[i] == '\n' || obj[i] == '\r') {
		i++
	}
	if i >= len(obj) {
		return nil, newError(KindInvalidRequest, "malformed \"%s\" field", key)
	}

	start := i
	switch obj[i] {
	case '{', '[':
		open, close := obj[i], matchingClose(obj[i])
		depth := 0
		inString := false
		escaped := false
		for ; i < len(obj); i++ {
			c := obj[i]
			if inString {
				if escaped {
					escaped = false
				} else if c == '\\' {
					escaped = true
				} else if c == '"' {
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case close:
				depth--
				if depth == 0 {
					i++
					return json.RawMessage(trimCopy(obj[start:i])), nil
				}
			}
		}
		return nil, newError(KindInvalidRequest, "unterminated \"%s\" object", key)
	case '"':
		i++
		escaped := false
		for ; i < len(obj); i++ {
			if escaped {
				escaped = false
				continue
			}
			if obj[i] == '\\' {
				escaped = true
				continue
			}
			if obj[i] == '"' {
				i++
				return json.RawMessage(trimCopy(obj[start:i])), nil
			}
		}
		return nil, newError(KindInvalidRequest, "unterminated \"%s\" string", key)
	default:
		// Bare literal (number/bool/null): read until a delimiter.
		for i < len(obj) && obj[i] != ',' && obj[i] != '}' && obj[i] != ']' {
			i++
		}
		return json.RawMessage(trimCopy(obj[start:i])), nil
	}
}

func matchingClose(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

func trimCopy(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return bytes.TrimSpace(out)
}

// --- Serialisers ---

// SerializeSuccess builds a {"jsonrpc":"2.0","id":...,"result":...} reply.
func SerializeSuccess(id *json.RawMessage, result any) ([]byte, error) {
	resp := Response{JSONRPC: "2.0", ID: id}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, newError(KindInternal, "marshal result: %v", err)
		}
		resp.Result = b
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, newError(KindNoSpace, "marshal response: %v", err)
	}
	return b, nil
}

// SerializeError builds a {"jsonrpc":"2.0","id":...,"error":{...}} reply
// from an internal error, using the deterministic Kind -> code/message
// mapping in kindToRPC.
func SerializeError(id *json.RawMessage, err error) ([]byte, error) {
	e := asError(err)
	mapping := kindToRPC(e.Kind)
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: mapping.code, Message: mapping.message},
	}
	b, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return nil, newError(KindNoSpace, "marshal error response: %v", marshalErr)
	}
	return b, nil
}

// SerializeNotification builds a {"jsonrpc":"2.0","method":...,"params":...}
// outbound notification (used for server-originated notifications, if any
// host application needs one).
func SerializeNotification(method string, params any) ([]byte, error) {
	type notification struct {
		JSONRPC string `json:"jsonrpc"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}
	b, err := json.Marshal(notification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return nil, newError(KindInternal, "marshal notification: %v", err)
	}
	return b, nil
}
