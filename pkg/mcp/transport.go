package mcp

import "context"

// TransportMessage is a framed JSON-RPC payload bound for one client, as
// handed to a transport binding's Send.
type TransportMessage struct {
	// Binding identifies the transport-side channel this message belongs
	// to; opaque to the core.
	Binding TransportBinding
	// MsgID is an opaque integer the transport uses to correlate this
	// reply with the request that produced it.
	MsgID int64
	// JSON is the fully serialised JSON-RPC envelope.
	JSON []byte
}

// TransportBinding is the opaque handle a ClientContext stores back to the
// transport channel that owns it. Transport implementations define their
// own concrete type; the core never inspects it beyond passing it back.
type TransportBinding any

//go:generate mockgen -destination=mock_transport_test.go -package=mcp . Transport

// Transport is the contract every wire binding (stdio, HTTP, SSE, a mock
// for tests) must satisfy. The core never implements a transport itself,
// it only calls out to one.
type Transport interface {
	// Send enqueues the framed JSON for delivery and takes ownership of
	// msg.JSON. It must not be called while any registry mutex is held.
	Send(ctx context.Context, msg TransportMessage) error
	// Disconnect tears down the channel identified by binding, draining
	// any undelivered data. Called from the client registry's put() when
	// the last reference to a client drops.
	Disconnect(binding TransportBinding) error
}

// ToolEvent distinguishes why a tool callback is being invoked.
type ToolEvent int

const (
	// EventInvoke is a normal tools/call dispatch.
	EventInvoke ToolEvent = iota
	// EventCancelRequest notifies a running callback that cancellation
	// was requested; well-behaved callbacks should observe this (or poll
	// IsExecutionCancelled) and wind down. The core never calls a
	// callback a second time for the same token with this event today —
	// it is reserved for callback implementations that register their
	// own out-of-band cancellation channel.
	EventCancelRequest
)

// ToolCallback is the function signature every registered tool must
// implement. It runs on a worker goroutine and may block arbitrarily; it is
// expected to poll IsExecutionCancelled periodically and must eventually
// call SubmitToolMessage with the same token exactly once with a final
// message (Response or CancelAck).
type ToolCallback func(ctx context.Context, event ToolEvent, argumentsJSON []byte, token ExecutionToken) error
