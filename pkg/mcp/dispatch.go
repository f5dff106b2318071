package mcp

import (
	"context"
	"encoding/json"
)

// HandleRequest is the transport-facing entry point. It parses the
// envelope and either dispatches inline —
// for initialize, for unknown methods, and for malformed input, so a
// JSON-RPC error can always be returned immediately — or looks up the
// owning client and enqueues the parsed message for a worker. It reports
// back the detected Method for the transport's own bookkeeping.
func (s *Server) HandleRequest(ctx context.Context, transport Transport, binding TransportBinding, transportMsgID int64, data []byte) (Method, error) {
	if s.cfg.MaxMessageSize > 0 && len(data) > s.cfg.MaxMessageSize {
		err := newError(KindNoSpace, "message exceeds %d bytes", s.cfg.MaxMessageSize)
		body, serErr := SerializeError(nil, err)
		if serErr == nil {
			_ = transport.Send(ctx, TransportMessage{Binding: binding, MsgID: transportMsgID, JSON: body})
		}
		return MethodUnknown, err
	}

	msg, err := ParseMessage(data)
	if err != nil {
		body, serErr := SerializeError(nil, err)
		if serErr == nil {
			_ = transport.Send(ctx, TransportMessage{Binding: binding, MsgID: transportMsgID, JSON: body})
		}
		return MethodUnknown, err
	}

	switch msg.Method {
	case MethodInitialize:
		return MethodInitialize, s.handleInitialize(ctx, transport, binding, transportMsgID, msg)

	case MethodUnknown:
		err := newError(KindMethodNotFound, "method %q not found", msg.RawMethod)
		if !msg.IsNotify {
			s.replyError(ctx, transport, binding, transportMsgID, msg.ID, err)
		}
		return MethodUnknown, err

	default:
		client, err := s.clients.GetByTransportBinding(binding)
		if err != nil {
			if !msg.IsNotify {
				s.replyError(ctx, transport, binding, transportMsgID, msg.ID, err)
			}
			return msg.Method, err
		}
		if err := s.workers.enqueue(QueueMsg{Client: client, TransportMsgID: transportMsgID, Parsed: msg}); err != nil {
			_ = s.clients.Put(client)
			if !msg.IsNotify {
				s.replyError(ctx, transport, binding, transportMsgID, msg.ID, err)
			}
			return msg.Method, err
		}
		return msg.Method, nil
	}
}

func (s *Server) replyError(ctx context.Context, transport Transport, binding TransportBinding, transportMsgID int64, id *json.RawMessage, err error) {
	body, serErr := SerializeError(id, err)
	if serErr != nil {
		s.logger.Error("failed to serialize error reply", "error", serErr)
		return
	}
	if sendErr := transport.Send(ctx, TransportMessage{Binding: binding, MsgID: transportMsgID, JSON: body}); sendErr != nil {
		s.logger.Warn("transport send failed", "error", sendErr)
	}
}

// handleInitialize runs inline on the calling goroutine (never queued) to
// avoid a deadlock where every worker is busy with calls from clients that
// have not yet initialized.
func (s *Server) handleInitialize(ctx context.Context, transport Transport, binding TransportBinding, transportMsgID int64, msg *Message) error {
	if msg.Initialize == nil || msg.Initialize.ProtocolVersion != ProtocolVersion {
		got := ""
		if msg.Initialize != nil {
			got = msg.Initialize.ProtocolVersion
		}
		err := newError(KindInvalidArgument, "unsupported protocolVersion %q, require %q", got, ProtocolVersion)
		if !msg.IsNotify {
			s.replyError(ctx, transport, binding, transportMsgID, msg.ID, err)
		}
		return err
	}

	client, err := s.clients.Add(transport, binding)
	if err != nil {
		s.replyError(ctx, transport, binding, transportMsgID, msg.ID, err)
		return err
	}

	if err := s.clients.Transition(client, StateNew, StateInitializing); err != nil {
		_ = s.clients.Remove(client)
		s.replyError(ctx, transport, binding, transportMsgID, msg.ID, err)
		return err
	}

	result := InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: s.cfg.ServerInfoName, Version: s.cfg.ServerInfoVersion},
		Capabilities:    Capabilities{Tools: &ToolsCapability{ListChanged: false}},
	}
	body, err := SerializeSuccess(msg.ID, result)
	if err != nil {
		_ = s.clients.Remove(client)
		return err
	}
	if sendErr := transport.Send(ctx, TransportMessage{Binding: binding, MsgID: transportMsgID, JSON: body}); sendErr != nil {
		// A transport send failure after a registry update is a logged
		// warning; the client stays allocated and will be aged
		// out by the health monitor if it never follows up.
		s.logger.Warn("transport send failed for initialize reply", "error", sendErr)
	}
	return nil
}

// dispatchQueued is invoked by a worker goroutine for every method except
// initialize.
func (s *Server) dispatchQueued(ctx context.Context, workerID int, qmsg QueueMsg) error {
	msg := qmsg.Parsed
	client := qmsg.Client

	_ = s.clients.Touch(client)

	switch msg.Method {
	case MethodNotificationsInitialized:
		return s.clients.Transition(client, StateInitializing, StateInitialized)

	case MethodNotificationsCancelled:
		if msg.Cancelled == nil || len(msg.Cancelled.RequestID) == 0 {
			return newError(KindInvalidArgument, "notifications/cancelled requires requestId")
		}
		return s.executions.transitionToCancelledByRequestID(msg.Cancelled.RequestID)

	case MethodPing:
		if err := s.requireInitialized(client); err != nil {
			return err
		}
		body, err := SerializeSuccess(msg.ID, struct{}{})
		if err != nil {
			return err
		}
		return s.sendToClient(ctx, client, qmsg.TransportMsgID, body)

	case MethodToolsList:
		if err := s.requireInitialized(client); err != nil {
			return err
		}
		body, err := SerializeSuccess(msg.ID, ToolsListResult{Tools: s.tools.List()})
		if err != nil {
			return err
		}
		return s.sendToClient(ctx, client, qmsg.TransportMsgID, body)

	case MethodToolsCall:
		return s.handleToolsCall(ctx, client, msg, qmsg.TransportMsgID, workerID)

	default:
		return newError(KindMethodNotFound, "method %q not found", msg.RawMethod)
	}
}

// handleToolsCall is the central fan-out point: client ->
// tool -> execution, in that lock order, releasing every mutex before the
// callback runs.
func (s *Server) handleToolsCall(ctx context.Context, client ClientHandle, msg *Message, transportMsgID int64, workerID int) error {
	if err := s.requireInitialized(client); err != nil {
		return err
	}
	params := msg.ToolsCall

	if err := s.clients.AcquireRequestSlot(client); err != nil {
		return err
	}

	record, err := s.tools.Lookup(params.Name)
	if err != nil {
		_ = s.clients.ReleaseRequestSlot(client)
		return err
	}

	if err := s.tools.CheckArgumentsSize(params.Arguments); err != nil {
		s.tools.Release(params.Name)
		_ = s.clients.ReleaseRequestSlot(client)
		return err
	}

	if err := s.tools.ValidateArguments(params.Name, params.Arguments); err != nil {
		s.tools.Release(params.Name)
		_ = s.clients.ReleaseRequestSlot(client)
		return err
	}

	token, err := s.executions.Add(client, msg.ID, transportMsgID, params.Name, workerID)
	if err != nil {
		s.tools.Release(params.Name)
		_ = s.clients.ReleaseRequestSlot(client)
		return err
	}

	spanCtx, span := s.tracer.Start(ctx, params.Name)
	s.executions.attachSpan(token, span)
	cbErr := record.Callback(spanCtx, EventInvoke, params.Arguments, token)
	span.End()

	if cbErr != nil {
		_ = s.executions.Remove(token)
		s.tools.Release(params.Name)
		_ = s.clients.ReleaseRequestSlot(client)
		return asError(cbErr)
	}
	return nil
}

func (s *Server) requireInitialized(client ClientHandle) error {
	state, err := s.clients.State(client)
	if err != nil {
		return err
	}
	if state != StateInitialized {
		return newError(KindAccessDenied, "client not initialized")
	}
	return nil
}

func (s *Server) sendToClient(ctx context.Context, client ClientHandle, transportMsgID int64, body []byte) error {
	transport, binding, err := s.clients.TransportOf(client)
	if err != nil {
		return err
	}
	return transport.Send(ctx, TransportMessage{Binding: binding, MsgID: transportMsgID, JSON: body})
}
