package mcp

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/gridctl/mcpserverd/pkg/logging"
)

// Server is the root aggregate: it owns the three registries (clients,
// tools, executions), the
// worker pool, and (once Start is called) the health monitor. Create one
// with NewServer, register tools with AddTool, then call Start.
type Server struct {
	cfg        Config
	clients    *ClientRegistry
	tools      *ToolRegistry
	executions *ExecutionRegistry
	workers    *WorkerPool
	health     *healthMonitor
	logger     *slog.Logger
	tracer     trace.Tracer

	mu      sync.Mutex
	started bool
}

// Option customizes a Server at construction time.
type Option func(*Server)

// WithLogger overrides the default discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenGenerator overrides the default UUID-based execution token
// policy — pass TransportMsgIDGenerator{} for predictable, transport-id-
// derived tokens instead.
func WithTokenGenerator(gen TokenGenerator) Option {
	return func(s *Server) {
		s.executions = NewExecutionRegistry(s.cfg.MaxClients*s.cfg.MaxClientRequests, gen)
	}
}

// NewServer constructs a Server from cfg. It allocates every registry up
// front; nothing blocks until Start is called.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		clients:    NewClientRegistry(cfg.MaxClients, cfg.MaxClientRequests),
		tools:      NewToolRegistry(cfg.MaxTools, cfg.ToolNameMaxLen, cfg.ToolInputArgsMaxLen),
		executions: NewExecutionRegistry(cfg.MaxClients*cfg.MaxClientRequests, UUIDTokenGenerator{}),
		logger:     logging.NewDiscardLogger(),
		tracer:     newTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workers = newWorkerPool(s, cfg.RequestWorkers, cfg.queueCapacity(), s.logger)
	s.health = newHealthMonitor(s)
	return s
}

// Start launches the worker pool and health monitor. Calling Start twice
// is a no-op.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.workers.start()
	s.health.start(ctx)
	s.started = true
	return nil
}

// Stop halts the health monitor and worker pool. It does not interrupt
// in-flight tool callbacks — cancellation remains cooperative.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.health.stop()
	s.workers.stop()
	s.started = false
}

// AddTool registers a tool.
func (s *Server) AddTool(record ToolRecord) error {
	return s.tools.Add(record)
}

// RemoveTool unregisters a tool by name. Fails Busy while any execution
// still references it.
func (s *Server) RemoveTool(name string) error {
	return s.tools.Remove(name)
}

// IsExecutionCancelled reports whether the execution behind token has been
// cancelled. A tool callback should poll this periodically.
func (s *Server) IsExecutionCancelled(token ExecutionToken) (bool, error) {
	return s.executions.IsCancelled(token)
}

// SubmitToolMessage is how a tool callback reports progress or completion
// back through its execution token. It may be called from any goroutine,
// not just the one the callback is running on.
func (s *Server) SubmitToolMessage(ctx context.Context, token ExecutionToken, msg ToolMessage) error {
	if token == 0 {
		return newError(KindInvalidArgument, "zero execution token")
	}
	exec, err := s.executions.Get(token)
	if err != nil {
		return err
	}

	switch exec.state {
	case ExecCancelled:
		switch msg.Type {
		case ToolMessageCancelAck:
			return s.finalizeExecution(ctx, exec, ToolMessage{}, false)
		case ToolMessageResponse:
			s.logger.Warn("tool submitted a response for an already-cancelled execution; dropping", "token", token)
			return s.finalizeExecution(ctx, exec, ToolMessage{}, false)
		default:
			return nil
		}

	case ExecActive:
		_ = s.executions.touch(token)
		switch msg.Type {
		case ToolMessagePing:
			return nil
		case ToolMessageResponse:
			return s.finalizeExecution(ctx, exec, msg, true)
		case ToolMessageCancelAck:
			return s.finalizeExecution(ctx, exec, ToolMessage{}, false)
		}
		return nil

	default: // ExecFinished: unreachable in practice, see Remove in finalizeExecution.
		return newError(KindNotFound, "execution already finished")
	}
	return nil
}

// finalizeExecution sends the reply (if any), releases the tool activity
// counter and the client's active_request_count, and removes the
// execution slot — three decrements that must all happen even if the
// transport send fails.
func (s *Server) finalizeExecution(ctx context.Context, exec executionSlot, msg ToolMessage, sendReply bool) error {
	if sendReply {
		result := ToolCallResult{
			Content: []Content{NewTextContent(string(msg.Data))},
			IsError: msg.IsError,
		}
		body, err := SerializeSuccess(exec.requestID, result)
		if err != nil {
			s.logger.Error("failed to serialize tool reply", "error", err)
		} else if transport, binding, lookupErr := s.clients.TransportOf(exec.client); lookupErr == nil {
			if sendErr := transport.Send(ctx, TransportMessage{Binding: binding, MsgID: exec.transportMsgID, JSON: body}); sendErr != nil {
				s.logger.Warn("transport send failed for tool reply", "error", sendErr)
			}
		}
	}

	_ = s.clients.ReleaseRequestSlot(exec.client)
	s.tools.Release(exec.toolName)
	_ = s.executions.Remove(exec.token)
	return nil
}

// Snapshot exposes read-only counts for diagnostics (the serve command's
// SIGUSR1 status dump and tests), never part of the wire protocol.
type Snapshot struct {
	Clients int
}

func (s *Server) Snapshot() Snapshot {
	return Snapshot{Clients: s.clients.Count()}
}

// Tools copies every registered tool's metadata, for the serve command's
// SIGUSR1 status dump. Never part of the wire protocol (that's tools/list's job).
func (s *Server) Tools() []Tool {
	return s.tools.List()
}

// ToolActivity reports a tool's current activity counter, for the Busy
// column of the serve command's SIGUSR1 status dump.
func (s *Server) ToolActivity(name string) (int, error) {
	return s.tools.ActivityCounter(name)
}
