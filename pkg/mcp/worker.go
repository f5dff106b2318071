package mcp

import (
	"context"
	"log/slog"
)

// QueueMsg is one entry on the bounded request queue: it
// carries the client reference (already +1'd by the enqueuer), the
// transport message id for routing the reply, and the parsed message.
type QueueMsg struct {
	Client         ClientHandle
	TransportMsgID int64
	Parsed         *Message
}

// WorkerPool is a fixed set of goroutines draining a single bounded
// request queue. initialize is never enqueued here — it runs
// inline on the calling goroutine to avoid a deadlock where every worker
// is blocked on calls from clients that have not yet initialized.
type WorkerPool struct {
	queue   chan QueueMsg
	server  *Server
	logger  *slog.Logger
	workers int
	done    chan struct{}
}

func newWorkerPool(server *Server, workers, capacity int, logger *slog.Logger) *WorkerPool {
	return &WorkerPool{
		queue:   make(chan QueueMsg, capacity),
		server:  server,
		logger:  logger,
		workers: workers,
		done:    make(chan struct{}),
	}
}

// start launches the worker goroutines. Must only be called once.
func (p *WorkerPool) start() {
	for i := 0; i < p.workers; i++ {
		go p.run(i)
	}
}

// stop signals workers to exit; messages still on the queue may be left
// unprocessed. It does not cancel
// in-flight tool callbacks — cancellation is cooperative, driven by
// IsExecutionCancelled polling inside the callback itself.
func (p *WorkerPool) stop() {
	close(p.done)
}

// enqueue is a non-blocking send; a full queue fails NoMemory rather than
// blocking the caller.
func (p *WorkerPool) enqueue(msg QueueMsg) error {
	select {
	case p.queue <- msg:
		return nil
	default:
		return newError(KindNoMemory, "request queue full")
	}
}

func (p *WorkerPool) run(workerID int) {
	for {
		select {
		case <-p.done:
			return
		case msg, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(workerID, msg)
		}
	}
}

func (p *WorkerPool) handle(workerID int, msg QueueMsg) {
	// Workers never block on the transport for more than a single send
	// call, and never invoke the tool callback while holding any registry
	// mutex — see "Shared-resource policy".
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic", "worker", workerID, "panic", r)
		}
		_ = p.server.clients.Put(msg.Client)
	}()

	ctx := context.Background()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker recovered from panic", "worker", workerID, "panic", r)
				err = newError(KindInternal, "panic in handler: %v", r)
			}
		}()
		return p.server.dispatchQueued(ctx, workerID, msg)
	}()
	if err == nil || msg.Parsed.IsNotify {
		// Notifications never produce replies; their errors are logged
		// and dropped.
		if err != nil {
			p.logger.Warn("notification handler error", "method", msg.Parsed.RawMethod, "error", err)
		}
		return
	}

	body, serErr := SerializeError(msg.Parsed.ID, err)
	if serErr != nil {
		p.logger.Error("failed to serialize error reply", "error", serErr)
		return
	}
	transport, binding, lookupErr := p.server.clients.TransportOf(msg.Client)
	if lookupErr != nil {
		return
	}
	if sendErr := transport.Send(ctx, TransportMessage{Binding: binding, MsgID: msg.TransportMsgID, JSON: body}); sendErr != nil {
		p.logger.Warn("transport send failed", "error", sendErr)
	}
}
