package mcp

import (
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// ExecutionState is the three-state machine governing a tool invocation.
type ExecutionState int

const (
	ExecActive ExecutionState = iota
	ExecCancelled
	ExecFinished
)

func (s ExecutionState) String() string {
	switch s {
	case ExecCancelled:
		return "Cancelled"
	case ExecFinished:
		return "Finished"
	default:
		return "Active"
	}
}

// executionSlot is one ExecutionContext. client is non-owning —
// the queue entry that produced this execution already holds the
// client's refcount for the whole chain.
type executionSlot struct {
	token                ExecutionToken
	requestID            *json.RawMessage
	transportMsgID       int64
	client               ClientHandle
	toolName             string
	workerID             int
	state                ExecutionState
	startTimestamp       int64
	cancelTimestamp      int64
	lastMessageTimestamp int64
	span                 trace.Span
}

func (s *executionSlot) allocated() bool { return s.token != 0 }

// ExecutionRegistry is the fixed-size table of in-flight tool invocations,
// sized max_clients * max_client_requests.
type ExecutionRegistry struct {
	mu        sync.Mutex
	slots     []executionSlot
	byToken   map[ExecutionToken]int
	byReqID   map[string]int
	generator TokenGenerator
	now       func() int64
}

// NewExecutionRegistry allocates a registry with the given capacity.
func NewExecutionRegistry(capacity int, generator TokenGenerator) *ExecutionRegistry {
	if generator == nil {
		generator = UUIDTokenGenerator{}
	}
	return &ExecutionRegistry{
		slots:     make([]executionSlot, capacity),
		byToken:   make(map[ExecutionToken]int, capacity),
		byReqID:   make(map[string]int, capacity),
		generator: generator,
		now:       nowMillis,
	}
}

// Add allocates an ExecutionContext bound to client/tool/request.
// Fails NoSpace if the table is full.
func (r *ExecutionRegistry) Add(client ClientHandle, requestID *json.RawMessage, transportMsgID int64, toolName string, workerID int) (ExecutionToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := -1
	for i := range r.slots {
		if !r.slots[i].allocated() {
			free = i
			break
		}
	}
	if free < 0 {
		return 0, newError(KindNoSpace, "execution registry full")
	}

	var token ExecutionToken
	for attempts := 0; attempts < 8; attempts++ {
		candidate := r.generator.Generate(transportMsgID)
		if candidate != 0 {
			if _, taken := r.byToken[candidate]; !taken {
				token = candidate
				break
			}
		}
	}
	if token == 0 {
		return 0, newError(KindInternal, "failed to allocate a unique execution token")
	}

	now := r.now()
	r.slots[free] = executionSlot{
		token:                token,
		requestID:            requestID,
		transportMsgID:       transportMsgID,
		client:               client,
		toolName:             toolName,
		workerID:             workerID,
		state:                ExecActive,
		startTimestamp:       now,
		lastMessageTimestamp: now,
	}
	r.byToken[token] = free
	if requestID != nil {
		r.byReqID[string(*requestID)] = free
	}
	return token, nil
}

// Get returns a copy of the execution slot for token. Fails InvalidArgument
// if the token is zero and NotFound if it is unknown.
func (r *ExecutionRegistry) Get(token ExecutionToken) (executionSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(token)
}

func (r *ExecutionRegistry) getLocked(token ExecutionToken) (executionSlot, error) {
	if token == 0 {
		return executionSlot{}, newError(KindInvalidArgument, "zero execution token")
	}
	idx, ok := r.byToken[token]
	if !ok {
		return executionSlot{}, newError(KindNotFound, "unknown execution token")
	}
	return r.slots[idx], nil
}

// Remove zeroes the slot, freeing it for reuse.
func (r *ExecutionRegistry) Remove(token ExecutionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byToken[token]
	if !ok {
		return newError(KindNotFound, "unknown execution token")
	}
	if rid := r.slots[idx].requestID; rid != nil {
		delete(r.byReqID, string(*rid))
	}
	r.slots[idx] = executionSlot{}
	delete(r.byToken, token)
	return nil
}

// attachSpan records the span covering this execution's callback, so the
// health monitor can annotate it later if the callback runs long enough to
// breach a timeout. Called once, right after Add, before the callback
// dispatches.
func (r *ExecutionRegistry) attachSpan(token ExecutionToken, span trace.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byToken[token]
	if !ok {
		return
	}
	r.slots[idx].span = span
}

// IsCancelled snapshots state == Cancelled, exposed to the user callback
// via Server.IsExecutionCancelled.
func (r *ExecutionRegistry) IsCancelled(token ExecutionToken) (bool, error) {
	s, err := r.Get(token)
	if err != nil {
		return false, err
	}
	return s.state == ExecCancelled, nil
}

// touch updates last_message_timestamp, called on every ToolMessage
// submission while Active.
func (r *ExecutionRegistry) touch(token ExecutionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byToken[token]
	if !ok {
		return newError(KindNotFound, "unknown execution token")
	}
	r.slots[idx].lastMessageTimestamp = r.now()
	return nil
}

// transitionToCancelledByToken moves Active -> Cancelled and stamps
// cancel_timestamp, matched by token (transitionToCancelledByRequestID is
// the request_id variant used for notifications/cancelled).
func (r *ExecutionRegistry) transitionToCancelledByToken(token ExecutionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byToken[token]
	if !ok {
		return newError(KindNotFound, "unknown execution token")
	}
	if r.slots[idx].state == ExecActive {
		r.slots[idx].state = ExecCancelled
		r.slots[idx].cancelTimestamp = r.now()
	}
	return nil
}

// transitionToCancelledByRequestID implements notifications/cancelled:
// Active -> Cancelled keyed by the original request_id.
func (r *ExecutionRegistry) transitionToCancelledByRequestID(requestID json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byReqID[string(requestID)]
	if !ok {
		return newError(KindNotFound, "no execution for request id")
	}
	if r.slots[idx].state == ExecActive {
		r.slots[idx].state = ExecCancelled
		r.slots[idx].cancelTimestamp = r.now()
	}
	return nil
}

// finish moves an execution to Finished. SubmitToolMessage and the
// cancel-ack path do not call it: finalizeExecution removes the slot
// directly.
func (r *ExecutionRegistry) finish(token ExecutionToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byToken[token]
	if !ok {
		return newError(KindNotFound, "unknown execution token")
	}
	r.slots[idx].state = ExecFinished
	return nil
}

// cancelBreach pairs an execution that has outlived cancel_timeout with the
// span covering its still-running callback, so the health monitor can
// annotate that span without a second lookup under a fresh lock.
type cancelBreach struct {
	token ExecutionToken
	span  trace.Span
}

// sweep is the execution half of the health monitor tick. It
// returns the executions that should have their cancel-timeout logged, and
// the tokens newly transitioned to Cancelled this tick (on which a callback
// is now expected to observe cancellation).
func (r *ExecutionRegistry) sweep(cfg Config) (cancelTimeoutExceeded []cancelBreach, newlyCancelled []ExecutionToken) {
	now := r.now()
	execTimeout := cfg.execTimeout().Milliseconds()
	idleTimeout := cfg.idleTimeout().Milliseconds()
	cancelTimeout := cfg.cancelTimeout().Milliseconds()

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		s := &r.slots[i]
		if !s.allocated() || s.state == ExecFinished {
			continue
		}
		if s.state == ExecCancelled {
			if now-s.cancelTimestamp > cancelTimeout {
				cancelTimeoutExceeded = append(cancelTimeoutExceeded, cancelBreach{token: s.token, span: s.span})
			}
			continue
		}
		switch {
		case now-s.startTimestamp > execTimeout:
			s.state = ExecCancelled
			s.cancelTimestamp = now
			newlyCancelled = append(newlyCancelled, s.token)
		case now-s.lastMessageTimestamp > idleTimeout:
			s.state = ExecCancelled
			s.cancelTimestamp = now
			newlyCancelled = append(newlyCancelled, s.token)
		}
	}
	return cancelTimeoutExceeded, newlyCancelled
}
