package mcp

import (
	"sync"
	"time"
)

// LifecycleState is the four-state machine governing a client session.
type LifecycleState int

const (
	StateDeinitialized LifecycleState = iota
	StateNew
	StateInitializing
	StateInitialized
)

func (s LifecycleState) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateInitializing:
		return "Initializing"
	case StateInitialized:
		return "Initialized"
	default:
		return "Deinitialized"
	}
}

// ClientHandle is a small, copyable reference to a ClientRegistry slot: an
// index plus a generation counter. The generation defends against
// use-after-free if a slot is reused between the moment a caller captured
// the handle and the moment it dereferences it — the registry rejects a
// handle whose generation no longer matches the slot's.
type ClientHandle struct {
	index      int
	generation uint64
}

// clientSlot is one ClientContext. All fields are guarded by
// ClientRegistry.mu; every handle the registry hands out has already had
// its refcount incremented by the method that produced it.
type clientSlot struct {
	generation           uint64
	state                LifecycleState
	refcount             int32
	activeRequestCount    int32
	lastMessageTimestamp int64 // unix millis
	transport            Transport
	binding              TransportBinding
}

func (s *clientSlot) free() bool {
	return s.state == StateDeinitialized && s.refcount == 0
}

// ClientRegistry is the bounded array of client sessions: add/get/put
// mirror RAII, remove is two-phase (mark Deinitialized,
// lazy zero on last ref drop) so an in-flight handler never dereferences
// freed state.
type ClientRegistry struct {
	mu          sync.Mutex
	slots       []clientSlot
	maxRequests int32
	now         func() int64
}

// NewClientRegistry allocates a registry with the given capacity.
func NewClientRegistry(capacity, maxRequestsPerClient int) *ClientRegistry {
	return &ClientRegistry{
		slots:       make([]clientSlot, capacity),
		maxRequests: int32(maxRequestsPerClient),
		now:         nowMillis,
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// Add takes the first free slot, binds it to transport/binding, sets state
// New and refcount 1.
func (r *ClientRegistry) Add(transport Transport, binding TransportBinding) (ClientHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		s := &r.slots[i]
		if !s.free() {
			continue
		}
		s.generation++
		s.state = StateNew
		s.refcount = 1
		s.activeRequestCount = 0
		s.lastMessageTimestamp = r.now()
		s.transport = transport
		s.binding = binding
		return ClientHandle{index: i, generation: s.generation}, nil
	}
	return ClientHandle{}, newError(KindNoSpace, "client registry full")
}

// GetByTransportBinding finds the client owned by the given binding and
// returns a +1 handle. Used by transports that only know their own binding.
func (r *ClientRegistry) GetByTransportBinding(binding TransportBinding) (ClientHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		s := &r.slots[i]
		if s.state == StateDeinitialized || s.binding != binding {
			continue
		}
		s.refcount++
		return ClientHandle{index: i, generation: s.generation}, nil
	}
	return ClientHandle{}, newError(KindNotFound, "no client for transport binding")
}

func (r *ClientRegistry) lookupLocked(h ClientHandle) (*clientSlot, error) {
	if h.index < 0 || h.index >= len(r.slots) {
		return nil, newError(KindNotFound, "invalid client handle")
	}
	s := &r.slots[h.index]
	if s.generation != h.generation {
		return nil, newError(KindNotFound, "stale client handle")
	}
	return s, nil
}

// Get increments the refcount of an already-allocated (non-Deinitialized)
// slot.
func (r *ClientRegistry) Get(h ClientHandle) (ClientHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.lookupLocked(h)
	if err != nil {
		return ClientHandle{}, err
	}
	if s.state == StateDeinitialized {
		return ClientHandle{}, newError(KindNotFound, "client deinitialized")
	}
	s.refcount++
	return h, nil
}

// Put releases one reference. On transition to zero it disconnects the
// transport and zeroes the slot (bumping the generation so stale handles
// are rejected). Disconnect is invoked without the registry mutex held.
func (r *ClientRegistry) Put(h ClientHandle) error {
	r.mu.Lock()
	s, err := r.lookupLocked(h)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	s.refcount--
	if s.refcount > 0 {
		r.mu.Unlock()
		return nil
	}
	transport, binding := s.transport, s.binding
	r.mu.Unlock()

	var disconnectErr error
	if transport != nil {
		disconnectErr = transport.Disconnect(binding)
	}

	r.mu.Lock()
	if s2, err := r.lookupLocked(h); err == nil && s2.refcount <= 0 {
		*s2 = clientSlot{generation: s2.generation + 1}
	}
	r.mu.Unlock()

	return disconnectErr
}

// Remove marks the slot Deinitialized and drops the creation-time
// reference; the slot is only actually zeroed once the last outstanding Put
// fires (see Put).
func (r *ClientRegistry) Remove(h ClientHandle) error {
	r.mu.Lock()
	s, err := r.lookupLocked(h)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	s.state = StateDeinitialized
	r.mu.Unlock()

	return r.Put(h)
}

// State returns the current lifecycle state.
func (r *ClientRegistry) State(h ClientHandle) (LifecycleState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return StateDeinitialized, err
	}
	return s.state, nil
}

// Transition moves the slot from `from` to `to`, failing PermissionDenied
// if the current state does not match `from`.
func (r *ClientRegistry) Transition(h ClientHandle, from, to LifecycleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return err
	}
	if s.state != from {
		return newError(KindPermissionDenied, "cannot transition from %s to %s", s.state, to)
	}
	s.state = to
	return nil
}

// Touch refreshes last_message_timestamp, used on every inbound message
// attributable to this client.
func (r *ClientRegistry) Touch(h ClientHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return err
	}
	s.lastMessageTimestamp = r.now()
	return nil
}

// AcquireRequestSlot enforces the per-client concurrency cap: fails Busy
// if active_request_count is already at the configured maximum,
// otherwise increments it.
func (r *ClientRegistry) AcquireRequestSlot(h ClientHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return err
	}
	if s.activeRequestCount >= r.maxRequests {
		return newError(KindBusy, "client request limit reached")
	}
	s.activeRequestCount++
	return nil
}

// ReleaseRequestSlot decrements active_request_count; called on every
// Execution teardown path (success, error rollback, or cancellation).
func (r *ClientRegistry) ReleaseRequestSlot(h ClientHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return err
	}
	if s.activeRequestCount > 0 {
		s.activeRequestCount--
	}
	return nil
}

// ActiveRequestCount reports the invariant (P3) value for tests/diagnostics.
func (r *ClientRegistry) ActiveRequestCount(h ClientHandle) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return 0, err
	}
	return int(s.activeRequestCount), nil
}

// sweepIdleClients is the client half of the health monitor tick: any
// non-Deinitialized client whose last message predates clientTimeout is
// removed.
func (r *ClientRegistry) sweepIdleClients(clientTimeout time.Duration) []ClientHandle {
	cutoff := r.now() - clientTimeout.Milliseconds()

	r.mu.Lock()
	var stale []ClientHandle
	for i := range r.slots {
		s := &r.slots[i]
		if s.state != StateDeinitialized && s.lastMessageTimestamp < cutoff {
			stale = append(stale, ClientHandle{index: i, generation: s.generation})
		}
	}
	r.mu.Unlock()

	for _, h := range stale {
		_ = r.Remove(h)
	}
	return stale
}

// TransportOf returns the transport and binding a client was registered
// with, so the dispatcher/submit_tool_message path can call Send without
// ever holding the registry mutex during the call.
func (r *ClientRegistry) TransportOf(h ClientHandle) (Transport, TransportBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := r.lookupLocked(h)
	if err != nil {
		return nil, nil, err
	}
	return s.transport, s.binding, nil
}

// Count reports the number of allocated (non-Deinitialized) client slots.
func (r *ClientRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for i := range r.slots {
		if r.slots[i].state != StateDeinitialized {
			n++
		}
	}
	return n
}
