package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionRegistry_AddGetRemove(t *testing.T) {
	r := NewExecutionRegistry(2, TransportMsgIDGenerator{})
	reqID := json.RawMessage("1")

	token, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)
	assert.NotZero(t, token)

	slot, err := r.Get(token)
	require.NoError(t, err)
	assert.Equal(t, ExecActive, slot.state)
	assert.Equal(t, "echo", slot.toolName)

	require.NoError(t, r.Remove(token))
	_, err = r.Get(token)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, asError(err).Kind)
}

func TestExecutionRegistry_AddFullFailsNoSpace(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	reqID := json.RawMessage("1")

	_, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)

	reqID2 := json.RawMessage("2")
	_, err = r.Add(ClientHandle{}, &reqID2, 2, "echo", 0)
	require.Error(t, err)
	assert.Equal(t, KindNoSpace, asError(err).Kind)
}

func TestExecutionRegistry_GetZeroTokenIsInvalidArgument(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	_, err := r.Get(0)
	require.Error(t, err)
	assert.Equal(t, KindInvalidArgument, asError(err).Kind)
}

func TestExecutionRegistry_CancelByToken(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	reqID := json.RawMessage("1")
	token, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)

	require.NoError(t, r.transitionToCancelledByToken(token))
	cancelled, err := r.IsCancelled(token)
	require.NoError(t, err)
	assert.True(t, cancelled)

	// Idempotent: cancelling an already-cancelled execution is a no-op, not
	// an error, and does not re-stamp cancel_timestamp.
	slotBefore, _ := r.Get(token)
	require.NoError(t, r.transitionToCancelledByToken(token))
	slotAfter, _ := r.Get(token)
	assert.Equal(t, slotBefore.cancelTimestamp, slotAfter.cancelTimestamp)
}

func TestExecutionRegistry_CancelByRequestID(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	reqID := json.RawMessage("42")
	token, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)

	require.NoError(t, r.transitionToCancelledByRequestID(reqID))
	cancelled, err := r.IsCancelled(token)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestExecutionRegistry_CancelByRequestID_NotFound(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	err := r.transitionToCancelledByRequestID(json.RawMessage("999"))
	require.Error(t, err)
	assert.Equal(t, KindNotFound, asError(err).Kind)
}

func TestExecutionRegistry_Sweep_ExecTimeout(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	var clock int64 = 1_000_000
	r.now = func() int64 { return clock }

	reqID := json.RawMessage("1")
	token, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)

	cfg := DefaultConfig()
	clock += cfg.ToolExecTimeoutMS + 1

	_, newlyCancelled := r.sweep(cfg)
	require.Contains(t, newlyCancelled, token)

	cancelled, err := r.IsCancelled(token)
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestExecutionRegistry_Sweep_IdleTimeout(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	var clock int64 = 1_000_000
	r.now = func() int64 { return clock }

	reqID := json.RawMessage("1")
	token, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)

	cfg := DefaultConfig()
	clock += cfg.ToolIdleTimeoutMS + 1

	_, newlyCancelled := r.sweep(cfg)
	assert.Contains(t, newlyCancelled, token)
}

func TestExecutionRegistry_Sweep_CancelTimeoutExceeded(t *testing.T) {
	r := NewExecutionRegistry(1, TransportMsgIDGenerator{})
	var clock int64 = 1_000_000
	r.now = func() int64 { return clock }

	reqID := json.RawMessage("1")
	token, err := r.Add(ClientHandle{}, &reqID, 1, "echo", 0)
	require.NoError(t, err)
	require.NoError(t, r.transitionToCancelledByToken(token))

	cfg := DefaultConfig()
	clock += cfg.ToolCancelTimeoutMS + 1

	exceeded, _ := r.sweep(cfg)
	require.Len(t, exceeded, 1)
	assert.Equal(t, token, exceeded[0].token)
}

func TestExecutionRegistry_TokenGenerators(t *testing.T) {
	v1 := TransportMsgIDGenerator{}
	assert.Equal(t, ExecutionToken(7), v1.Generate(7))
	assert.Equal(t, ExecutionToken(1), v1.Generate(0))

	v2 := UUIDTokenGenerator{}
	a := v2.Generate(0)
	b := v2.Generate(0)
	assert.NotZero(t, a)
	assert.NotZero(t, b)
	assert.NotEqual(t, a, b)
}
