package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 5: a client that stops sending messages for longer
// than client_timeout is aged out by the health monitor and its transport
// is disconnected.
func TestScenario_IdleClientTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ClientTimeoutMS = 20
	cfg.HealthCheckIntervalMS = 5

	s := NewServer(cfg)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	tr := newFakeTransport()
	binding := TransportBinding("idle-conn")
	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{}}}`
	_, err := s.HandleRequest(context.Background(), tr, binding, 1, []byte(initReq))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(tr.disconnected) == 1
	}, time.Second, 5*time.Millisecond, "idle client should be disconnected by the health monitor")

	_, err = s.clients.GetByTransportBinding(binding)
	require.Error(t, err)
	assert.Equal(t, KindNotFound, asError(err).Kind)
}

func TestHealthMonitor_CancelsStuckExecutionOnExecTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ToolExecTimeoutMS = 5
	cfg.ToolCancelTimeoutMS = 5
	cfg.HealthCheckIntervalMS = 5
	cfg.ClientTimeoutMS = 10_000

	s := NewServer(cfg)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	tr := newFakeTransport()
	binding := TransportBinding("stuck-conn")
	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{}}}`
	_, err := s.HandleRequest(context.Background(), tr, binding, 1, []byte(initReq))
	require.NoError(t, err)
	_, err = s.HandleRequest(context.Background(), tr, binding, 2, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)

	block := make(chan struct{})
	var token ExecutionToken
	tokenCh := make(chan ExecutionToken, 1)
	require.NoError(t, s.AddTool(ToolRecord{
		Name: "stuck",
		Callback: func(ctx context.Context, event ToolEvent, args []byte, tok ExecutionToken) error {
			tokenCh <- tok
			<-block
			return nil
		},
	}))
	defer close(block)

	callReq := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"stuck","arguments":{}}}`
	_, err = s.HandleRequest(context.Background(), tr, binding, 3, []byte(callReq))
	require.NoError(t, err)

	select {
	case token = <-tokenCh:
	case <-time.After(time.Second):
		t.Fatal("tool callback never started")
	}

	// The health monitor should cancel the execution on exec_timeout even
	// though the callback never returns or calls SubmitToolMessage.
	require.Eventually(t, func() bool {
		cancelled, getErr := s.IsExecutionCancelled(token)
		return getErr == nil && cancelled
	}, time.Second, 5*time.Millisecond)
}
