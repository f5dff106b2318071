package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// TestHandleInitialize_SurvivesTransportSendFailure exercises the
// gomock-generated MockTransport for a case the fakeTransport can't express
// cheaply: a Send that returns an error. A failed initialize reply must be
// logged and swallowed, never panic the caller.
func TestHandleInitialize_SurvivesTransportSendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTr := NewMockTransport(ctrl)
	mockTr.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(errors.New("connection reset")).
		Times(1)

	s := NewServer(testConfig())
	binding := TransportBinding("mock-conn")
	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{}}}`

	_, err := s.HandleRequest(context.Background(), mockTr, binding, 1, []byte(initReq))
	require.NoError(t, err, "a transport send failure must not surface as a handler error")

	// The client must still have been registered despite the failed send.
	client, err := s.clients.GetByTransportBinding(binding)
	require.NoError(t, err)
	require.NoError(t, s.clients.Put(client))
}

func TestServer_RemoveToolBusyWhileExecuting(t *testing.T) {
	s := NewServer(testConfig())
	started := make(chan struct{})
	release := make(chan struct{})

	require.NoError(t, s.AddTool(ToolRecord{
		Name: "slow",
		Callback: func(ctx context.Context, event ToolEvent, args []byte, token ExecutionToken) error {
			close(started)
			<-release
			return s.SubmitToolMessage(ctx, token, ToolMessage{Type: ToolMessageResponse, Data: []byte("done")})
		},
	}))
	defer close(release)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Stop)

	tr := newFakeTransport()
	binding := TransportBinding("c1")
	_, err := s.HandleRequest(context.Background(), tr, binding, 1, []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","capabilities":{}}}`))
	require.NoError(t, err)
	_, err = s.HandleRequest(context.Background(), tr, binding, 2, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)

	_, err = s.HandleRequest(context.Background(), tr, binding, 3, []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"slow","arguments":{}}}`))
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("tool never started")
	}

	err = s.RemoveTool("slow")
	require.Error(t, err)
	require.Equal(t, KindBusy, asError(err).Kind)
}

func TestServer_SubmitToolMessage_ZeroTokenRejected(t *testing.T) {
	s := NewServer(testConfig())
	err := s.SubmitToolMessage(context.Background(), 0, ToolMessage{})
	require.Error(t, err)
	require.Equal(t, KindInvalidArgument, asError(err).Kind)
}
