package subprocess

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

func newTestClient() *Client {
	return &Client{
		upstream:  "echo",
		logger:    logging.NewDiscardLogger(),
		responses: make(map[int64]chan *response),
	}
}

func TestClient_ReadResponses_RoutesByID(t *testing.T) {
	c := newTestClient()

	respCh := make(chan *response, 1)
	c.responsesMu.Lock()
	c.responses[1] = respCh
	c.responsesMu.Unlock()

	result, _ := json.Marshal(map[string]string{"status": "ok"})
	idBytes := json.RawMessage(`1`)
	resp := response{JSONRPC: "2.0", ID: &idBytes, Result: result}
	line, _ := json.Marshal(resp)

	pr, pw := io.Pipe()
	c.stdout = pr

	done := make(chan struct{})
	go func() { c.readResponses(); close(done) }()

	_, err := pw.Write(append(line, '\n'))
	require.NoError(t, err)
	pw.Close()

	select {
	case got := <-respCh:
		assert.Nil(t, got.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for routed response")
	}
	<-done
}

func TestClient_ReadResponses_NonJSONIsLoggedNotFatal(t *testing.T) {
	c := newTestClient()
	pr, pw := io.Pipe()
	c.stdout = pr

	done := make(chan struct{})
	go func() { c.readResponses(); close(done) }()

	_, _ = pw.Write([]byte("DEBUG: child booting\nnot json either\n"))
	pw.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readResponses did not exit on EOF")
	}
}

func TestClient_ReadResponses_UnmatchedIDLeavesChannelRegistered(t *testing.T) {
	c := newTestClient()
	respCh := make(chan *response, 1)
	c.responsesMu.Lock()
	c.responses[1] = respCh
	c.responsesMu.Unlock()

	idBytes := json.RawMessage(`99`)
	resp := response{JSONRPC: "2.0", ID: &idBytes, Result: json.RawMessage(`{}`)}
	line, _ := json.Marshal(resp)

	pr, pw := io.Pipe()
	c.stdout = pr

	done := make(chan struct{})
	go func() { c.readResponses(); close(done) }()
	_, _ = pw.Write(append(line, '\n'))
	pw.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("readResponses did not exit on EOF")
	}

	select {
	case <-respCh:
		t.Fatal("did not expect a response routed to ID 1")
	default:
	}
	c.responsesMu.Lock()
	_, exists := c.responses[1]
	c.responsesMu.Unlock()
	assert.True(t, exists)
}

func TestClient_Send_NotStarted(t *testing.T) {
	c := newTestClient()
	err := c.send(request{JSONRPC: "2.0", Method: "ping"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not started")
}

func TestClient_Call_TimesOutOnDeadContext(t *testing.T) {
	stdinR, stdinW := io.Pipe()
	stdoutR, _ := io.Pipe()

	c := newTestClient()
	c.started = true
	c.stdin = stdinW
	c.stdout = stdoutR

	// Drain stdin so send() doesn't block.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := stdinR.Read(buf); err != nil {
				return
			}
		}
	}()
	go c.readResponses()
	defer func() { stdinR.Close(); stdinW.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var result json.RawMessage
	err := c.call(ctx, "tools/list", nil, &result)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Close_NotStarted(t *testing.T) {
	c := newTestClient()
	assert.NoError(t, c.Close())
}

func TestNew_RequiresCommand(t *testing.T) {
	_, err := New(config.ToolConfig{Name: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")
}

func TestNew_DefaultsUpstreamToName(t *testing.T) {
	c, err := New(config.ToolConfig{Name: "echo", Command: []string{"cat"}})
	require.NoError(t, err)
	assert.Equal(t, "echo", c.upstream)
}

func TestNew_UpstreamOverride(t *testing.T) {
	c, err := New(config.ToolConfig{Name: "alias", Command: []string{"cat"}, Upstream: "real-name"})
	require.NoError(t, err)
	assert.Equal(t, "real-name", c.upstream)
}

func TestNew_EnvMerge(t *testing.T) {
	c, err := New(config.ToolConfig{
		Name:    "echo",
		Command: []string{"cat"},
		Env:     map[string]string{"CUSTOM_VAR": "value1"},
	})
	require.NoError(t, err)

	found := false
	for _, e := range c.env {
		if e == "CUSTOM_VAR=value1" {
			found = true
		}
	}
	assert.True(t, found)
}

// fakeTransport is a minimal mcp.Transport recording every Send so tests
// can assert on the JSON-RPC replies the core writes back.
type fakeTransport struct {
	mu  sync.Mutex
	msgs []mcp.TransportMessage
}

func (f *fakeTransport) Send(ctx context.Context, msg mcp.TransportMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeTransport) Disconnect(binding mcp.TransportBinding) error { return nil }

func (f *fakeTransport) last() (mcp.TransportMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return mcp.TransportMessage{}, false
	}
	return f.msgs[len(f.msgs)-1], true
}

// TestClient_Callback_FullRoundTrip drives a real *mcp.Server through
// initialize and a tools/call dispatch, backed by "cat" as the child
// process: cat echoes whatever it's sent, so the subprocess round-trip
// (initialize -> notifications/initialized -> tools/call) completes
// end-to-end even though "cat" understands none of it, mirroring the
// teacher's own cat-as-fake-server integration test.
func TestClient_Callback_FullRoundTrip(t *testing.T) {
	server := mcp.NewServer(mcp.DefaultConfig(), mcp.WithTokenGenerator(mcp.TransportMsgIDGenerator{}))
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(server.Stop)

	client, err := New(config.ToolConfig{Name: "echo", Command: []string{"cat"}})
	require.NoError(t, err)
	client.SetServer(server)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, server.AddTool(client.Record(config.ToolConfig{Name: "echo"})))

	tr := &fakeTransport{}
	binding := mcp.TransportBinding("conn-1")

	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","clientInfo":{"name":"test","version":"1.0"},"capabilities":{}}}`
	_, err = server.HandleRequest(context.Background(), tr, binding, 1, []byte(initReq))
	require.NoError(t, err)

	initializedNotify := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	_, err = server.HandleRequest(context.Background(), tr, binding, 2, []byte(initializedNotify))
	require.NoError(t, err)

	callReq := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{}}}`
	_, err = server.HandleRequest(context.Background(), tr, binding, 3, []byte(callReq))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msg, ok := tr.last()
		if !ok {
			return false
		}
		return bytes.Contains(msg.JSON, []byte(`"id":3`))
	}, 2*time.Second, 10*time.Millisecond)
}

// buildEchoServer compiles testdata/echoserver, a real MCP stdio server,
// into a temporary binary and returns its path. Skips the test on any
// build failure instead of failing it, since the environment may lack a
// usable Go toolchain (e.g. a stripped-down CI image).
func buildEchoServer(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "echoserver")
	if runtime.GOOS == "windows" {
		bin += ".exe"
	}
	cmd := exec.Command("go", "build", "-o", bin, "./testdata/echoserver")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("building echoserver fixture: %v\n%s", err, out)
	}
	return bin
}

// TestClient_IntegrationWithRealProcess spawns testdata/echoserver as a
// real child process (not a fake pipe, not "cat") and drives a full
// initialize -> notifications/initialized -> tools/call round trip
// against it, confirming Client's JSON-RPC framing interops with an
// independently implemented MCP stdio server.
func TestClient_IntegrationWithRealProcess(t *testing.T) {
	bin := buildEchoServer(t)

	server := mcp.NewServer(mcp.DefaultConfig(), mcp.WithTokenGenerator(mcp.TransportMsgIDGenerator{}))
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(server.Stop)

	client, err := New(config.ToolConfig{Name: "echo", Command: []string{bin}})
	require.NoError(t, err)
	client.SetServer(server)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, server.AddTool(client.Record(config.ToolConfig{Name: "echo"})))

	tr := &fakeTransport{}
	binding := mcp.TransportBinding("conn-real")

	initReq := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-11-25","clientInfo":{"name":"test","version":"1.0"},"capabilities":{}}}`
	_, err = server.HandleRequest(context.Background(), tr, binding, 1, []byte(initReq))
	require.NoError(t, err)

	initializedNotify := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	_, err = server.HandleRequest(context.Background(), tr, binding, 2, []byte(initializedNotify))
	require.NoError(t, err)

	callReq := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hello"}}}`
	_, err = server.HandleRequest(context.Background(), tr, binding, 3, []byte(callReq))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msg, ok := tr.last()
		if !ok {
			return false
		}
		return bytes.Contains(msg.JSON, []byte(`"id":3`))
	}, 2*time.Second, 10*time.Millisecond)

	msg, _ := tr.last()
	assert.Contains(t, string(msg.JSON), "echo: hello")
}
