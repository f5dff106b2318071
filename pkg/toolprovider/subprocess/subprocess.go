// Package subprocess adapts a child MCP server process into a single
// mcp.ToolCallback: it speaks just enough JSON-RPC over the child's
// stdin/stdout to forward one upstream tool call per invocation, rather
// than the full client protocol a whole agent process would need.
package subprocess

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

// requestTimeout bounds how long a single tools/call round-trip to the
// child process may take before the provider reports an error back to the
// core, independent of the core's own exec_timeout bookkeeping.
const requestTimeout = 30 * time.Second

// killGracePeriod is how long Close waits for the child to exit after
// SIGTERM before escalating to SIGKILL.
const killGracePeriod = 5 * time.Second

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client manages one child MCP server process and forwards tools/call
// requests to it, matching one named upstream tool.
type Client struct {
	upstream string
	command  []string
	workDir  string
	env      []string
	logger   *slog.Logger
	server   *mcp.Server

	requestID atomic.Int64

	procMu  sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.Reader
	started bool

	responsesMu sync.Mutex
	responses   map[int64]chan *response
}

// New builds a Client from a tool manifest entry, dispatched on cfg.Kind
// == "subprocess" by whatever wires tool factories together.
func New(cfg config.ToolConfig) (*Client, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("subprocess tool %q: command is required", cfg.Name)
	}
	upstream := cfg.Upstream
	if upstream == "" {
		upstream = cfg.Name
	}

	envList := os.Environ()
	for k, v := range cfg.Env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	return &Client{
		upstream:  upstream,
		command:   cfg.Command,
		workDir:   cfg.WorkDir,
		env:       envList,
		logger:    logging.NewDiscardLogger(),
		responses: make(map[int64]chan *response),
	}, nil
}

// SetLogger overrides the default discard logger.
func (c *Client) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetServer binds the *mcp.Server that owns this tool, so Callback can
// report completion via SubmitToolMessage. Whatever wires a ToolFactory
// together must call this before the tool is registered with AddTool.
func (c *Client) SetServer(server *mcp.Server) {
	c.server = server
}

// Record builds the mcp.ToolRecord to register with the core, wiring
// Callback to Invoke.
func (c *Client) Record(cfg config.ToolConfig) mcp.ToolRecord {
	var schema json.RawMessage
	if len(cfg.InputSchema) > 0 {
		if b, err := json.Marshal(cfg.InputSchema); err == nil {
			schema = b
		}
	}
	return mcp.ToolRecord{
		Name:        cfg.Name,
		Description: cfg.Description,
		InputSchema: schema,
		Callback:    c.Callback,
	}
}

// Callback implements mcp.ToolCallback: it forwards the tools/call
// arguments to the child process's upstream tool and submits the result.
func (c *Client) Callback(ctx context.Context, event mcp.ToolEvent, argumentsJSON []byte, token mcp.ExecutionToken) error {
	if event != mcp.EventInvoke {
		return nil
	}

	server := c.server
	if server == nil {
		return fmt.Errorf("subprocess tool %q: no server bound", c.upstream)
	}

	var arguments map[string]any
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &arguments); err != nil {
			return submitError(ctx, server, token, fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	c.logger.Debug("forwarding tool call", "upstream", c.upstream, "arguments", string(logging.RedactArguments(argumentsJSON)))

	if err := c.ensureStarted(ctx); err != nil {
		return submitError(ctx, server, token, fmt.Sprintf("starting subprocess: %v", err))
	}

	result, err := c.callTool(ctx, c.upstream, arguments)
	if err != nil {
		return submitError(ctx, server, token, err.Error())
	}

	text, isErr := flattenResult(result)
	return server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
		Type:    mcp.ToolMessageResponse,
		Data:    []byte(text),
		IsError: isErr,
	})
}

func submitError(ctx context.Context, server *mcp.Server, token mcp.ExecutionToken, msg string) error {
	return server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
		Type:    mcp.ToolMessageResponse,
		Data:    []byte(msg),
		IsError: true,
	})
}

func flattenResult(result *toolCallResult) (string, bool) {
	for _, block := range result.Content {
		if block.Text != "" {
			return block.Text, result.IsError
		}
	}
	return "", result.IsError
}

// ensureStarted spawns the child process and its response reader exactly
// once, reused across subsequent calls.
func (c *Client) ensureStarted(ctx context.Context) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if c.started {
		return nil
	}

	c.cmd = exec.Command(c.command[0], c.command[1:]...)
	c.cmd.Dir = c.workDir
	c.cmd.Env = c.env

	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	c.stdin = stdin

	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	c.stdout = stdout

	stderr, err := c.cmd.StderrPipe()
	if err == nil {
		go c.readStderr(stderr)
	}

	if err := c.cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("starting process: %w", err)
	}
	c.started = true

	go c.readResponses()

	return c.initialize(ctx)
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": mcp.ProtocolVersion,
		"clientInfo":      map[string]string{"name": "mcpserverd-subprocess", "version": "1.0.0"},
		"capabilities":    map[string]any{"tools": map[string]any{}},
	}
	var result json.RawMessage
	if err := c.call(ctx, "initialize", params, &result); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return c.notify("notifications/initialized", nil)
}

func (c *Client) readResponses() {
	scanner := bufio.NewScanner(c.stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.logger.Debug("subprocess output", "msg", string(line))
			continue
		}
		if resp.ID == nil {
			continue
		}
		var id int64
		if err := json.Unmarshal(*resp.ID, &id); err != nil {
			continue
		}

		c.responsesMu.Lock()
		if ch, ok := c.responses[id]; ok {
			ch <- &resp
			delete(c.responses, id)
		}
		c.responsesMu.Unlock()
	}
}

func (c *Client) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Warn("subprocess stderr", "output", scanner.Text())
	}
}

func (c *Client) callTool(ctx context.Context, name string, arguments map[string]any) (*toolCallResult, error) {
	params := toolCallParams{Name: name, Arguments: arguments}
	var result toolCallResult
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return nil, fmt.Errorf("tools/call: %w", err)
	}
	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	id := c.requestID.Add(1)
	idBytes, _ := json.Marshal(id)
	rawID := json.RawMessage(idBytes)

	var paramsBytes json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		paramsBytes = b
	}

	req := request{JSONRPC: "2.0", ID: &rawID, Method: method, Params: paramsBytes}

	respCh := make(chan *response, 1)
	c.responsesMu.Lock()
	c.responses[id] = respCh
	c.responsesMu.Unlock()

	if err := c.send(req); err != nil {
		c.responsesMu.Lock()
		delete(c.responses, id)
		c.responsesMu.Unlock()
		return err
	}

	timeout := time.NewTimer(requestTimeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		c.responsesMu.Lock()
		delete(c.responses, id)
		c.responsesMu.Unlock()
		return ctx.Err()
	case <-timeout.C:
		c.responsesMu.Lock()
		delete(c.responses, id)
		c.responsesMu.Unlock()
		return fmt.Errorf("timeout waiting for response from subprocess")
	case resp := <-respCh:
		if resp.Error != nil {
			return fmt.Errorf("RPC error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("unmarshaling result: %w", err)
			}
		}
		return nil
	}
}

func (c *Client) notify(method string, params any) error {
	var paramsBytes json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshaling params: %w", err)
		}
		paramsBytes = b
	}
	return c.send(request{JSONRPC: "2.0", Method: method, Params: paramsBytes})
}

func (c *Client) send(req request) error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if !c.started || c.stdin == nil {
		return fmt.Errorf("subprocess not started")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing to subprocess stdin: %w", err)
	}
	return nil
}

// Close terminates the child process gracefully: SIGTERM, then SIGKILL
// after killGracePeriod if it hasn't exited.
func (c *Client) Close() error {
	c.procMu.Lock()
	defer c.procMu.Unlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}
	if c.stdin != nil {
		c.stdin.Close()
	}
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(killGracePeriod):
		_ = c.cmd.Process.Kill()
		<-done
		return nil
	}
}
