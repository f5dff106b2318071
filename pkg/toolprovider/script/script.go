// Package script adapts a fixed JavaScript function body into a sandboxed
// mcp.ToolCallback: the function is transpiled to goja-compatible ES2015
// once at registration time (github.com/evanw/esbuild) and re-run in a
// fresh github.com/dop251/goja VM per invocation, interrupted after the
// Execution's exec_timeout. A prior design let the sandboxed function
// call back into other tools through an ACL bridge; here a script tool
// is sandboxed to pure computation over its own arguments, since nested
// tool calls belong to a host application, not the core.
package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

// maxScriptSize caps the transpiled function body as a guard against
// pathological scripts.
const maxScriptSize = 64 * 1024

// defaultTimeout is used when no exec timeout is supplied.
const defaultTimeout = 30 * time.Second

// Tool runs a single JS function body in a sandboxed goja VM per call.
type Tool struct {
	transpiled string
	timeout    time.Duration
	server     *mcp.Server
	logger     *slog.Logger
}

// New reads cfg.ScriptFile, transpiles its contents, and returns a Tool
// that runs it with the given execution timeout (ordinarily the daemon's
// own ToolExecTimeoutMS, passed in by whatever wires the ToolFactory
// together).
func New(cfg config.ToolConfig, execTimeout time.Duration) (*Tool, error) {
	if cfg.ScriptFile == "" {
		return nil, fmt.Errorf("script tool %q: script_file is required", cfg.Name)
	}

	code, err := os.ReadFile(cfg.ScriptFile)
	if err != nil {
		return nil, fmt.Errorf("reading script file: %w", err)
	}
	if len(code) > maxScriptSize {
		return nil, fmt.Errorf("script tool %q: script too large: %d bytes (maximum %d)", cfg.Name, len(code), maxScriptSize)
	}

	transpiled, err := transpile(string(code))
	if err != nil {
		return nil, fmt.Errorf("transpiling script: %w", err)
	}

	timeout := execTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Tool{transpiled: transpiled, timeout: timeout, logger: logging.NewDiscardLogger()}, nil
}

// SetLogger overrides the default discard logger.
func (t *Tool) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// transpile converts modern JavaScript (ES2020+) to the ES2015 subset
// goja executes.
func transpile(code string) (string, error) {
	result := api.Transform(code, api.TransformOptions{
		Target: api.ES2015,
		Format: api.FormatDefault,
		Loader: api.LoaderJS,
	})
	if len(result.Errors) > 0 {
		msg := result.Errors[0]
		loc := ""
		if msg.Location != nil {
			loc = fmt.Sprintf(" at line %d, column %d", msg.Location.Line, msg.Location.Column)
		}
		return "", fmt.Errorf("syntax error%s: %s", loc, msg.Text)
	}
	return string(result.Code), nil
}

// SetServer binds the *mcp.Server the Callback reports completion to.
func (t *Tool) SetServer(server *mcp.Server) {
	t.server = server
}

// Record builds the mcp.ToolRecord to register with AddTool. cfg.InputSchema
// is passed through as-is since a script tool's schema is hand-authored
// (there is no OpenAPI document or upstream tool to derive it from).
func (t *Tool) Record(cfg config.ToolConfig) mcp.ToolRecord {
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
		Callback:    t.Callback,
	}
}

// Callback implements mcp.ToolCallback: it runs the transpiled function
// body in a fresh VM, passing the tools/call arguments as a native JS
// object bound to `args`, and submits the function's return value (plus
// any captured console output) as the tool's Response.
func (t *Tool) Callback(ctx context.Context, event mcp.ToolEvent, argumentsJSON []byte, token mcp.ExecutionToken) error {
	if event != mcp.EventInvoke {
		return nil
	}
	if t.server == nil {
		return fmt.Errorf("script tool: no server bound")
	}

	var args map[string]any
	if len(argumentsJSON) > 0 {
		if err := json.Unmarshal(argumentsJSON, &args); err != nil {
			return t.submitError(ctx, token, fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	t.logger.Debug("running script tool", "arguments", string(logging.RedactArguments(argumentsJSON)))

	result, err := t.execute(ctx, args)
	if err != nil {
		return t.submitError(ctx, token, err.Error())
	}

	text := result.value
	if len(result.console) > 0 {
		text = strings.Join(append(result.console, result.value), "\n")
	}

	return t.server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
		Type: mcp.ToolMessageResponse,
		Data: []byte(text),
	})
}

func (t *Tool) submitError(ctx context.Context, token mcp.ExecutionToken, msg string) error {
	return t.server.SubmitToolMessage(ctx, token, mcp.ToolMessage{
		Type:    mcp.ToolMessageResponse,
		Data:    []byte(msg),
		IsError: true,
	})
}

type execResult struct {
	value   string
	console []string
}

// execute runs the script in a fresh VM per call (no state leakage between
// invocations), interrupting it once timeout elapses.
func (t *Tool) execute(ctx context.Context, args map[string]any) (*execResult, error) {
	vm := goja.New()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution timeout exceeded")
		case <-done:
		}
	}()

	var console []string
	consoleObj := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		console = append(console, strings.Join(parts, " "))
		return goja.Undefined()
	}
	_ = consoleObj.Set("log", logFn)
	_ = consoleObj.Set("warn", logFn)
	_ = consoleObj.Set("error", logFn)
	_ = vm.Set("console", consoleObj)
	_ = vm.Set("args", args)

	val, err := vm.RunString(t.transpiled)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution exceeded %s timeout", t.timeout)
		}
		if jsErr, ok := err.(*goja.InterruptedError); ok {
			return nil, fmt.Errorf("execution interrupted: %s", jsErr.Value())
		}
		return nil, fmt.Errorf("runtime error: %w", err)
	}

	result := &execResult{console: console}
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		exported := val.Export()
		if jsonBytes, jsonErr := json.Marshal(exported); jsonErr == nil {
			result.value = string(jsonBytes)
		} else {
			result.value = val.String()
		}
	}
	return result, nil
}
