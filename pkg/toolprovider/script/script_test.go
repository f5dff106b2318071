package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestNew_RequiresScriptFile(t *testing.T) {
	_, err := New(config.ToolConfig{Name: "t"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script_file is required")
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(config.ToolConfig{Name: "t", ScriptFile: "/nonexistent/file.js"}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading script file")
}

func TestNew_TranspilesModernSyntax(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "double.js", `const double = (n) => n * 2; double(args.n);`)
	tool, err := New(config.ToolConfig{Name: "double", ScriptFile: path}, time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, tool.transpiled)
}

func TestNew_SyntaxError(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "bad.js", `const = ;;;`)
	_, err := New(config.ToolConfig{Name: "bad", ScriptFile: path}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transpiling script")
}

func TestNew_TooLarge(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, maxScriptSize+1)
	for i := range big {
		big[i] = ' '
	}
	path := writeScript(t, dir, "big.js", string(big)+"1;")
	_, err := New(config.ToolConfig{Name: "big", ScriptFile: path}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func newServer(t *testing.T) *mcp.Server {
	t.Helper()
	server := mcp.NewServer(mcp.DefaultConfig())
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(server.Stop)
	return server
}

func TestTool_Callback_ReturnsComputedValue(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "double.js", `args.n * 2;`)
	tool, err := New(config.ToolConfig{Name: "double", ScriptFile: path}, time.Second)
	require.NoError(t, err)
	tool.SetServer(newServer(t))

	// No live execution slot exists for this token outside a real
	// tools/call dispatch, so the computation itself is exercised
	// directly via execute rather than the full submit path.
	result, err := tool.execute(context.Background(), map[string]any{"n": float64(21)})
	require.NoError(t, err)
	assert.Equal(t, "42", result.value)
}

func TestTool_Callback_CapturesConsoleOutput(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "log.js", `console.log("computing", args.n); args.n + 1;`)
	tool, err := New(config.ToolConfig{Name: "log", ScriptFile: path}, time.Second)
	require.NoError(t, err)

	result, err := tool.execute(context.Background(), map[string]any{"n": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, "2", result.value)
	require.Len(t, result.console, 1)
	assert.Equal(t, "computing 1", result.console[0])
}

func TestTool_Execute_TimesOut(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "spin.js", `while (true) {}`)
	tool, err := New(config.ToolConfig{Name: "spin", ScriptFile: path}, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = tool.execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestTool_Execute_RuntimeError(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "throw.js", `throw new Error("boom");`)
	tool, err := New(config.ToolConfig{Name: "throw", ScriptFile: path}, time.Second)
	require.NoError(t, err)

	_, err = tool.execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime error")
}

func TestTool_Callback_NoServerBoundFailsBeforeArgumentParsing(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "noop.js", `1;`)
	tool, err := New(config.ToolConfig{Name: "noop", ScriptFile: path}, time.Second)
	require.NoError(t, err)

	err = tool.Callback(context.Background(), mcp.EventInvoke, []byte(`not json`), mcp.ExecutionToken(1))
	require.Error(t, err, "no server bound, so this exercises the nil-server guard first")
}

func TestTool_Record_PassesThroughInputSchema(t *testing.T) {
	dir := t.TempDir()
	path := writeScript(t, dir, "noop.js", `1;`)
	tool, err := New(config.ToolConfig{Name: "noop", ScriptFile: path}, time.Second)
	require.NoError(t, err)

	record := tool.Record(config.ToolConfig{
		Name:        "noop",
		Description: "does nothing",
		InputSchema: map[string]any{"type": "object"},
	})
	assert.Equal(t, "noop", record.Name)
	assert.JSONEq(t, `{"type":"object"}`, string(record.InputSchema))
}
