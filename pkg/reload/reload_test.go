package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

func noopCallback(ctx context.Context, event mcp.ToolEvent, argumentsJSON []byte, token mcp.ExecutionToken) error {
	return nil
}

func noopFactory(cfg config.ToolConfig) (mcp.ToolRecord, error) {
	return mcp.ToolRecord{Name: cfg.Name, Callback: noopCallback}, nil
}

func writeManifest(t *testing.T, dir, file, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(contents), 0o644))
}

func TestHandler_Reload_AddsNewTool(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "echo.hujson", `{
  name: "echo", // subprocess tool
  kind: "subprocess",
  command: ["./echo"],
}`)

	server := mcp.NewServer(mcp.DefaultConfig())
	h := NewHandler(dir, nil, server, noopFactory)

	result, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"echo"}, result.Added)

	err = server.AddTool(mcp.ToolRecord{Name: "echo", Callback: noopCallback})
	assert.Error(t, err, "tool should already be registered after reload")
}

func TestHandler_Reload_RemovesDeletedTool(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "echo.hujson", `{
  name: "echo", // subprocess tool
  kind: "subprocess",
  command: ["./echo"],
}`)

	server := mcp.NewServer(mcp.DefaultConfig())
	require.NoError(t, server.AddTool(mcp.ToolRecord{Name: "echo", Callback: noopCallback}))

	h := NewHandler(dir, []config.ToolConfig{{Name: "echo", Kind: "subprocess", Command: []string{"./echo"}}}, server, noopFactory)
	require.NoError(t, os.Remove(filepath.Join(dir, "echo.hujson")))

	result, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"echo"}, result.Removed)

	err = server.AddTool(mcp.ToolRecord{Name: "echo", Callback: noopCallback})
	assert.NoError(t, err, "tool should have been unregistered by reload")
}

func TestHandler_Reload_ReplacesModifiedTool(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "echo.hujson", `{
  name: "echo",
  kind: "subprocess",
  command: ["./echo", "-v2"],
}`)

	server := mcp.NewServer(mcp.DefaultConfig())
	require.NoError(t, server.AddTool(mcp.ToolRecord{Name: "echo", Callback: noopCallback}))

	h := NewHandler(dir, []config.ToolConfig{{Name: "echo", Kind: "subprocess", Command: []string{"./echo", "-v1"}}}, server, noopFactory)

	result, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"echo"}, result.Modified)
}

func TestHandler_Reload_NoChangesReportsSuccessNoop(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "echo.hujson", `{
  name: "echo", // subprocess tool
  kind: "subprocess",
  command: ["./echo"],
}`)

	server := mcp.NewServer(mcp.DefaultConfig())
	h := NewHandler(dir, []config.ToolConfig{{Name: "echo", Kind: "subprocess", Command: []string{"./echo"}}}, server, noopFactory)

	result, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Empty(t, result.Modified)
}

func TestHandler_Reload_MalformedManifestDoesNotAbortRun(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "echo.hujson", `{
  name: "echo", // subprocess tool
  kind: "subprocess",
  command: ["./echo"],
}`)
	writeManifest(t, dir, "broken.hujson", "{not valid json at all")

	server := mcp.NewServer(mcp.DefaultConfig())
	h := NewHandler(dir, nil, server, noopFactory)

	result, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "manifest")
}

func TestHandler_Reload_MissingFactoryOutputIsError(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken.hujson", `{
  name: "broken",
  kind: "subprocess",
}`)

	server := mcp.NewServer(mcp.DefaultConfig())
	failingFactory := func(cfg config.ToolConfig) (mcp.ToolRecord, error) {
		return mcp.ToolRecord{}, assert.AnError
	}
	h := NewHandler(dir, nil, server, failingFactory)

	result, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
}
