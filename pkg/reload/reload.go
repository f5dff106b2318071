package reload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tailscale/hujson"

	"github.com/gridctl/mcpserverd/pkg/config"
	"github.com/gridctl/mcpserverd/pkg/logging"
	"github.com/gridctl/mcpserverd/pkg/mcp"
)

// Result reports what a single reload pass did.
type Result struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// ToolFactory builds a registerable mcp.ToolRecord from a tool's config,
// wiring up the pkg/toolprovider implementation matching cfg.Kind. Handler
// never knows how a tool is actually served; it only knows when to ask for
// one and when to tear it down.
type ToolFactory func(cfg config.ToolConfig) (mcp.ToolRecord, error)

// retryBusy bounds how long Handler waits for an in-flight tool call to
// drain before giving up on replacing or removing that tool this pass.
const retryBusy = 2 * time.Second

// Handler drives hot tool reload: it reads a directory of per-tool manifest
// files, diffs it against the tools currently registered with the server,
// and adds/removes/replaces registrations to match.
type Handler struct {
	mu          sync.Mutex
	manifestDir string
	current     []config.ToolConfig
	server      *mcp.Server
	factory     ToolFactory
	logger      *slog.Logger
}

// NewHandler creates a reload handler for the tool manifests in manifestDir,
// applying additions, removals, and replacements against server.
func NewHandler(manifestDir string, current []config.ToolConfig, server *mcp.Server, factory ToolFactory) *Handler {
	return &Handler{
		manifestDir: manifestDir,
		current:     current,
		server:      server,
		factory:     factory,
		logger:      logging.NewDiscardLogger(),
	}
}

// SetLogger sets the logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		h.logger = logger
	}
}

// CurrentTools returns the tool set Handler believes is registered.
func (h *Handler) CurrentTools() []config.ToolConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Reload re-reads the manifest directory and applies whatever changed.
func (h *Handler) Reload(ctx context.Context) (*Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Info("reloading tool manifests", "dir", h.manifestDir)

	newTools, err := loadManifests(h.manifestDir)
	if err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("failed to load tool manifests: %v", err),
		}, nil
	}

	diff := ComputeDiff(h.current, newTools)
	if diff.IsEmpty() {
		h.logger.Info("no tool manifest changes detected")
		return &Result{Success: true, Message: "no changes detected"}, nil
	}

	result := &Result{Success: true}

	for _, cfg := range diff.Removed {
		h.logger.Info("removing tool", "name", cfg.Name)
		if err := h.removeWithRetry(ctx, cfg.Name); err != nil {
			h.logger.Warn("failed to remove tool", "name", cfg.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("remove %s: %v", cfg.Name, err))
			continue
		}
		result.Removed = append(result.Removed, cfg.Name)
	}

	for _, change := range diff.Modified {
		h.logger.Info("reloading tool", "name", change.Name)
		if err := h.replaceWithRetry(ctx, change.New); err != nil {
			h.logger.Warn("failed to reload tool", "name", change.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("reload %s: %v", change.Name, err))
			continue
		}
		result.Modified = append(result.Modified, change.Name)
	}

	for _, cfg := range diff.Added {
		h.logger.Info("adding tool", "name", cfg.Name)
		if err := h.addTool(cfg); err != nil {
			h.logger.Warn("failed to add tool", "name", cfg.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("add %s: %v", cfg.Name, err))
			continue
		}
		result.Added = append(result.Added, cfg.Name)
	}

	h.current = newTools
	if len(result.Errors) > 0 {
		result.Success = false
		result.Message = fmt.Sprintf("reload completed with %d error(s)", len(result.Errors))
	} else {
		result.Message = "tool manifests reloaded successfully"
	}

	h.logger.Info("reload complete",
		"added", len(result.Added),
		"removed", len(result.Removed),
		"modified", len(result.Modified),
		"errors", len(result.Errors))

	return result, nil
}

func (h *Handler) addTool(cfg config.ToolConfig) error {
	record, err := h.factory(cfg)
	if err != nil {
		return fmt.Errorf("building tool: %w", err)
	}
	return h.server.AddTool(record)
}

// removeWithRetry retries RemoveTool while the tool is still draining an
// in-flight call (mcp.ErrBusy), rather than failing the whole reload pass
// because one slow call hasn't finished yet.
func (h *Handler) removeWithRetry(ctx context.Context, name string) error {
	deadline := time.Now().Add(retryBusy)
	for {
		err := h.server.RemoveTool(name)
		if err == nil || !errors.Is(err, mcp.ErrBusy) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// replaceWithRetry removes the old registration (retrying on Busy) and adds
// the new one in its place.
func (h *Handler) replaceWithRetry(ctx context.Context, cfg config.ToolConfig) error {
	if err := h.removeWithRetry(ctx, cfg.Name); err != nil {
		return err
	}
	return h.addTool(cfg)
}

// loadManifests reads every *.hujson/*.json file in dir as a
// config.ToolConfig. Manifests are HuJSON (JSON with comments and trailing
// commas allowed) so a hand-edited tool definition can carry a comment
// explaining a schema field. A single malformed manifest is reported but
// does not abort the whole directory read: the manifests that parsed are
// still returned alongside the error. Reload treats any such error as a
// failed pass and applies none of them.
func loadManifests(dir string) ([]config.ToolConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading manifest dir: %w", err)
	}

	var tools []config.ToolConfig
	var errs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".hujson") && !strings.HasSuffix(name, ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		data, err := hujson.Standardize(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		var cfg config.ToolConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".hujson"), ".json")
		}
		tools = append(tools, cfg)
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	if len(errs) > 0 {
		return tools, fmt.Errorf("%d manifest(s) failed to parse: %s", len(errs), strings.Join(errs, "; "))
	}
	return tools, nil
}
