package reload

import (
	"reflect"

	"github.com/gridctl/mcpserverd/pkg/config"
)

// ToolDiff represents the differences between two tool manifests.
type ToolDiff struct {
	Added    []config.ToolConfig
	Removed  []config.ToolConfig
	Modified []ToolChange
}

// ToolChange represents a modification to an already-registered tool.
type ToolChange struct {
	Name string
	Old  config.ToolConfig
	New  config.ToolConfig
}

// IsEmpty returns true if there are no changes.
func (d *ToolDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// ComputeDiff computes the differences between the currently loaded tool set
// and a freshly-read manifest directory, keyed by tool name.
func ComputeDiff(old, new []config.ToolConfig) *ToolDiff {
	diff := &ToolDiff{}

	oldMap := make(map[string]config.ToolConfig, len(old))
	for _, t := range old {
		oldMap[t.Name] = t
	}

	newMap := make(map[string]config.ToolConfig, len(new))
	for _, t := range new {
		newMap[t.Name] = t
	}

	for _, newTool := range new {
		oldTool, exists := oldMap[newTool.Name]
		if !exists {
			diff.Added = append(diff.Added, newTool)
		} else if !toolConfigEqual(oldTool, newTool) {
			diff.Modified = append(diff.Modified, ToolChange{
				Name: newTool.Name,
				Old:  oldTool,
				New:  newTool,
			})
		}
	}

	for _, oldTool := range old {
		if _, exists := newMap[oldTool.Name]; !exists {
			diff.Removed = append(diff.Removed, oldTool)
		}
	}

	return diff
}

// toolConfigEqual checks if two tool configs describe the same registration,
// field by field, so an unrelated reformat of the manifest (e.g. key
// reordering) doesn't trigger a spurious reload.
func toolConfigEqual(a, b config.ToolConfig) bool {
	if a.Name != b.Name || a.Kind != b.Kind || a.Description != b.Description {
		return false
	}
	if !stringSliceEqual(a.Command, b.Command) {
		return false
	}
	if a.WorkDir != b.WorkDir || a.Upstream != b.Upstream {
		return false
	}
	if !stringMapEqual(a.Env, b.Env) {
		return false
	}
	if a.OpenAPISpec != b.OpenAPISpec || a.BaseURL != b.BaseURL || a.Operation != b.Operation {
		return false
	}
	if a.ScriptFile != b.ScriptFile {
		return false
	}
	if !reflect.DeepEqual(a.InputSchema, b.InputSchema) {
		return false
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
