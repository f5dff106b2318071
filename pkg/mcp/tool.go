package mcp

import (
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ToolRecord is the immutable (save for activityCounter) description of one
// registered tool.
type ToolRecord struct {
	Name         string
	Title        string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
	Callback     ToolCallback
}

// toolSlot adds registry bookkeeping private to ToolRegistry.
type toolSlot struct {
	record         ToolRecord
	activityCount  int
	schema         *jsonschema.Schema // nil if InputSchema didn't compile; validation is then skipped
	occupied       bool
}

// ToolRegistry holds up to a fixed maximum number of tools, gated by a
// single mutex. Schema compilation is an addition beyond the
// firmware original: when a tool's InputSchema compiles as a valid JSON
// Schema, tools/call arguments are validated against it before the
// callback runs; tools with no schema or a schema that fails to compile
// skip validation entirely, so this can never make a previously-accepted
// tool registration fail.
type ToolRegistry struct {
	mu       sync.Mutex
	slots    []toolSlot
	byName   map[string]int
	nameMax  int
	argsMax  int
}

// NewToolRegistry allocates a registry with the given capacity and the
// name/argument length ceilings from Config.
func NewToolRegistry(capacity, nameMaxLen, argsMaxLen int) *ToolRegistry {
	return &ToolRegistry{
		slots:   make([]toolSlot, capacity),
		byName:  make(map[string]int, capacity),
		nameMax: nameMaxLen,
		argsMax: argsMaxLen,
	}
}

// Add registers a tool. Fails AlreadyExists, NoSpace, or InvalidArgument.
func (r *ToolRegistry) Add(record ToolRecord) error {
	if record.Name == "" || record.Callback == nil {
		return newError(KindInvalidArgument, "tool name and callback are required")
	}
	if len(record.Name) > r.nameMax {
		return newError(KindInvalidArgument, "tool name exceeds %d bytes", r.nameMax)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[record.Name]; exists {
		return newError(KindAlreadyExists, "tool %q already registered", record.Name)
	}

	free := -1
	for i := range r.slots {
		if !r.slots[i].occupied {
			free = i
			break
		}
	}
	if free < 0 {
		return newError(KindNoSpace, "tool registry full")
	}

	r.slots[free] = toolSlot{
		record:   record,
		occupied: true,
		schema:   compileSchema(record.InputSchema),
	}
	r.byName[record.Name] = free
	return nil
}

// compileSchema best-effort compiles a JSON Schema document; a nil/invalid
// schema simply disables argument validation for that tool.
func compileSchema(raw json.RawMessage) *jsonschema.Schema {
	if len(raw) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	c := jsonschema.NewCompiler()
	const resource = "mcp://tool-input-schema.json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil
	}
	return schema
}

// Remove fails NotFound or Busy (activity_counter > 0)
func (r *ToolRegistry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byName[name]
	if !ok {
		return newError(KindNotFound, "tool %q not registered", name)
	}
	if r.slots[idx].activityCount > 0 {
		return newError(KindBusy, "tool %q has %d in-flight execution(s)", name, r.slots[idx].activityCount)
	}
	r.slots[idx] = toolSlot{}
	delete(r.byName, name)
	return nil
}

// Lookup returns a copy of the tool record and bumps its activity counter;
// callers must call Release when the bound Execution finishes. Returns
// NotFound if absent.
func (r *ToolRegistry) Lookup(name string) (ToolRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byName[name]
	if !ok {
		return ToolRecord{}, newError(KindNotFound, "tool %q not registered", name)
	}
	r.slots[idx].activityCount++
	return r.slots[idx].record, nil
}

// Release decrements the activity counter for a previously looked-up tool.
func (r *ToolRegistry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.byName[name]; ok && r.slots[idx].activityCount > 0 {
		r.slots[idx].activityCount--
	}
}

// CheckArgumentsSize enforces tool_input_args_max_len before the
// arguments are ever handed to a callback.
func (r *ToolRegistry) CheckArgumentsSize(argumentsJSON json.RawMessage) error {
	if len(argumentsJSON) > r.argsMax {
		return newError(KindInvalidArgument, "arguments exceed %d bytes", r.argsMax)
	}
	return nil
}

// ValidateArguments validates argumentsJSON against the tool's compiled
// input schema, if one compiled successfully. A tool without a usable
// schema always validates.
func (r *ToolRegistry) ValidateArguments(name string, argumentsJSON json.RawMessage) error {
	r.mu.Lock()
	idx, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return newError(KindNotFound, "tool %q not registered", name)
	}
	schema := r.slots[idx].schema
	r.mu.Unlock()

	if schema == nil {
		return nil
	}

	var doc any
	if len(argumentsJSON) == 0 {
		doc = map[string]any{}
	} else if err := json.Unmarshal(argumentsJSON, &doc); err != nil {
		return newError(KindInvalidArgument, "arguments are not valid JSON: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		return newError(KindInvalidArgument, "arguments do not match input schema: %v", err)
	}
	return nil
}

// List copies every registered tool's metadata, for tools/list.
func (r *ToolRegistry) List() []Tool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tools := make([]Tool, 0, len(r.byName))
	for i := range r.slots {
		if !r.slots[i].occupied {
			continue
		}
		rec := r.slots[i].record
		tools = append(tools, Tool{
			Name:         rec.Name,
			Title:        rec.Title,
			Description:  rec.Description,
			InputSchema:  rec.InputSchema,
			OutputSchema: rec.OutputSchema,
		})
	}
	return tools
}

// ActivityCounter reports the invariant (P4) value for tests/diagnostics.
func (r *ToolRegistry) ActivityCounter(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byName[name]
	if !ok {
		return 0, newError(KindNotFound, "tool %q not registered", name)
	}
	return r.slots[idx].activityCount, nil
}
