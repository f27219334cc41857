// Package tools implements the tool registry and dispatcher. Tools are
// registered at startup with a declared argument schema; the dispatcher
// validates arguments at the registry boundary, applies the sandbox policy
// through the handlers, journals reversible effects, and audits every
// execution. Unknown tool names fall through to an optional fallback source
// (the MCP host) before failing.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/llm"
)

// Handler executes one tool call with validated arguments.
type Handler func(ctx context.Context, runID string, args map[string]any) (any, error)

// Result is the dispatcher's uniform outcome shape.
type Result struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FallbackSource resolves tool names the registry does not know. The MCP
// host implements this for namespaced external tools.
type FallbackSource interface {
	Lookup(name string) (Handler, bool)
}

// registeredTool pairs a definition with its handler and compiled schema.
type registeredTool struct {
	def      llm.ToolDefinition
	handler  Handler
	compiled *jsonschema.Schema
}

// Registry manages tool registration and lookup.
type Registry struct {
	tools    map[string]*registeredTool
	order    []string
	fallback FallbackSource
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds or replaces a tool, compiling its argument schema once.
func (r *Registry) Register(def llm.ToolDefinition, handler Handler) error {
	compiled, err := compileSchema(def.Name, def.Parameters)
	if err != nil {
		return fmt.Errorf("tools: register %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = &registeredTool{def: def, handler: handler, compiled: compiled}
	return nil
}

// SetFallback installs the fallback source consulted for unknown names.
func (r *Registry) SetFallback(fb FallbackSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fb
}

// Definitions returns all tool definitions in registration order, for
// sending to the LM.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].def)
	}
	return defs
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

func (r *Registry) get(name string) (*registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) fallbackLookup(name string) (Handler, bool) {
	r.mu.RLock()
	fb := r.fallback
	r.mu.RUnlock()
	if fb == nil {
		return nil, false
	}
	return fb.Lookup(name)
}

func compileSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	if parameters == nil {
		parameters = map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name+".schema.json", string(raw))
}

// Dispatcher routes tool calls to handlers with validation and auditing.
type Dispatcher struct {
	registry *Registry
	sink     *audit.Sink
}

// NewDispatcher creates a Dispatcher over the registry.
func NewDispatcher(registry *Registry, sink *audit.Sink) *Dispatcher {
	if sink == nil {
		sink = audit.Default()
	}
	return &Dispatcher{registry: registry, sink: sink}
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Execute runs one tool call. Errors never escape as panics or Go errors;
// every outcome is encoded in the Result so the model can react.
func (d *Dispatcher) Execute(ctx context.Context, runID, name string, rawArgs json.RawMessage) Result {
	d.sink.Info(runID, audit.EventToolExecStart, "tool execution started", map[string]any{
		"tool": name,
		"args": string(rawArgs),
	})

	tool, ok := d.registry.get(name)
	if !ok {
		if handler, found := d.registry.fallbackLookup(name); found {
			return d.run(ctx, runID, name, handler, rawArgs)
		}
		return d.fail(runID, name, fmt.Sprintf("unknown tool: %s", name))
	}

	args, err := decodeArguments(rawArgs)
	if err != nil {
		return d.fail(runID, name, "VALIDATION_FAIL: "+err.Error())
	}
	if err := tool.compiled.Validate(args); err != nil {
		return d.fail(runID, name, "VALIDATION_FAIL: "+err.Error())
	}

	output, err := d.invoke(ctx, runID, tool.handler, args)
	if err != nil {
		return d.fail(runID, name, err.Error())
	}

	d.sink.Info(runID, audit.EventToolExecEnd, "tool execution finished", map[string]any{
		"tool": name,
	})
	return Result{Success: true, Output: output}
}

func (d *Dispatcher) run(ctx context.Context, runID, name string, handler Handler, rawArgs json.RawMessage) Result {
	args, err := decodeArguments(rawArgs)
	if err != nil {
		return d.fail(runID, name, "VALIDATION_FAIL: "+err.Error())
	}
	output, err := d.invoke(ctx, runID, handler, args)
	if err != nil {
		return d.fail(runID, name, err.Error())
	}
	d.sink.Info(runID, audit.EventToolExecEnd, "tool execution finished", map[string]any{
		"tool": name,
	})
	return Result{Success: true, Output: output}
}

// invoke converts handler panics into errors so one bad tool never takes
// down the loop.
func (d *Dispatcher) invoke(ctx context.Context, runID string, handler Handler, args map[string]any) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return handler(ctx, runID, args)
}

func (d *Dispatcher) fail(runID, name, message string) Result {
	d.sink.Error(runID, audit.EventToolExecError, "tool execution failed", map[string]any{
		"tool":  name,
		"error": message,
	})
	return Result{Success: false, Error: message}
}

func decodeArguments(rawArgs json.RawMessage) (map[string]any, error) {
	if len(rawArgs) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
