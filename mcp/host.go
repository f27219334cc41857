package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

// Host manages the configured tool servers. It implements
// tools.FallbackSource so the dispatcher can resolve namespaced ids that
// were not registered (e.g. servers that connected after startup).
type Host struct {
	logger  *slog.Logger
	policy  *sandbox.Policy
	servers map[string]*transport
	known   map[string]tools.Handler // namespaced id -> proxy handler
	mu      sync.RWMutex
}

// NewHost creates a Host. The sandbox policy gates external tools exactly
// like built-ins: effects named in the arguments pass the same checks.
func NewHost(logger *slog.Logger, policy *sandbox.Policy) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		logger:  logger.With("component", "mcp"),
		policy:  policy,
		servers: make(map[string]*transport),
		known:   make(map[string]tools.Handler),
	}
}

// Start connects every enabled server and registers its tools on the
// registry under "<server>__<tool>". A server that fails to connect is
// logged and skipped; the host never aborts the agent.
func (h *Host) Start(ctx context.Context, configs []ServerConfig, registry *tools.Registry) {
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		if err := h.connect(ctx, cfg, registry); err != nil {
			h.logger.Warn("skipping MCP server", "server", cfg.Name, "error", err)
		}
	}
	registry.SetFallback(h)
}

func (h *Host) connect(ctx context.Context, cfg ServerConfig, registry *tools.Registry) error {
	t := newTransport(cfg)
	if err := t.connect(ctx); err != nil {
		return err
	}

	if _, err := t.call(ctx, "initialize", map[string]any{"client": "conductor"}); err != nil {
		t.close()
		return err
	}

	raw, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		t.close()
		return err
	}
	var listed listToolsResult
	if err := json.Unmarshal(raw, &listed); err != nil {
		t.close()
		return fmt.Errorf("mcp: decode tools/list from %s: %w", cfg.Name, err)
	}

	h.mu.Lock()
	h.servers[cfg.Name] = t
	h.mu.Unlock()

	for _, tool := range listed.Tools {
		namespaced := cfg.Name + "__" + tool.Name
		handler := h.proxyHandler(t, tool.Name)

		h.mu.Lock()
		h.known[namespaced] = handler
		h.mu.Unlock()

		err := registry.Register(llm.ToolDefinition{
			Name:        namespaced,
			Description: tool.Description,
			Parameters:  tool.InputSchema,
		}, handler)
		if err != nil {
			h.logger.Warn("could not register MCP tool", "tool", namespaced, "error", err)
		}
	}

	h.logger.Info("MCP server connected", "server", cfg.Name, "tools", len(listed.Tools))
	return nil
}

// proxyHandler builds the dispatcher handler forwarding a call to the
// owning server. External tools pass the same sandbox checks as built-ins.
func (h *Host) proxyHandler(t *transport, toolName string) tools.Handler {
	return func(ctx context.Context, runID string, args map[string]any) (any, error) {
		if err := h.preCheck(args); err != nil {
			return nil, err
		}
		raw, err := t.call(ctx, "tools/call", callToolParams{Name: toolName, Arguments: args})
		if err != nil {
			return nil, err
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return string(raw), nil
		}
		return decoded, nil
	}
}

// preCheck applies the sandbox policy to effects named in the arguments.
func (h *Host) preCheck(args map[string]any) error {
	if h.policy == nil {
		return nil
	}
	if path, ok := args["path"].(string); ok && path != "" {
		if err := h.policy.PreCheck(sandbox.Effect{Kind: sandbox.EffectFilesystem, Path: path}); err != nil {
			return err
		}
	}
	if command, ok := args["command"].(string); ok && command != "" {
		if err := h.policy.PreCheck(sandbox.Effect{Kind: sandbox.EffectTerminal, Command: command}); err != nil {
			return err
		}
	}
	return nil
}

// Lookup implements tools.FallbackSource.
func (h *Host) Lookup(name string) (tools.Handler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	handler, ok := h.known[name]
	return handler, ok
}

// Shutdown closes all server transports.
func (h *Host) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, t := range h.servers {
		t.close()
		delete(h.servers, name)
	}
}
