// Package router selects an LM provider for each completion request and
// walks a fallback chain when the selected provider fails. Selection is
// rule-driven: the task type is detected from the last user message, then
// routing rules are evaluated in order (user-supplied first), and the first
// matching rule whose provider is available wins.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/llm"
)

// Task types detected from the conversation.
const (
	TaskSearch       = "search"
	TaskCoding       = "coding"
	TaskAnalysis     = "analysis"
	TaskPlanning     = "planning"
	TaskExecution    = "execution"
	TaskVision       = "vision"
	TaskConversation = "conversation"
)

// Rule routes matching requests to a provider. Empty matcher fields match
// everything; all non-empty fields must match.
type Rule struct {
	TaskTypes     []string `yaml:"task_types,omitempty"`
	Keywords      []string `yaml:"keywords,omitempty"`
	RequiredTools []string `yaml:"required_tools,omitempty"`
	Provider      string   `yaml:"provider"`
	Model         string   `yaml:"model,omitempty"`
	Reason        string   `yaml:"reason,omitempty"`
}

func (r Rule) matches(taskType, lastUser string, toolNames map[string]bool) bool {
	if len(r.TaskTypes) > 0 {
		found := false
		for _, tt := range r.TaskTypes {
			if tt == taskType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(r.Keywords) > 0 {
		lower := strings.ToLower(lastUser)
		found := false
		for _, kw := range r.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, name := range r.RequiredTools {
		if !toolNames[name] {
			return false
		}
	}
	return true
}

// defaultRules route each task type to the provider best suited in the
// default stack. Evaluated after user rules.
var defaultRules = []Rule{
	{TaskTypes: []string{TaskSearch}, Provider: "perplexity", Reason: "search-optimized provider"},
	{TaskTypes: []string{TaskVision}, Provider: "gemini", Reason: "vision-capable provider"},
	{TaskTypes: []string{TaskCoding, TaskAnalysis, TaskPlanning, TaskExecution}, Provider: "anthropic", Reason: "tool-use default"},
	{TaskTypes: []string{TaskConversation}, Provider: "openai", Reason: "conversation default"},
}

var taskKeywords = map[string][]string{
	TaskSearch:   {"search", "look up", "find information", "latest news", "what's new", "current"},
	TaskCoding:   {"code", "implement", "function", "debug", "refactor", "compile", "script", "bug"},
	TaskAnalysis: {"analyze", "analyse", "compare", "evaluate", "summarize", "review", "explain why"},
	TaskPlanning: {"plan", "steps", "roadmap", "schedule", "organize", "break down"},
	TaskVision:   {"image", "screenshot", "photo", "picture", "diagram"},
}

// DetectTaskType classifies a request from its last user message. When
// tools are present and no other category matches, the task is execution.
func DetectTaskType(req llm.Request) string {
	lastUser := strings.ToLower(req.LastUserText())
	for _, taskType := range []string{TaskSearch, TaskVision, TaskCoding, TaskPlanning, TaskAnalysis} {
		for _, kw := range taskKeywords[taskType] {
			if strings.Contains(lastUser, kw) {
				return taskType
			}
		}
	}
	if len(req.Tools) > 0 {
		return TaskExecution
	}
	return TaskConversation
}

// Router holds providers in registration order plus the routing rules.
type Router struct {
	providers       []llm.Provider
	byName          map[string]llm.Provider
	rules           []Rule // user rules first, then defaults
	defaultProvider string
	sink            *audit.Sink
}

// New creates a Router. userRules are evaluated before the built-in
// defaults; defaultProvider is the tiebreaker when no rule matches.
func New(sink *audit.Sink, userRules []Rule, defaultProvider string) *Router {
	if sink == nil {
		sink = audit.Default()
	}
	return &Router{
		byName:          make(map[string]llm.Provider),
		rules:           append(append([]Rule{}, userRules...), defaultRules...),
		defaultProvider: defaultProvider,
		sink:            sink,
	}
}

// Register adds a provider. Registration order defines the fallback chain
// order after the selected provider.
func (rt *Router) Register(p llm.Provider) {
	rt.providers = append(rt.providers, p)
	rt.byName[p.Name()] = p
}

// Provider returns a registered provider by name.
func (rt *Router) Provider(name string) (llm.Provider, bool) {
	p, ok := rt.byName[name]
	return p, ok
}

// AvailableProviders returns the registered providers that report
// themselves available, in registration order.
func (rt *Router) AvailableProviders() []llm.Provider {
	var out []llm.Provider
	for _, p := range rt.providers {
		if p.Available() {
			out = append(out, p)
		}
	}
	return out
}

// selectProvider applies forced selection, then rules, then the default
// provider, then any available provider.
func (rt *Router) selectProvider(req llm.Request, force string) (llm.Provider, string, string) {
	taskType := DetectTaskType(req)

	if force != "" {
		if p, ok := rt.byName[force]; ok && p.Available() {
			return p, taskType, "forced"
		}
	}

	toolNames := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		toolNames[t.Name] = true
	}
	lastUser := req.LastUserText()

	for _, rule := range rt.rules {
		if !rule.matches(taskType, lastUser, toolNames) {
			continue
		}
		p, ok := rt.byName[rule.Provider]
		if !ok || !p.Available() {
			continue
		}
		reason := rule.Reason
		if reason == "" {
			reason = "rule match"
		}
		return p, taskType, reason
	}

	if p, ok := rt.byName[rt.defaultProvider]; ok && p.Available() {
		return p, taskType, "default provider"
	}
	for _, p := range rt.providers {
		if p.Available() {
			return p, taskType, "first available"
		}
	}
	return nil, taskType, ""
}

// Complete selects a provider and issues the completion, walking the
// fallback chain on error. Only after every available provider fails is the
// final error surfaced.
func (rt *Router) Complete(ctx context.Context, runID string, req llm.Request, force ...string) (*llm.Response, error) {
	forced := ""
	if len(force) > 0 {
		forced = force[0]
	}

	selected, taskType, reason := rt.selectProvider(req, forced)
	if selected == nil {
		return nil, &llm.ConfigurationError{SDKError: llm.SDKError{Message: "router: no providers available"}}
	}

	// Fallback chain: selected first, then the rest in registration order.
	chain := []llm.Provider{selected}
	for _, p := range rt.providers {
		if p.Name() != selected.Name() && p.Available() {
			chain = append(chain, p)
		}
	}

	var lastErr error
	for i, provider := range chain {
		rt.sink.Info(runID, audit.EventAIRequest, "completion request", map[string]any{
			"provider":   provider.Name(),
			"model":      req.Model,
			"task_type":  taskType,
			"reason":     reason,
			"messages":   len(req.Messages),
			"tools":      len(req.Tools),
			"fallback":   i > 0,
		})

		start := time.Now()
		resp, err := provider.Complete(ctx, req)
		duration := time.Since(start)
		if err != nil {
			lastErr = err
			rt.sink.Warn(runID, audit.EventAgentError, "provider failed, trying next", map[string]any{
				"provider":    provider.Name(),
				"error":       err.Error(),
				"duration_ms": duration.Milliseconds(),
			})
			if ctx.Err() != nil {
				break
			}
			continue
		}

		rt.sink.Info(runID, audit.EventAIResponse, "completion response", map[string]any{
			"provider":      resp.Provider,
			"model":         resp.Model,
			"task_type":     taskType,
			"duration_ms":   duration.Milliseconds(),
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
			"finish_reason": string(resp.FinishReason),
			"tool_calls":    len(resp.Message.ToolCalls),
		})
		return resp, nil
	}

	return nil, fmt.Errorf("router: all providers failed: %w", lastErr)
}
