// Package agent drives the LM <-> tool cycle: it asks the router for a
// completion, dispatches any tool calls the model requested, feeds the
// results back as conversation turns, and stops when the model signals
// completion or the run budgets are exhausted.
package agent

import (
	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/plan"
	"github.com/martinemde/conductor/router"
	"github.com/martinemde/conductor/tools"
)

// Options configures one run.
type Options struct {
	MaxIterations int
	MaxToolCalls  int
	SystemPrompt  string
	ForceProvider string
	Temperature   *float64
	MaxTokens     int
}

// DefaultOptions returns the run defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 20,
		MaxToolCalls:  50,
	}
}

// Result is the outcome of a run. Context carries the full message history
// for callers that continue the conversation or audit it.
type Result struct {
	RunID         string        `json:"run_id"`
	Success       bool          `json:"success"`
	FinalResponse string        `json:"final_response"`
	Iterations    int           `json:"iterations"`
	ToolCalls     int           `json:"tool_calls"`
	Errors        []string      `json:"errors,omitempty"`
	Context       []llm.Message `json:"context,omitempty"`
}

// Agent wires the loop to its collaborators. The loop holds references to
// the router and dispatcher; nothing holds a reference back to the loop.
type Agent struct {
	router     *router.Router
	dispatcher *tools.Dispatcher
	runner     *plan.Runner
	sink       *audit.Sink
}

// New creates an Agent. runner may be nil when deterministic plan
// execution is not needed.
func New(rt *router.Router, dispatcher *tools.Dispatcher, runner *plan.Runner, sink *audit.Sink) *Agent {
	if sink == nil {
		sink = audit.Default()
	}
	return &Agent{
		router:     rt,
		dispatcher: dispatcher,
		runner:     runner,
		sink:       sink,
	}
}

const defaultSystemPrompt = `You are an autonomous assistant that completes objectives using the available tools.
Work step by step. Use tools to act; do not describe actions you have not taken.
When the objective is fully achieved, say "Task complete" and summarize what was done.
If you cannot proceed, say so and explain why.`
