package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/tools"
)

// completionPhrases terminate the loop when found (case-insensitively) in
// a toolless assistant message that finished with reason stop.
var completionPhrases = []string{
	"task complete",
	"objective complete",
	"successfully completed",
	"all done",
	"finished",
	"completed successfully",
	"mission accomplished",
}

func containsCompletionPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

const continueNudge = "If the objective is complete, summarize the outcome and say \"Task complete\". Otherwise, continue working on it."

// RunObjective executes the agent loop for one objective under the given
// budgets.
func (a *Agent) RunObjective(ctx context.Context, objective string, opts Options) (*Result, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = DefaultOptions().MaxToolCalls
	}
	systemPrompt := opts.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	runID := uuid.NewString()
	result := &Result{RunID: runID}

	a.sink.Info(runID, audit.EventAgentStart, "run started", map[string]any{
		"objective":      objective,
		"max_iterations": opts.MaxIterations,
		"max_tool_calls": opts.MaxToolCalls,
	})

	messages := []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(objective),
	}
	toolDefs := a.dispatcher.Registry().Definitions()
	idleTurns := 0

	for {
		if result.Iterations >= opts.MaxIterations {
			a.sink.Warn(runID, audit.EventAgentError, "iteration budget exhausted", map[string]any{
				"iterations": result.Iterations,
			})
			break
		}
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "cancelled: "+ctx.Err().Error())
			break
		}
		result.Iterations++

		req := llm.Request{
			Messages:    messages,
			Tools:       toolDefs,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		}
		resp, err := a.router.Complete(ctx, runID, req, opts.ForceProvider)
		if err != nil {
			// The router only fails after the entire provider chain is
			// exhausted; that is unrecoverable for this run.
			result.Errors = append(result.Errors, err.Error())
			a.sink.Error(runID, audit.EventAgentError, "router failed", map[string]any{
				"error": err.Error(),
			})
			break
		}

		messages = append(messages, resp.Message)
		if resp.Text() != "" {
			result.FinalResponse = resp.Text()
		}

		if !resp.HasToolCalls() && resp.FinishReason == llm.FinishStop {
			if containsCompletionPhrase(resp.Text()) {
				a.sink.Info(runID, audit.EventAgentComplete, "run complete", map[string]any{
					"iterations": result.Iterations,
					"tool_calls": result.ToolCalls,
				})
				result.Success = len(result.Errors) == 0
				result.Context = messages
				return result, nil
			}
			idleTurns++
			if idleTurns >= 2 {
				messages = append(messages, llm.UserMessage(continueNudge))
			}
			// First toolless turn gets a free pass.
			continue
		}

		messages = a.dispatchToolCalls(ctx, runID, resp.Message.ToolCalls, messages, opts, result)

		if warning := detectToolLoop(messages, 10); warning != "" {
			messages = append(messages, llm.UserMessage(warning))
		}
	}

	result.Success = len(result.Errors) == 0 && containsCompletionPhrase(result.FinalResponse)
	if !result.Success && result.FinalResponse == "" {
		result.FinalResponse = "Run ended without a final response."
	}
	result.Context = messages
	return result, nil
}

// dispatchToolCalls executes the model's tool calls in order, appending one
// tool-role message per call. The tool-call budget is a strict upper
// bound: once exhausted, remaining calls are answered with an error result
// instead of being invoked.
func (a *Agent) dispatchToolCalls(ctx context.Context, runID string, calls []llm.ToolCall, messages []llm.Message, opts Options, result *Result) []llm.Message {
	for _, call := range calls {
		if result.ToolCalls >= opts.MaxToolCalls {
			errMsg := "tool call budget exhausted"
			result.Errors = append(result.Errors, errMsg+": "+call.Name)
			messages = append(messages, llm.ToolResultMessage(call.ID, encodeToolError(errMsg)))
			continue
		}
		result.ToolCalls++

		args := call.Arguments
		if !json.Valid(args) || len(args) == 0 {
			// Tolerate argument parse failures with an empty object.
			args = json.RawMessage(`{}`)
		}

		toolResult := a.dispatcher.Execute(ctx, runID, call.Name, args)
		if !toolResult.Success {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", call.Name, toolResult.Error))
			messages = append(messages, llm.ToolResultMessage(call.ID, encodeToolError(toolResult.Error)))
			continue
		}

		output := stringifyToolOutput(toolResult.Output)
		output = tools.TruncateToolOutput(output, call.Name, nil)
		messages = append(messages, llm.ToolResultMessage(call.ID, output))
	}
	return messages
}

// Chat issues a single completion for interactive turn-by-turn use.
func (a *Agent) Chat(ctx context.Context, runID string, messages []llm.Message) (*llm.Response, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	return a.router.Complete(ctx, runID, llm.Request{Messages: messages})
}

func encodeToolError(message string) string {
	raw, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return string(raw)
}

func stringifyToolOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
