package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Tool-call synthesis for dialects without native tool calls. The model is
// instructed to emit a strict JSON envelope; ParseToolEnvelope recovers the
// neutral tool-call shape, falling back to a plain assistant turn when no
// envelope is found.

// ToolEnvelopeInstructions renders the system-prompt addendum teaching the
// model the envelope format for the given tools.
func ToolEnvelopeInstructions(tools []ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("You can call tools. To call one or more tools, respond with ONLY a JSON array, no prose:\n")
	sb.WriteString(`[{"name": "<tool name>", "arguments": {<arguments object>}}]` + "\n")
	sb.WriteString("Available tools:\n")
	for _, t := range tools {
		params, _ := json.Marshal(CleanSchema(t.Parameters))
		fmt.Fprintf(&sb, "- %s: %s %s\n", t.Name, t.Description, params)
	}
	sb.WriteString("When you are done with tools, respond with plain text.")
	return sb.String()
}

// ParseToolEnvelope extracts tool calls from model text. Returns the
// remaining prose and the parsed calls; calls is nil when no envelope is
// present.
func ParseToolEnvelope(text string) (string, []ToolCall) {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		start = strings.Index(text, `{"tool_calls"`)
		if start == -1 {
			return text, nil
		}
	}

	var rawCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	candidate := strings.TrimSpace(text[start:])
	if err := json.Unmarshal([]byte(candidate), &rawCalls); err != nil {
		// Envelope-shaped but unparseable; treat as prose.
		return text, nil
	}

	calls := make([]ToolCall, 0, len(rawCalls))
	for _, rc := range rawCalls {
		if rc.Name == "" {
			continue
		}
		args := rc.Arguments
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolCall{
			ID:        "call_" + uuid.NewString()[:8],
			Name:      rc.Name,
			Arguments: args,
		})
	}
	if len(calls) == 0 {
		return text, nil
	}
	return strings.TrimSpace(text[:start]), calls
}
