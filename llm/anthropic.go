package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider translates the neutral request into the Anthropic
// Messages dialect. Tool results travel as tool_result blocks inside
// user-role turns referencing the prior tool-use id.
type AnthropicProvider struct {
	client anthropic.Client
	apiKey string
	model  string
	retry  RetryPolicy
}

// NewAnthropicProvider reads ANTHROPIC_API_KEY and ANTHROPIC_MODEL from the
// environment. The provider reports unavailable when the key is missing.
func NewAnthropicProvider() *AnthropicProvider {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		apiKey: apiKey,
		model:  model,
		retry:  DefaultRetryPolicy(),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Available() bool { return p.apiKey != "" }

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if !p.Available() {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "anthropic: ANTHROPIC_API_KEY not configured"}}
	}

	params, err := p.translateRequest(req)
	if err != nil {
		return nil, err
	}

	return Retry(ctx, p.retry, func(ctx context.Context) (*Response, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, p.translateError(err)
		}
		return p.translateResponse(msg), nil
	})
}

func (p *AnthropicProvider) translateRequest(req Request) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})

		case RoleUser:
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]any
				if err := json.Unmarshal(tc.Arguments, &input); err != nil {
					return params, &InvalidRequestError{ProviderError: ProviderError{
						SDKError: SDKError{Message: fmt.Sprintf("anthropic: invalid tool call arguments for %s", tc.Name), Cause: err},
						Provider: "anthropic",
					}}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(""))
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))

		case RoleTool:
			// This dialect embeds tool results as structured user turns
			// referencing the prior tool-use id.
			params.Messages = append(params.Messages,
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)))
		}
	}

	for _, tool := range req.Tools {
		cleaned, err := json.Marshal(CleanSchema(tool.Parameters))
		if err != nil {
			return params, fmt.Errorf("anthropic: encode schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(cleaned, &schema); err != nil {
			return params, fmt.Errorf("anthropic: invalid schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(tool.Description)
		}
		params.Tools = append(params.Tools, toolParam)
	}

	return params, nil
}

func (p *AnthropicProvider) translateResponse(msg *anthropic.Message) *Response {
	out := Message{Role: RoleAssistant}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}

	finish := FinishStop
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		finish = FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		finish = FinishLength
	case anthropic.StopReasonRefusal:
		finish = FinishError
	}

	return &Response{
		Provider: "anthropic",
		Model:    string(msg.Model),
		Message:  out,
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		FinishReason: finish,
	}
}

func (p *AnthropicProvider) translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.StatusCode, "anthropic request failed", "anthropic", apiErr.RawJSON(), nil)
	}
	return &ProviderError{
		SDKError:  SDKError{Message: "anthropic request failed", Cause: err},
		Provider:  "anthropic",
		Retryable: true,
	}
}
