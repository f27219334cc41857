package llm

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIProvider translates the neutral request into the OpenAI chat
// completions dialect, which accepts tool results as a first-class role.
type OpenAIProvider struct {
	client *openai.Client
	name   string
	apiKey string
	model  string
	retry  RetryPolicy
}

// NewOpenAIProvider reads OPENAI_API_KEY and OPENAI_MODEL from the
// environment.
func NewOpenAIProvider() *OpenAIProvider {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		name:   "openai",
		apiKey: apiKey,
		model:  model,
		retry:  DefaultRetryPolicy(),
	}
}

// newOpenAICompatible builds a provider against an OpenAI-compatible
// endpoint under a different name (used by the Perplexity adapter).
func newOpenAICompatible(name, apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		name:   name,
		apiKey: apiKey,
		model:  model,
		retry:  DefaultRetryPolicy(),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Available() bool { return p.apiKey != "" }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if !p.Available() {
		return nil, &ConfigurationError{SDKError: SDKError{Message: p.name + ": API key not configured"}}
	}

	chatReq := p.translateRequest(req)

	return Retry(ctx, p.retry, func(ctx context.Context) (*Response, error) {
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, p.translateError(err)
		}
		return p.translateResponse(&resp), nil
	})
}

func (p *OpenAIProvider) translateRequest(req Request) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	chatReq := openai.ChatCompletionRequest{Model: model}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	for _, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		if msg.Role == RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		chatReq.Messages = append(chatReq.Messages, m)
	}

	for _, tool := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  CleanSchema(tool.Parameters),
			},
		})
	}

	return chatReq
}

func (p *OpenAIProvider) translateResponse(resp *openai.ChatCompletionResponse) *Response {
	out := Message{Role: RoleAssistant}
	finish := FinishStop

	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Content = choice.Message.Content
		for _, tc := range choice.Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			finish = FinishToolCalls
		case openai.FinishReasonLength:
			finish = FinishLength
		case openai.FinishReasonContentFilter:
			finish = FinishError
		}
	}

	return &Response{
		Provider: p.name,
		Model:    resp.Model,
		Message:  out,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
		FinishReason: finish,
	}
}

func (p *OpenAIProvider) translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.HTTPStatusCode, apiErr.Message, p.name, "", nil)
	}
	return &ProviderError{
		SDKError:  SDKError{Message: p.name + " request failed", Cause: err},
		Provider:  p.name,
		Retryable: true,
	}
}
