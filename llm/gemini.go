package llm

import (
	"context"
	"os"
	"strings"

	"github.com/teilomillet/gollm"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider bridges to Gemini through gollm. The dialect has no native
// tool-call channel here, so tool use is synthesized: the request teaches
// the model a strict JSON envelope and the response text is parsed back
// into neutral tool calls.
type GeminiProvider struct {
	llm    gollm.LLM
	apiKey string
	model  string
}

// NewGeminiProvider reads GEMINI_API_KEY and GEMINI_MODEL from the
// environment. Construction of the underlying client is deferred to the
// first request so an unconfigured provider is cheap.
func NewGeminiProvider() *GeminiProvider {
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		apiKey: os.Getenv("GEMINI_API_KEY"),
		model:  model,
	}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Available() bool { return p.apiKey != "" }

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if !p.Available() {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "gemini: GEMINI_API_KEY not configured"}}
	}
	if p.llm == nil {
		llm, err := gollm.NewLLM(
			gollm.SetProvider("google"),
			gollm.SetModel(p.model),
			gollm.SetAPIKey(p.apiKey),
			gollm.SetMaxRetries(0), // no adapter-level retry; the router falls back to other providers
			gollm.SetLogLevel(gollm.LogLevelWarn),
		)
		if err != nil {
			return nil, &ConfigurationError{SDKError: SDKError{Message: "gemini: client init failed", Cause: err}}
		}
		p.llm = llm
	}

	prompt := p.translateRequest(req)
	text, err := p.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, p.translateError(err)
	}

	return p.buildResponse(req, text), nil
}

func (p *GeminiProvider) translateRequest(req Request) *gollm.Prompt {
	var systemParts []string
	var userParts []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case RoleUser:
			userParts = append(userParts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Content)
			}
		case RoleTool:
			userParts = append(userParts, "[Tool Result]: "+msg.Content)
		}
	}

	if instructions := ToolEnvelopeInstructions(req.Tools); instructions != "" {
		systemParts = append(systemParts, instructions)
	}

	promptText := strings.Join(userParts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var opts []gollm.PromptOption
	if len(systemParts) > 0 {
		opts = append(opts, gollm.WithSystemPrompt(strings.Join(systemParts, "\n\n"), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, gollm.WithMaxLength(req.MaxTokens))
	}

	return gollm.NewPrompt(promptText, opts...)
}

func (p *GeminiProvider) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = p.model
	}

	prose, calls := ParseToolEnvelope(text)
	finish := FinishStop
	if len(calls) > 0 {
		finish = FinishToolCalls
	}

	return &Response{
		Provider: "gemini",
		Model:    model,
		Message: Message{
			Role:      RoleAssistant,
			Content:   prose,
			ToolCalls: calls,
		},
		Usage: Usage{
			// gollm does not surface usage; estimate.
			InputTokens:  EstimateTokens(req),
			OutputTokens: len(text) / 4,
			TotalTokens:  EstimateTokens(req) + len(text)/4,
		},
		FinishReason: finish,
	}
}

func (p *GeminiProvider) translateError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key"):
		return &AuthenticationError{ProviderError: ProviderError{
			SDKError: SDKError{Message: err.Error(), Cause: err}, Provider: "gemini", StatusCode: 401,
		}}
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return &RateLimitError{ProviderError: ProviderError{
			SDKError: SDKError{Message: err.Error(), Cause: err}, Provider: "gemini", StatusCode: 429, Retryable: true,
		}}
	case strings.Contains(msg, "safety") || strings.Contains(msg, "blocked"):
		return &ContentFilterError{ProviderError: ProviderError{
			SDKError: SDKError{Message: err.Error(), Cause: err}, Provider: "gemini",
		}}
	case strings.Contains(msg, "timeout"):
		return &RequestTimeoutError{SDKError: SDKError{Message: err.Error(), Cause: err}}
	default:
		return &ProviderError{
			SDKError:  SDKError{Message: err.Error(), Cause: err},
			Provider:  "gemini",
			Retryable: true,
		}
	}
}
