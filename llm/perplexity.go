package llm

import "os"

const (
	perplexityBaseURL      = "https://api.perplexity.ai"
	defaultPerplexityModel = "sonar-pro"
)

// NewPerplexityProvider builds the search-optimized provider. Perplexity
// speaks the OpenAI chat dialect, so this reuses the OpenAI adapter against
// a different base URL. Reads PERPLEXITY_API_KEY and PERPLEXITY_MODEL.
func NewPerplexityProvider() *OpenAIProvider {
	model := os.Getenv("PERPLEXITY_MODEL")
	if model == "" {
		model = defaultPerplexityModel
	}
	return newOpenAICompatible("perplexity", os.Getenv("PERPLEXITY_API_KEY"), perplexityBaseURL, model)
}
