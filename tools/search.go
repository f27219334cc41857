package tools

import (
	"context"
	"fmt"

	"github.com/martinemde/conductor/llm"
)

func (tb *Toolbox) registerSearch(reg *Registry) error {
	return reg.Register(llm.ToolDefinition{
		Name:        "search",
		Description: "Search the web, news, code, or documentation. Delegates to the search-optimized provider.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type": "string",
				},
				"kind": map[string]any{
					"type": "string",
					"enum": []any{"web", "news", "code", "docs"},
				},
			},
			"required": []any{"query"},
		},
	}, func(ctx context.Context, runID string, args map[string]any) (any, error) {
		if tb.Router == nil {
			return nil, fmt.Errorf("search: no router configured")
		}
		query, _ := StringArg(args, "query")
		kind, ok := StringArg(args, "kind")
		if !ok {
			kind = "web"
		}

		prompt := fmt.Sprintf("Search the %s for: %s\nReturn a concise answer with sources.", kind, query)
		resp, err := tb.Router.Complete(ctx, runID, llm.Request{
			Messages: []llm.Message{llm.UserMessage(prompt)},
		}, "perplexity")
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		return resp.Text(), nil
	})
}
