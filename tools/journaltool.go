package tools

import (
	"context"
	"fmt"

	"github.com/martinemde/conductor/llm"
)

func (tb *Toolbox) registerJournal(reg *Registry) error {
	return reg.Register(llm.ToolDefinition{
		Name:        "journal",
		Description: "Inspect the action journal and roll back reversible effects.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []any{"list_runs", "view", "summary", "rollback_entry", "rollback_run"},
				},
				"run_id": map[string]any{
					"type":        "string",
					"description": "Run to operate on. Defaults to the current run.",
				},
				"entry_id": map[string]any{
					"type":        "string",
					"description": "Journal entry id, for rollback_entry.",
				},
			},
			"required": []any{"operation"},
		},
	}, func(ctx context.Context, runID string, args map[string]any) (any, error) {
		operation, _ := StringArg(args, "operation")
		targetRun, ok := StringArg(args, "run_id")
		if !ok || targetRun == "" {
			targetRun = runID
		}

		switch operation {
		case "list_runs":
			return tb.Journal.ListRuns()

		case "view":
			entries, err := tb.Journal.Entries(targetRun)
			if err != nil {
				return nil, err
			}
			return entries, nil

		case "summary":
			return tb.Journal.SummaryForRun(targetRun)

		case "rollback_entry":
			entryID, ok := StringArg(args, "entry_id")
			if !ok || entryID == "" {
				return nil, fmt.Errorf("entry_id is required for rollback_entry")
			}
			if err := tb.Journal.RollbackEntry(entryID, targetRun); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Rolled back entry %s", entryID), nil

		case "rollback_run":
			return tb.Journal.RollbackRun(targetRun)

		default:
			return nil, fmt.Errorf("unsupported journal operation: %s", operation)
		}
	})
}
