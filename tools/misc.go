package tools

import (
	"context"
	"fmt"

	"github.com/martinemde/conductor/audit"
	"github.com/martinemde/conductor/llm"
)

func (tb *Toolbox) registerThink(reg *Registry) error {
	return reg.Register(llm.ToolDefinition{
		Name:        "think",
		Description: "Record a reasoning note. Has no side effects; use it to work through a problem before acting.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"note": map[string]any{
					"type":        "string",
					"description": "The reasoning note.",
				},
			},
			"required": []any{"note"},
		},
	}, func(ctx context.Context, runID string, args map[string]any) (any, error) {
		note, _ := StringArg(args, "note")
		return fmt.Sprintf("Noted (%d chars).", len(note)), nil
	})
}

func (tb *Toolbox) registerReport(reg *Registry) error {
	return reg.Register(llm.ToolDefinition{
		Name:        "report",
		Description: "Send a structured status update to the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type": "string",
					"enum": []any{"progress", "complete", "error", "info", "question"},
				},
				"message": map[string]any{
					"type": "string",
				},
			},
			"required": []any{"status", "message"},
		},
	}, func(ctx context.Context, runID string, args map[string]any) (any, error) {
		status, _ := StringArg(args, "status")
		message, _ := StringArg(args, "message")
		severity := audit.SeverityInfo
		if status == "error" {
			severity = audit.SeverityError
		}
		tb.Sink.Emit(runID, audit.EventNotificationSent, severity, message, map[string]any{
			"status": status,
		})
		return "Reported.", nil
	})
}

func (tb *Toolbox) registerRequestApproval(reg *Registry) error {
	return reg.Register(llm.ToolDefinition{
		Name:        "request_approval",
		Description: "Request user approval before a consequential action. Low-impact requests are auto-approved; higher impact requests stay pending until the user decides.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"description": "What will be done if approved.",
				},
				"reason": map[string]any{
					"type":        "string",
					"description": "Why the action is needed.",
				},
				"impact": map[string]any{
					"type": "string",
					"enum": []any{"low", "medium", "high", "critical"},
				},
			},
			"required": []any{"action", "impact"},
		},
	}, func(ctx context.Context, runID string, args map[string]any) (any, error) {
		action, _ := StringArg(args, "action")
		reason, _ := StringArg(args, "reason")
		impact, _ := StringArg(args, "impact")

		tb.Sink.Info(runID, audit.EventApprovalRequested, "approval requested", map[string]any{
			"action": action,
			"reason": reason,
			"impact": impact,
		})

		if impact == "low" {
			return map[string]any{"approved": true, "auto": true}, nil
		}

		tb.Sink.Info(runID, audit.EventNotificationSent, "approval pending user decision", map[string]any{
			"action": action,
			"impact": impact,
		})
		return map[string]any{"approved": false, "status": "pending", "note": "awaiting user decision; proceed with other work"}, nil
	})
}
