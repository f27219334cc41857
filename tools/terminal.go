package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/sandbox"
)

const defaultCommandTimeout = 2 * time.Minute

func terminalDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "terminal",
		Description: "Run a whitelisted shell command. Returns stdout, stderr, and exit code.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The command line to run.",
				},
				"working_dir": map[string]any{
					"type":        "string",
					"description": "Working directory, relative to the sandbox root.",
				},
			},
			"required": []any{"command"},
		},
	}
}

func (tb *Toolbox) registerTerminal(reg *Registry) error {
	return reg.Register(terminalDefinition(), func(ctx context.Context, runID string, args map[string]any) (any, error) {
		command, _ := StringArg(args, "command")

		if err := tb.Policy.PreCheck(sandbox.Effect{Kind: sandbox.EffectTerminal, Command: command}); err != nil {
			return nil, err
		}

		workingDir := tb.Policy.AllowedRoot()
		if err := os.MkdirAll(workingDir, 0o755); err != nil {
			return nil, fmt.Errorf("terminal: create sandbox root: %w", err)
		}
		if wd, ok := StringArg(args, "working_dir"); ok && wd != "" {
			resolved, err := tb.Policy.Resolve(wd)
			if err != nil {
				return nil, err
			}
			workingDir = resolved
		}

		result, err := execCommand(ctx, command, workingDir, defaultCommandTimeout)
		if err != nil {
			return nil, err
		}

		if _, err := tb.Journal.TerminalCommand(runID, command, result.Output()); err != nil {
			return nil, err
		}

		var sb strings.Builder
		sb.WriteString(result.Output())
		if result.TimedOut {
			fmt.Fprintf(&sb, "\n\n[Command timed out after %dms]", result.DurationMs)
		} else if result.ExitCode != 0 {
			fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
		}
		return sb.String(), nil
	})
}
