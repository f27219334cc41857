package tools

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/martinemde/conductor/llm"
)

func editorDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "editor",
		Description: "Edit a file in place: replace an exact string, insert lines, delete a line range, or apply a unified-style patch hunk. Every edit is journaled with full before/after content.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []any{"replace", "insert", "delete_lines", "patch"},
				},
				"path": map[string]any{
					"type":        "string",
					"description": "File to edit.",
				},
				"old_string": map[string]any{
					"type":        "string",
					"description": "Exact text to find, for replace.",
				},
				"new_string": map[string]any{
					"type":        "string",
					"description": "Replacement text, for replace.",
				},
				"line": map[string]any{
					"type":        "integer",
					"description": "1-based line number, for insert.",
				},
				"text": map[string]any{
					"type":        "string",
					"description": "Text to insert, for insert.",
				},
				"start_line": map[string]any{
					"type":        "integer",
					"description": "1-based first line to delete, for delete_lines.",
				},
				"end_line": map[string]any{
					"type":        "integer",
					"description": "1-based last line to delete, for delete_lines.",
				},
				"patch": map[string]any{
					"type":        "string",
					"description": "Patch hunk with ' ', '-', '+' prefixed lines, for patch.",
				},
			},
			"required": []any{"operation", "path"},
		},
	}
}

func (tb *Toolbox) registerEditor(reg *Registry) error {
	return reg.Register(editorDefinition(), func(ctx context.Context, runID string, args map[string]any) (any, error) {
		operation, _ := StringArg(args, "operation")
		path, _ := StringArg(args, "path")

		resolved, err := tb.Policy.Resolve(path)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("edit %s: %w", path, err)
		}
		before := string(data)

		var after string
		var summary string
		switch operation {
		case "replace":
			oldString, ok := StringArg(args, "old_string")
			if !ok || oldString == "" {
				return nil, fmt.Errorf("old_string is required for replace")
			}
			newString, _ := StringArg(args, "new_string")
			count := strings.Count(before, oldString)
			if count == 0 {
				return nil, fmt.Errorf("old_string not found in %s", path)
			}
			after = strings.ReplaceAll(before, oldString, newString)
			summary = fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path)

		case "insert":
			line, ok := IntArg(args, "line")
			if !ok || line < 1 {
				return nil, fmt.Errorf("line is required for insert")
			}
			text, _ := StringArg(args, "text")
			lines := strings.Split(before, "\n")
			if line > len(lines)+1 {
				line = len(lines) + 1
			}
			inserted := append([]string{}, lines[:line-1]...)
			inserted = append(inserted, text)
			inserted = append(inserted, lines[line-1:]...)
			after = strings.Join(inserted, "\n")
			summary = fmt.Sprintf("Inserted 1 line at %s:%d", path, line)

		case "delete_lines":
			startLine, ok := IntArg(args, "start_line")
			if !ok || startLine < 1 {
				return nil, fmt.Errorf("start_line is required for delete_lines")
			}
			endLine, ok := IntArg(args, "end_line")
			if !ok || endLine < startLine {
				endLine = startLine
			}
			lines := strings.Split(before, "\n")
			if startLine > len(lines) {
				return nil, fmt.Errorf("start_line %d beyond end of %s", startLine, path)
			}
			if endLine > len(lines) {
				endLine = len(lines)
			}
			kept := append([]string{}, lines[:startLine-1]...)
			kept = append(kept, lines[endLine:]...)
			after = strings.Join(kept, "\n")
			summary = fmt.Sprintf("Deleted lines %d-%d of %s", startLine, endLine, path)

		case "patch":
			patch, ok := StringArg(args, "patch")
			if !ok || patch == "" {
				return nil, fmt.Errorf("patch is required for patch")
			}
			after, err = applyPatchHunk(before, patch)
			if err != nil {
				return nil, fmt.Errorf("patch %s: %w", path, err)
			}
			summary = fmt.Sprintf("Patched %s", path)

		default:
			return nil, fmt.Errorf("unsupported editor operation: %s", operation)
		}

		if _, err := tb.Journal.FileModify(runID, resolved, before, after, summary); err != nil {
			return nil, err
		}
		if err := os.WriteFile(resolved, []byte(after), 0o644); err != nil {
			return nil, fmt.Errorf("edit %s: %w", path, err)
		}
		return summary, nil
	})
}

// applyPatchHunk applies a single hunk of ' '/'-'/'+' prefixed lines,
// locating it by its leading context.
func applyPatchHunk(content, patch string) (string, error) {
	type hunkOp struct {
		op   byte
		line string
	}

	var ops []hunkOp
	for _, line := range strings.Split(patch, "\n") {
		if line == "" {
			continue
		}
		switch line[0] {
		case ' ', '-', '+':
			text := ""
			if len(line) > 1 {
				text = line[1:]
			}
			ops = append(ops, hunkOp{op: line[0], line: text})
		}
	}
	if len(ops) == 0 {
		return "", fmt.Errorf("empty hunk")
	}

	// Locate the hunk by its context and deletion prefix.
	var prefix []string
	for _, op := range ops {
		if op.op == ' ' || op.op == '-' {
			prefix = append(prefix, op.line)
		} else {
			break
		}
	}

	fileLines := strings.Split(content, "\n")
	matchPos := -1
	if len(prefix) == 0 {
		matchPos = 0
	} else {
		for i := 0; i <= len(fileLines)-len(prefix); i++ {
			match := true
			for j, ctx := range prefix {
				if fileLines[i+j] != ctx {
					match = false
					break
				}
			}
			if match {
				matchPos = i
				break
			}
		}
	}
	if matchPos < 0 {
		return "", fmt.Errorf("hunk context not found")
	}

	var result []string
	result = append(result, fileLines[:matchPos]...)
	pos := matchPos
	for _, op := range ops {
		switch op.op {
		case ' ':
			if pos < len(fileLines) {
				result = append(result, fileLines[pos])
				pos++
			}
		case '-':
			pos++
		case '+':
			result = append(result, op.line)
		}
	}
	result = append(result, fileLines[pos:]...)
	return strings.Join(result, "\n"), nil
}
