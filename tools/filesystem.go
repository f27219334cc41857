package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/martinemde/conductor/llm"
)

func filesystemDefinition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "filesystem",
		Description: "Read, write, and manage files inside the sandbox. All paths are checked against the sandbox policy.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []any{"read", "write", "mkdir", "chmod", "list", "delete", "move", "copy"},
				},
				"path": map[string]any{
					"type":        "string",
					"description": "Target path, absolute or relative to the sandbox root.",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "File content for write.",
				},
				"dest": map[string]any{
					"type":        "string",
					"description": "Destination path for move and copy.",
				},
				"mode": map[string]any{
					"type":        "string",
					"description": "Octal permission string for chmod, e.g. \"755\".",
				},
			},
			"required": []any{"operation", "path"},
		},
	}
}

func (tb *Toolbox) registerFilesystem(reg *Registry) error {
	return reg.Register(filesystemDefinition(), func(ctx context.Context, runID string, args map[string]any) (any, error) {
		operation, _ := StringArg(args, "operation")
		path, _ := StringArg(args, "path")

		resolved, err := tb.Policy.Resolve(path)
		if err != nil {
			return nil, err
		}

		switch operation {
		case "read":
			data, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			return string(data), nil

		case "write":
			content, _ := StringArg(args, "content")
			return tb.writeFile(runID, resolved, content)

		case "mkdir":
			if _, err := os.Stat(resolved); err == nil {
				return fmt.Sprintf("Directory %s already exists", path), nil
			}
			if err := os.MkdirAll(resolved, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", path, err)
			}
			if _, err := tb.Journal.DirectoryCreate(runID, resolved); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Created directory %s", path), nil

		case "chmod":
			modeStr, ok := StringArg(args, "mode")
			if !ok {
				return nil, fmt.Errorf("mode is required for chmod")
			}
			mode, err := strconv.ParseUint(modeStr, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid mode %q: %w", modeStr, err)
			}
			if err := os.Chmod(resolved, os.FileMode(mode)); err != nil {
				return nil, fmt.Errorf("chmod %s: %w", path, err)
			}
			return fmt.Sprintf("Changed mode of %s to %s", path, modeStr), nil

		case "list":
			entries, err := os.ReadDir(resolved)
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", path, err)
			}
			var lines []string
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				lines = append(lines, name)
			}
			if len(lines) == 0 {
				return "(empty)", nil
			}
			return strings.Join(lines, "\n"), nil

		case "delete":
			before, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("delete %s: %w", path, err)
			}
			if _, err := tb.Journal.FileDelete(runID, resolved, string(before)); err != nil {
				return nil, err
			}
			if err := os.Remove(resolved); err != nil {
				return nil, fmt.Errorf("delete %s: %w", path, err)
			}
			return fmt.Sprintf("Deleted %s", path), nil

		case "move":
			dest, ok := StringArg(args, "dest")
			if !ok {
				return nil, fmt.Errorf("dest is required for move")
			}
			destResolved, err := tb.Policy.Resolve(dest)
			if err != nil {
				return nil, err
			}
			content, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("move %s: %w", path, err)
			}
			// Journaled as delete+create so both halves roll back.
			if _, err := tb.Journal.FileDelete(runID, resolved, string(content)); err != nil {
				return nil, err
			}
			if _, err := tb.Journal.FileCreate(runID, destResolved, string(content)); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(destResolved), 0o755); err != nil {
				return nil, fmt.Errorf("move %s: %w", dest, err)
			}
			if err := os.Rename(resolved, destResolved); err != nil {
				return nil, fmt.Errorf("move %s -> %s: %w", path, dest, err)
			}
			return fmt.Sprintf("Moved %s to %s", path, dest), nil

		case "copy":
			dest, ok := StringArg(args, "dest")
			if !ok {
				return nil, fmt.Errorf("dest is required for copy")
			}
			destResolved, err := tb.Policy.Resolve(dest)
			if err != nil {
				return nil, err
			}
			content, err := os.ReadFile(resolved)
			if err != nil {
				return nil, fmt.Errorf("copy %s: %w", path, err)
			}
			if _, err := tb.writeFile(runID, destResolved, string(content)); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Copied %s to %s", path, dest), nil

		default:
			return nil, fmt.Errorf("unsupported filesystem operation: %s", operation)
		}
	})
}

// writeFile journals an existing file as a modification and a new file as
// a creation, then writes the content.
func (tb *Toolbox) writeFile(runID, resolved, content string) (string, error) {
	existing, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if _, err := tb.Journal.FileModify(runID, resolved, string(existing), content, "Modified file "+resolved); err != nil {
			return "", err
		}
	case os.IsNotExist(err):
		if _, err := tb.Journal.FileCreate(runID, resolved, content); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", resolved, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), resolved), nil
}
