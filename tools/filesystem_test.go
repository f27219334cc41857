package tools

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/martinemde/conductor/journal"
)

func TestFilesystemWriteReadDelete(t *testing.T) {
	h := newHarness(t)

	result := h.execute(t, "filesystem", map[string]any{
		"operation": "write",
		"path":      "notes/todo.txt",
		"content":   "buy milk",
	})
	if !result.Success {
		t.Fatalf("write failed: %s", result.Error)
	}

	result = h.execute(t, "filesystem", map[string]any{
		"operation": "read",
		"path":      "notes/todo.txt",
	})
	if !result.Success || result.Output != "buy milk" {
		t.Fatalf("read = %+v", result)
	}

	result = h.execute(t, "filesystem", map[string]any{
		"operation": "delete",
		"path":      "notes/todo.txt",
	})
	if !result.Success {
		t.Fatalf("delete failed: %s", result.Error)
	}
	if _, err := os.Stat(filepath.Join(h.root, "notes", "todo.txt")); !os.IsNotExist(err) {
		t.Errorf("file still exists after delete")
	}

	// create + delete journaled; delete is reversible.
	entries, err := h.journal.Entries("run-test")
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[journal.ActionKind]int{}
	for _, e := range entries {
		kinds[e.ActionKind]++
	}
	if kinds[journal.ActionFileCreate] != 1 || kinds[journal.ActionFileDelete] != 1 {
		t.Errorf("journal kinds = %v", kinds)
	}
}

func TestFilesystemWriteJournalsModify(t *testing.T) {
	h := newHarness(t)

	for _, content := range []string{"v1", "v2"} {
		result := h.execute(t, "filesystem", map[string]any{
			"operation": "write",
			"path":      "f.txt",
			"content":   content,
		})
		if !result.Success {
			t.Fatalf("write failed: %s", result.Error)
		}
	}

	entries, err := h.journal.Entries("run-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal entries = %d, want 2", len(entries))
	}
	if entries[1].ActionKind != journal.ActionFileModify {
		t.Errorf("second write kind = %s, want file_modify", entries[1].ActionKind)
	}
	if entries[1].Before != "v1" || entries[1].After != "v2" {
		t.Errorf("before/after = %q/%q", entries[1].Before, entries[1].After)
	}
}

func TestFilesystemMkdirListMoveCopy(t *testing.T) {
	h := newHarness(t)

	if result := h.execute(t, "filesystem", map[string]any{"operation": "mkdir", "path": "sub"}); !result.Success {
		t.Fatalf("mkdir: %s", result.Error)
	}
	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "write", "path": "sub/a.txt", "content": "x",
	}); !result.Success {
		t.Fatalf("write: %s", result.Error)
	}

	result := h.execute(t, "filesystem", map[string]any{"operation": "list", "path": "sub"})
	if !result.Success || !strings.Contains(result.Output.(string), "a.txt") {
		t.Fatalf("list = %+v", result)
	}

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "move", "path": "sub/a.txt", "dest": "sub/b.txt",
	}); !result.Success {
		t.Fatalf("move: %s", result.Error)
	}
	if _, err := os.Stat(filepath.Join(h.root, "sub", "b.txt")); err != nil {
		t.Errorf("moved file missing: %v", err)
	}

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "copy", "path": "sub/b.txt", "dest": "sub/c.txt",
	}); !result.Success {
		t.Fatalf("copy: %s", result.Error)
	}
	data, err := os.ReadFile(filepath.Join(h.root, "sub", "c.txt"))
	if err != nil || string(data) != "x" {
		t.Errorf("copied content = %q, err %v", data, err)
	}
}

func TestFilesystemChmod(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no POSIX permissions on windows")
	}
	h := newHarness(t)

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "write", "path": "run.sh", "content": "#!/bin/sh\necho hi\n",
	}); !result.Success {
		t.Fatalf("write: %s", result.Error)
	}
	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "chmod", "path": "run.sh", "mode": "755",
	}); !result.Success {
		t.Fatalf("chmod: %s", result.Error)
	}

	info, err := os.Stat(filepath.Join(h.root, "run.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("mode = %o, want 755", info.Mode().Perm())
	}
}

func TestTerminalTool(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("bash-based test")
	}
	h := newHarness(t)

	result := h.execute(t, "terminal", map[string]any{"command": "echo hello-world"})
	if !result.Success {
		t.Fatalf("terminal: %s", result.Error)
	}
	if !strings.Contains(result.Output.(string), "hello-world") {
		t.Errorf("output = %v", result.Output)
	}

	// Journaled as non-reversible.
	entries, err := h.journal.Entries("run-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ActionKind != journal.ActionTerminalCommand || entries[0].Reversible {
		t.Errorf("journal = %+v", entries)
	}
}

func TestTerminalWhitelistDenial(t *testing.T) {
	h := newHarness(t)

	result := h.execute(t, "terminal", map[string]any{"command": "curl http://example.com"})
	if result.Success {
		t.Fatalf("non-whitelisted command should be denied")
	}
	if result.Error != "Denied: terminal_cmd_not_whitelisted" {
		t.Errorf("error = %q", result.Error)
	}

	entries, err := h.journal.Entries("run-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("denied command reached the journal")
	}
}

func TestEditorReplaceJournalsBeforeAfter(t *testing.T) {
	h := newHarness(t)

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "write", "path": "main.go", "content": "package main\n\nfunc old() {}\n",
	}); !result.Success {
		t.Fatalf("write: %s", result.Error)
	}

	result := h.execute(t, "editor", map[string]any{
		"operation":  "replace",
		"path":       "main.go",
		"old_string": "func old()",
		"new_string": "func renamed()",
	})
	if !result.Success {
		t.Fatalf("replace: %s", result.Error)
	}

	data, err := os.ReadFile(filepath.Join(h.root, "main.go"))
	if err != nil || !strings.Contains(string(data), "func renamed()") {
		t.Errorf("file content = %q, err %v", data, err)
	}

	entries, err := h.journal.Entries("run-test")
	if err != nil {
		t.Fatal(err)
	}
	last := entries[len(entries)-1]
	if last.ActionKind != journal.ActionFileModify {
		t.Fatalf("last entry kind = %s", last.ActionKind)
	}
	if !strings.Contains(last.Before, "func old()") || !strings.Contains(last.After, "func renamed()") {
		t.Errorf("before/after not captured")
	}
}

func TestEditorInsertAndDeleteLines(t *testing.T) {
	h := newHarness(t)

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "write", "path": "list.txt", "content": "one\ntwo\nthree",
	}); !result.Success {
		t.Fatalf("write: %s", result.Error)
	}

	if result := h.execute(t, "editor", map[string]any{
		"operation": "insert", "path": "list.txt", "line": 2, "text": "one-and-a-half",
	}); !result.Success {
		t.Fatalf("insert: %s", result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(h.root, "list.txt"))
	if string(data) != "one\none-and-a-half\ntwo\nthree" {
		t.Errorf("after insert: %q", data)
	}

	if result := h.execute(t, "editor", map[string]any{
		"operation": "delete_lines", "path": "list.txt", "start_line": 2, "end_line": 3,
	}); !result.Success {
		t.Fatalf("delete_lines: %s", result.Error)
	}
	data, _ = os.ReadFile(filepath.Join(h.root, "list.txt"))
	if string(data) != "one\nthree" {
		t.Errorf("after delete_lines: %q", data)
	}
}

func TestEditorPatch(t *testing.T) {
	h := newHarness(t)

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "write", "path": "p.txt", "content": "alpha\nbeta\ngamma",
	}); !result.Success {
		t.Fatalf("write: %s", result.Error)
	}

	patch := " alpha\n-beta\n+BETA\n gamma"
	if result := h.execute(t, "editor", map[string]any{
		"operation": "patch", "path": "p.txt", "patch": patch,
	}); !result.Success {
		t.Fatalf("patch: %s", result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(h.root, "p.txt"))
	if string(data) != "alpha\nBETA\ngamma" {
		t.Errorf("after patch: %q", data)
	}
}

func TestMemoryTool(t *testing.T) {
	h := newHarness(t)

	if result := h.execute(t, "memory", map[string]any{
		"operation": "store", "key": "favorite", "value": "espresso",
	}); !result.Success {
		t.Fatalf("store: %s", result.Error)
	}

	result := h.execute(t, "memory", map[string]any{"operation": "retrieve", "key": "favorite"})
	if !result.Success || result.Output != "espresso" {
		t.Fatalf("retrieve = %+v", result)
	}

	result = h.execute(t, "memory", map[string]any{"operation": "search", "query": "espre"})
	if !result.Success {
		t.Fatalf("search: %s", result.Error)
	}
	matches := result.Output.(map[string]string)
	if matches["favorite"] != "espresso" {
		t.Errorf("search = %v", matches)
	}

	result = h.execute(t, "memory", map[string]any{"operation": "list"})
	if !result.Success {
		t.Fatalf("list: %s", result.Error)
	}
}

func TestRequestApproval(t *testing.T) {
	h := newHarness(t)

	result := h.execute(t, "request_approval", map[string]any{
		"action": "delete temp files", "impact": "low",
	})
	if !result.Success {
		t.Fatalf("request_approval: %s", result.Error)
	}
	out := result.Output.(map[string]any)
	if out["approved"] != true {
		t.Errorf("low impact should auto-approve: %v", out)
	}

	result = h.execute(t, "request_approval", map[string]any{
		"action": "wipe database", "impact": "critical",
	})
	out = result.Output.(map[string]any)
	if out["approved"] != false || out["status"] != "pending" {
		t.Errorf("critical impact should stay pending: %v", out)
	}
}

func TestJournalTool(t *testing.T) {
	h := newHarness(t)

	if result := h.execute(t, "filesystem", map[string]any{
		"operation": "write", "path": "j.txt", "content": "x",
	}); !result.Success {
		t.Fatalf("write: %s", result.Error)
	}

	result := h.execute(t, "journal", map[string]any{"operation": "summary"})
	if !result.Success {
		t.Fatalf("summary: %s", result.Error)
	}

	result = h.execute(t, "journal", map[string]any{"operation": "rollback_run"})
	if !result.Success {
		t.Fatalf("rollback_run: %s", result.Error)
	}
	if _, err := os.Stat(filepath.Join(h.root, "j.txt")); !os.IsNotExist(err) {
		t.Errorf("rollback did not remove the created file")
	}
}
