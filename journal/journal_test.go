package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	base := t.TempDir()
	j, err := New(filepath.Join(base, "journal"), filepath.Join(base, "backups"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return j
}

func TestFileCreateRollback(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err := j.FileCreate("run-1", path, "hello")
	if err != nil {
		t.Fatalf("FileCreate: %v", err)
	}

	if err := j.RollbackEntry(entry.ID, "run-1"); err != nil {
		t.Fatalf("RollbackEntry: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file should be deleted after rollback")
	}
}

func TestFileModifyRollbackPrefersBackup(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("new content"), 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err := j.FileModify("run-1", path, "original content", "new content", "edited config")
	if err != nil {
		t.Fatalf("FileModify: %v", err)
	}

	backup := entry.Metadata["backupPath"]
	if backup == "" {
		t.Fatalf("expected backup path in metadata")
	}
	data, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("backup artifact missing: %v", err)
	}
	if string(data) != "original content" {
		t.Errorf("backup content = %q", data)
	}

	if err := j.RollbackEntry(entry.ID, "run-1"); err != nil {
		t.Fatalf("RollbackEntry: %v", err)
	}
	restored, _ := os.ReadFile(path)
	if string(restored) != "original content" {
		t.Errorf("restored content = %q, want original", restored)
	}
}

func TestFileDeleteRollbackRecreatesParents(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "nested", "b.txt")

	entry, err := j.FileDelete("run-1", path, "contents")
	if err != nil {
		t.Fatalf("FileDelete: %v", err)
	}
	if err := j.RollbackEntry(entry.ID, "run-1"); err != nil {
		t.Fatalf("RollbackEntry: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not recreated: %v", err)
	}
	if string(data) != "contents" {
		t.Errorf("recreated content = %q", data)
	}
}

func TestRollbackEntryGuards(t *testing.T) {
	j := newTestJournal(t)

	// Not found.
	if err := j.RollbackEntry("missing", "run-1"); err == nil {
		t.Errorf("expected error for missing entry")
	}

	// Not reversible.
	entry, err := j.TerminalCommand("run-1", "echo hi", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.RollbackEntry(entry.ID, "run-1"); err == nil {
		t.Errorf("expected error for non-reversible entry")
	}

	// Already rolled back.
	dir := t.TempDir()
	path := filepath.Join(dir, "c.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err := j.FileCreate("run-1", path, "x")
	if err != nil {
		t.Fatal(err)
	}
	if err := j.RollbackEntry(created.ID, "run-1"); err != nil {
		t.Fatalf("first rollback: %v", err)
	}
	if err := j.RollbackEntry(created.ID, "run-1"); err == nil {
		t.Errorf("expected error for already rolled back entry")
	}
}

func TestRollbackRunRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	// Create, modify, delete: the pre-run state (no file) must come back.
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := j.FileCreate("run-s3", path, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := j.FileModify("run-s3", path, "v1", "v2", "modified a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := j.FileDelete("run-s3", path, "v2"); err != nil {
		t.Fatal(err)
	}

	result, err := j.RollbackRun("run-s3")
	if err != nil {
		t.Fatalf("RollbackRun: %v", err)
	}
	if !result.Success {
		t.Fatalf("rollback failed: %+v", result.Results)
	}
	if len(result.Results) != 3 {
		t.Errorf("attempted %d rollbacks, want 3", len(result.Results))
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("a.txt should not exist after full rollback")
	}
}

func TestRollbackRunIdempotent(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "d.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := j.FileCreate("run-2", path, "x"); err != nil {
		t.Fatal(err)
	}

	first, err := j.RollbackRun("run-2")
	if err != nil {
		t.Fatalf("first RollbackRun: %v", err)
	}
	if !first.Success || len(first.Results) != 1 {
		t.Fatalf("first rollback: %+v", first)
	}

	// Second pass has nothing left to do and must not resurrect state.
	second, err := j.RollbackRun("run-2")
	if err != nil {
		t.Fatalf("second RollbackRun: %v", err)
	}
	if !second.Success || len(second.Results) != 0 {
		t.Errorf("second rollback should attempt nothing: %+v", second)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file must stay absent after double rollback")
	}
}

func TestRollbackRunReverseOrder(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()

	// Directory then file inside it: reverse order must remove the file
	// before the directory so both succeed.
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := j.DirectoryCreate("run-3", sub); err != nil {
		t.Fatal(err)
	}
	inner := filepath.Join(sub, "f.txt")
	if err := os.WriteFile(inner, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := j.FileCreate("run-3", inner, "y"); err != nil {
		t.Fatal(err)
	}

	result, err := j.RollbackRun("run-3")
	if err != nil {
		t.Fatalf("RollbackRun: %v", err)
	}
	if !result.Success {
		t.Fatalf("rollback failed: %+v", result.Results)
	}
	if result.Results[0].Target != inner {
		t.Errorf("first rolled-back target = %s, want the file (reverse insertion order)", result.Results[0].Target)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Errorf("directory should be removed")
	}
}

func TestSyntheticRecordsAndSummary(t *testing.T) {
	j := newTestJournal(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "e.txt")

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err := j.FileCreate("run-4", path, "x")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.TerminalCommand("run-4", "echo hi", "hi"); err != nil {
		t.Fatal(err)
	}
	if err := j.RollbackEntry(created.ID, "run-4"); err != nil {
		t.Fatal(err)
	}

	entries, err := j.Entries("run-4")
	if err != nil {
		t.Fatal(err)
	}
	var synthetic *Entry
	for _, e := range entries {
		if strings.HasPrefix(e.ID, "rollback-") {
			synthetic = e
		}
		if e.ID == created.ID && !e.RolledBack {
			t.Errorf("original entry not marked rolled back")
		}
	}
	if synthetic == nil {
		t.Fatalf("expected synthetic rollback record")
	}
	if synthetic.ID != "rollback-"+created.ID {
		t.Errorf("synthetic id = %s", synthetic.ID)
	}

	summary, err := j.SummaryForRun("run-4")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Entries != 2 {
		t.Errorf("summary entries = %d, want 2 (synthetic excluded)", summary.Entries)
	}
	if summary.RolledBack != 1 {
		t.Errorf("summary rolledBack = %d, want 1", summary.RolledBack)
	}
}

func TestListRuns(t *testing.T) {
	j := newTestJournal(t)
	if _, err := j.TerminalCommand("run-b", "ls", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := j.TerminalCommand("run-a", "ls", ""); err != nil {
		t.Fatal(err)
	}

	runs, err := j.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0] != "run-a" || runs[1] != "run-b" {
		t.Errorf("ListRuns = %v", runs)
	}
}
