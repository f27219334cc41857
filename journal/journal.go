// Package journal records reversible effects with their before-state and
// supports per-entry and per-run rollback. Each run writes newline-delimited
// JSON records to its own file, so concurrent runs never contend on journal
// state. Before-states of modified or deleted files are copied into uniquely
// named backup artifacts that must outlive the entries referencing them.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionKind classifies a journal entry.
type ActionKind string

const (
	ActionFileCreate      ActionKind = "file_create"
	ActionFileModify      ActionKind = "file_modify"
	ActionFileDelete      ActionKind = "file_delete"
	ActionDirectoryCreate ActionKind = "directory_create"
	ActionTerminalCommand ActionKind = "terminal_command"
	ActionBrowserAction   ActionKind = "browser_action"
	ActionEmailSend       ActionKind = "email_send"
	ActionCalendarEvent   ActionKind = "calendar_event"
	ActionChatMessage     ActionKind = "chat_message"
)

// nullContent is the sentinel recorded when a file did not exist before.
const nullContent = "null"

// Entry is one journal record.
type Entry struct {
	ID          string            `json:"id"`
	Timestamp   string            `json:"timestamp"`
	RunID       string            `json:"runId"`
	ActionKind  ActionKind        `json:"actionKind"`
	Target      string            `json:"target"`
	Description string            `json:"description"`
	Before      string            `json:"before,omitempty"`
	After       string            `json:"after,omitempty"`
	Command     string            `json:"command,omitempty"`
	Reversible  bool              `json:"reversible"`
	RolledBack  bool              `json:"rolledBack"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RollbackResult reports the outcome of rolling back one entry.
type RollbackResult struct {
	EntryID string `json:"entryId"`
	Target  string `json:"target"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RunRollback aggregates the per-entry results of a run rollback. Success
// requires every attempted rollback to succeed.
type RunRollback struct {
	RunID   string           `json:"runId"`
	Success bool             `json:"success"`
	Results []RollbackResult `json:"results"`
}

// Summary aggregates a run's journal for reporting.
type Summary struct {
	RunID      string             `json:"runId"`
	Entries    int                `json:"entries"`
	ByKind     map[ActionKind]int `json:"byKind"`
	Reversible int                `json:"reversible"`
	RolledBack int                `json:"rolledBack"`
}

// Journal manages the per-run journal files and backup artifacts.
type Journal struct {
	dir        string
	backupsDir string
}

// New creates a Journal rooted at dir, with backup artifacts in backupsDir.
// Both directories are created here if missing.
func New(dir, backupsDir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	if err := os.MkdirAll(backupsDir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create backups dir: %w", err)
	}
	return &Journal{dir: dir, backupsDir: backupsDir}, nil
}

func (j *Journal) runFile(runID string) string {
	return filepath.Join(j.dir, runID+".jsonl")
}

func newEntry(runID string, kind ActionKind, target, description string, reversible bool) *Entry {
	return &Entry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		RunID:       runID,
		ActionKind:  kind,
		Target:      target,
		Description: description,
		Reversible:  reversible,
	}
}

// FileCreate records the creation of a file. Rollback deletes the file.
func (j *Journal) FileCreate(runID, path, content string) (*Entry, error) {
	e := newEntry(runID, ActionFileCreate, path, "Created file "+path, true)
	e.Before = nullContent
	e.After = content
	return e, j.append(e)
}

// FileModify records a file modification. The before-state is copied into a
// backup artifact in addition to being stored inline; rollback prefers the
// backup.
func (j *Journal) FileModify(runID, path, before, after, description string) (*Entry, error) {
	e := newEntry(runID, ActionFileModify, path, description, true)
	e.Before = before
	e.After = after

	backup, err := j.writeBackup(e.ID, path, before)
	if err != nil {
		return nil, err
	}
	e.Metadata = map[string]string{"backupPath": backup}
	return e, j.append(e)
}

// FileDelete records a file deletion. Rollback recreates the file and any
// missing parent directories.
func (j *Journal) FileDelete(runID, path, before string) (*Entry, error) {
	e := newEntry(runID, ActionFileDelete, path, "Deleted file "+path, true)
	e.Before = before

	backup, err := j.writeBackup(e.ID, path, before)
	if err != nil {
		return nil, err
	}
	e.Metadata = map[string]string{"backupPath": backup}
	return e, j.append(e)
}

// DirectoryCreate records the creation of a directory. Rollback attempts to
// remove it and fails if it is no longer empty.
func (j *Journal) DirectoryCreate(runID, path string) (*Entry, error) {
	e := newEntry(runID, ActionDirectoryCreate, path, "Created directory "+path, true)
	return e, j.append(e)
}

// TerminalCommand records a shell command execution. Not reversible.
func (j *Journal) TerminalCommand(runID, command, output string) (*Entry, error) {
	e := newEntry(runID, ActionTerminalCommand, "", "Ran command: "+command, false)
	e.Command = command
	e.After = output
	return e, j.append(e)
}

// EmailSend records an outbound email. Not reversible.
func (j *Journal) EmailSend(runID, to, subject string) (*Entry, error) {
	e := newEntry(runID, ActionEmailSend, to, "Sent email to "+to+": "+subject, false)
	return e, j.append(e)
}

// ChatMessage records an outbound chat message. Not reversible.
func (j *Journal) ChatMessage(runID, channel, preview string) (*Entry, error) {
	e := newEntry(runID, ActionChatMessage, channel, "Sent chat message to "+channel, false)
	e.After = preview
	return e, j.append(e)
}

// CalendarEvent records a calendar mutation. Not reversible.
func (j *Journal) CalendarEvent(runID, title string) (*Entry, error) {
	e := newEntry(runID, ActionCalendarEvent, title, "Created calendar event "+title, false)
	return e, j.append(e)
}

// Entries returns all recorded entries for a run in insertion order.
func (j *Journal) Entries(runID string) ([]*Entry, error) {
	data, err := os.ReadFile(j.runFile(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: read run %s: %w", runID, err)
	}

	var entries []*Entry
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("journal: corrupt record in run %s: %w", runID, err)
		}
		entries = append(entries, &e)
	}
	return entries, nil
}

// ListRuns returns the run ids that have journal files, sorted.
func (j *Journal) ListRuns() ([]string, error) {
	dirents, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: list runs: %w", err)
	}
	var runs []string
	for _, de := range dirents {
		name := de.Name()
		if strings.HasSuffix(name, ".jsonl") {
			runs = append(runs, strings.TrimSuffix(name, ".jsonl"))
		}
	}
	sort.Strings(runs)
	return runs, nil
}

// SummaryForRun tallies a run's journal by kind and reversibility.
func (j *Journal) SummaryForRun(runID string) (*Summary, error) {
	entries, err := j.Entries(runID)
	if err != nil {
		return nil, err
	}
	s := &Summary{RunID: runID, ByKind: make(map[ActionKind]int)}
	for _, e := range entries {
		if strings.HasPrefix(e.ID, "rollback-") {
			continue
		}
		s.Entries++
		s.ByKind[e.ActionKind]++
		if e.Reversible {
			s.Reversible++
		}
		if e.RolledBack {
			s.RolledBack++
		}
	}
	return s, nil
}

// RollbackEntry restores the effect of one entry. It fails when the entry
// does not exist, is not reversible, or was already rolled back. On success
// a synthetic rollback record is appended and the original is marked rolled
// back.
func (j *Journal) RollbackEntry(entryID, runID string) error {
	entries, err := j.Entries(runID)
	if err != nil {
		return err
	}

	var target *Entry
	for _, e := range entries {
		if e.ID == entryID {
			target = e
			break
		}
	}
	if target == nil {
		return fmt.Errorf("journal: entry %s not found in run %s", entryID, runID)
	}
	if !target.Reversible {
		return fmt.Errorf("journal: entry %s is not reversible", entryID)
	}
	if target.RolledBack {
		return fmt.Errorf("journal: entry %s already rolled back", entryID)
	}

	if err := j.undo(target); err != nil {
		return err
	}

	target.RolledBack = true
	record := &Entry{
		ID:          "rollback-" + target.ID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		RunID:       runID,
		ActionKind:  target.ActionKind,
		Target:      target.Target,
		Description: "Rolled back: " + target.Description,
		Reversible:  false,
	}
	entries = append(entries, record)
	return j.rewrite(runID, entries)
}

// RollbackRun walks the run's entries in reverse insertion order, rolling
// back each reversible entry that has not been rolled back yet. Synthetic
// rollback records are skipped. Per-entry failures never abort the wider
// rollback; they are collected in the result.
func (j *Journal) RollbackRun(runID string) (*RunRollback, error) {
	entries, err := j.Entries(runID)
	if err != nil {
		return nil, err
	}

	result := &RunRollback{RunID: runID, Success: true}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if strings.HasPrefix(e.ID, "rollback-") || !e.Reversible || e.RolledBack {
			continue
		}

		r := RollbackResult{EntryID: e.ID, Target: e.Target, Success: true}
		if err := j.undo(e); err != nil {
			r.Success = false
			r.Error = err.Error()
			result.Success = false
		} else {
			e.RolledBack = true
			entries = append(entries, &Entry{
				ID:          "rollback-" + e.ID,
				Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
				RunID:       runID,
				ActionKind:  e.ActionKind,
				Target:      e.Target,
				Description: "Rolled back: " + e.Description,
				Reversible:  false,
			})
		}
		result.Results = append(result.Results, r)
	}

	if err := j.rewrite(runID, entries); err != nil {
		return nil, err
	}
	return result, nil
}

// undo reverses the filesystem effect of one entry.
func (j *Journal) undo(e *Entry) error {
	switch e.ActionKind {
	case ActionFileCreate:
		if err := os.Remove(e.Target); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("journal: remove %s: %w", e.Target, err)
		}
		return nil

	case ActionFileModify, ActionFileDelete:
		before, err := j.beforeState(e)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(e.Target), 0o755); err != nil {
			return fmt.Errorf("journal: recreate parents of %s: %w", e.Target, err)
		}
		if err := os.WriteFile(e.Target, []byte(before), 0o644); err != nil {
			return fmt.Errorf("journal: restore %s: %w", e.Target, err)
		}
		return nil

	case ActionDirectoryCreate:
		if err := os.Remove(e.Target); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("journal: remove directory %s: %w", e.Target, err)
		}
		return nil

	default:
		return fmt.Errorf("journal: action %s is not reversible", e.ActionKind)
	}
}

// beforeState returns the original content for a modify/delete entry,
// preferring the backup artifact over the inline copy.
func (j *Journal) beforeState(e *Entry) (string, error) {
	if backup := e.Metadata["backupPath"]; backup != "" {
		data, err := os.ReadFile(backup)
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("journal: read backup %s: %w", backup, err)
		}
	}
	if e.Before == "" || e.Before == nullContent {
		return "", fmt.Errorf("journal: entry %s has no recoverable before-state", e.ID)
	}
	return e.Before, nil
}

func (j *Journal) writeBackup(entryID, path, content string) (string, error) {
	backup := filepath.Join(j.backupsDir, entryID+"-"+filepath.Base(path))
	if err := os.WriteFile(backup, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("journal: write backup for %s: %w", path, err)
	}
	return backup, nil
}

func (j *Journal) append(e *Entry) error {
	f, err := os.OpenFile(j.runFile(e.RunID), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open run %s: %w", e.RunID, err)
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: append entry: %w", err)
	}
	return nil
}

func (j *Journal) rewrite(runID string, entries []*Entry) error {
	var sb strings.Builder
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("journal: encode entry: %w", err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	return os.WriteFile(j.runFile(runID), []byte(sb.String()), 0o644)
}
