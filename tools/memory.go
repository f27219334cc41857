package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/martinemde/conductor/llm"
)

// memoStore is the simple key/value overlay behind the memory tool,
// persisted as a single JSON file.
type memoStore struct {
	path string
	mu   sync.Mutex
}

func newMemoStore(path string) *memoStore {
	return &memoStore{path: path}
}

func (m *memoStore) load() (map[string]string, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("memo: read: %w", err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("memo: corrupt store: %w", err)
	}
	return values, nil
}

func (m *memoStore) save(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("memo: create dir: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("memo: encode: %w", err)
	}
	return os.WriteFile(m.path, data, 0o644)
}

func (m *memoStore) store(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, err := m.load()
	if err != nil {
		return err
	}
	values[key] = value
	return m.save(values)
}

func (m *memoStore) retrieve(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, err := m.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (m *memoStore) search(query string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, err := m.load()
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	matches := map[string]string{}
	for k, v := range values {
		if strings.Contains(strings.ToLower(k), query) || strings.Contains(strings.ToLower(v), query) {
			matches[k] = v
		}
	}
	return matches, nil
}

func (m *memoStore) keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	values, err := m.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (tb *Toolbox) registerMemory(reg *Registry) error {
	return reg.Register(llm.ToolDefinition{
		Name:        "memory",
		Description: "Store and recall facts across runs in a key/value memory.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{
					"type": "string",
					"enum": []any{"store", "retrieve", "search", "list"},
				},
				"key": map[string]any{
					"type": "string",
				},
				"value": map[string]any{
					"type": "string",
				},
				"query": map[string]any{
					"type": "string",
				},
			},
			"required": []any{"operation"},
		},
	}, func(ctx context.Context, runID string, args map[string]any) (any, error) {
		operation, _ := StringArg(args, "operation")
		switch operation {
		case "store":
			key, ok := StringArg(args, "key")
			if !ok || key == "" {
				return nil, fmt.Errorf("key is required for store")
			}
			value, _ := StringArg(args, "value")
			if err := tb.memo.store(key, value); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Stored %q", key), nil

		case "retrieve":
			key, ok := StringArg(args, "key")
			if !ok || key == "" {
				return nil, fmt.Errorf("key is required for retrieve")
			}
			value, found, err := tb.memo.retrieve(key)
			if err != nil {
				return nil, err
			}
			if !found {
				return fmt.Sprintf("No memory for %q", key), nil
			}
			return value, nil

		case "search":
			query, ok := StringArg(args, "query")
			if !ok || query == "" {
				return nil, fmt.Errorf("query is required for search")
			}
			return tb.memo.search(query)

		case "list":
			return tb.memo.keys()

		default:
			return nil, fmt.Errorf("unsupported memory operation: %s", operation)
		}
	})
}
