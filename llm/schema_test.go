package llm

import (
	"reflect"
	"testing"
)

func TestCleanSchemaStripsUnsupportedKeywords(t *testing.T) {
	schema := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"additionalProperties": false,
		"title":                "X",
		"type":                 "object",
		"properties": map[string]any{
			"n": map[string]any{"type": "number"},
		},
	}

	cleaned := CleanSchema(schema)

	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n": map[string]any{"type": "number"},
		},
	}
	if !reflect.DeepEqual(cleaned, want) {
		t.Errorf("CleanSchema = %#v, want %#v", cleaned, want)
	}
}

func TestCleanSchemaRecursesNestedLevels(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"items": map[string]any{
				"type":    "array",
				"default": []any{},
				"items": map[string]any{
					"type":     "object",
					"examples": []any{"a"},
					"properties": map[string]any{
						"name": map[string]any{"type": "string", "title": "Name"},
					},
				},
			},
		},
	}

	cleaned := CleanSchema(schema)

	items := cleaned["properties"].(map[string]any)["items"].(map[string]any)
	if _, ok := items["default"]; ok {
		t.Errorf("default not stripped at depth 2")
	}
	inner := items["items"].(map[string]any)
	if _, ok := inner["examples"]; ok {
		t.Errorf("examples not stripped at depth 3")
	}
	name := inner["properties"].(map[string]any)["name"].(map[string]any)
	if _, ok := name["title"]; ok {
		t.Errorf("title not stripped at depth 4")
	}
	if name["type"] != "string" {
		t.Errorf("kept keywords lost")
	}
}

func TestCleanSchemaDoesNotMutateInput(t *testing.T) {
	schema := map[string]any{
		"$schema": "x",
		"type":    "object",
	}
	_ = CleanSchema(schema)
	if _, ok := schema["$schema"]; !ok {
		t.Errorf("input schema was mutated")
	}
}

func TestCleanSchemaNil(t *testing.T) {
	if CleanSchema(nil) != nil {
		t.Errorf("nil schema should stay nil")
	}
}
