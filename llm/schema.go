package llm

// Schema keywords that some dialects reject. Stripped recursively from
// argument schemas before they go on the wire.
var strippedSchemaKeywords = map[string]bool{
	"$schema":              true,
	"additionalProperties": true,
	"default":              true,
	"examples":             true,
	"title":                true,
}

// CleanSchema returns a deep copy of schema with unsupported keywords
// removed at every nesting level. The input is never mutated.
func CleanSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	cleaned := make(map[string]any, len(schema))
	for key, value := range schema {
		if strippedSchemaKeywords[key] {
			continue
		}
		cleaned[key] = cleanSchemaValue(value)
	}
	return cleaned
}

func cleanSchemaValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CleanSchema(v)
	case []any:
		cleaned := make([]any, len(v))
		for i, item := range v {
			cleaned[i] = cleanSchemaValue(item)
		}
		return cleaned
	default:
		return value
	}
}
