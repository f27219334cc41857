package tools

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how oversized tool output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per tool before output re-enters the
// conversation. The dispatcher's audit events do not carry tool output.
var DefaultToolCharLimits = map[string]int{
	"filesystem": 50000,
	"terminal":   30000,
	"editor":     10000,
	"search":     20000,
	"journal":    20000,
	"memory":     20000,
}

// Default truncation modes per tool.
var DefaultTruncationModes = map[string]TruncationMode{
	"filesystem": TruncateHeadTail,
	"terminal":   TruncateHeadTail,
	"editor":     TruncateTail,
	"search":     TruncateTail,
	"journal":    TruncateTail,
	"memory":     TruncateTail,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	switch mode {
	case TruncateHeadTail:
		half := maxChars / 2
		removed := len(output) - maxChars
		return output[:half] +
			fmt.Sprintf("\n\n[Output truncated: %d characters removed from the middle. "+
				"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) +
			output[len(output)-half:]
	default:
		return output[:maxChars] + fmt.Sprintf("\n\n[Output truncated after %d characters.]", maxChars)
	}
}

// TruncateToolOutput truncates output using per-tool limits, falling back
// to the defaults. Zero limits disable truncation for a tool.
func TruncateToolOutput(output, toolName string, charLimits map[string]int) string {
	limit, ok := charLimits[toolName]
	if !ok {
		limit = DefaultToolCharLimits[toolName]
	}
	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateTail
	}
	out := TruncateOutput(output, limit, mode)
	// Guard against pathological single-line output.
	if strings.Count(out, "\n") == 0 && len(out) > 100000 {
		out = out[:100000]
	}
	return out
}
