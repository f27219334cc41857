package agent

import (
	"crypto/sha256"
	"fmt"

	"github.com/martinemde/conductor/llm"
)

// toolCallSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func toolCallSignature(call llm.ToolCall) string {
	h := sha256.Sum256(call.Arguments)
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// recentToolSignatures extracts the signatures of the most recent tool
// calls in chronological order.
func recentToolSignatures(messages []llm.Message, count int) []string {
	var sigs []string
	for i := len(messages) - 1; i >= 0 && len(sigs) < count; i-- {
		msg := messages[i]
		if msg.Role != llm.RoleAssistant {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(msg.ToolCalls[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// detectToolLoop returns a steering message when the last windowSize tool
// calls follow a repeating pattern of length 1, 2, or 3, and "" otherwise.
// Only pattern lengths that divide windowSize are checked.
func detectToolLoop(messages []llm.Message, windowSize int) string {
	sigs := recentToolSignatures(messages, windowSize)
	if len(sigs) < windowSize {
		return ""
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return fmt.Sprintf("The last %d tool calls follow a repeating pattern. Try a different approach.", windowSize)
		}
	}
	return ""
}
