package tools

import (
	"fmt"
	"unicode/utf8"
)

// TruncateBytes cuts s to at most maxBytes, backing up to the nearest
// UTF-8 codepoint boundary so the result is always valid UTF-8. Appends a notice when truncation occurred.
func TruncateBytes(s string, maxBytes int, notice string) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if notice == "" {
		return truncated
	}
	return truncated + "\n" + notice
}

// TruncateToolResult enforces the 8 KiB cap the ReAct loop applies to
// every tool result before it re-enters the conversation.
const MaxToolResultBytes = 8 * 1024

func TruncateToolResult(s string) string {
	if len(s) <= MaxToolResultBytes {
		return s
	}
	return TruncateBytes(s, MaxToolResultBytes, fmt.Sprintf("[truncated: result exceeded %d bytes]", MaxToolResultBytes))
}
