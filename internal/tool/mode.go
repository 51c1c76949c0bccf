package tool

import (
	"fmt"
	"strings"
)

// Mode is the safety envelope selected by a command's leading prefix.
type Mode string

const (
	ModeValidated  Mode = "validated"
	ModeDangerous  Mode = "dangerous"
	ModePrivileged Mode = "privileged"
	ModeBackground Mode = "background"
	ModeSandboxed  Mode = "sandboxed"
)

var prefixModes = map[string]Mode{
	"!@": ModeValidated,
	"!#": ModeDangerous,
	"!$": ModePrivileged,
	"!&": ModeBackground,
	"!~": ModeSandboxed,
}

// ParsePrefix splits a leading two-character mode prefix off input,
// returning the mode and the remaining text with surrounding whitespace
// trimmed. Absence of any prefix defaults to Validated. Any other leading
// `!<punct>` sequence is a parse error.
func ParsePrefix(input string) (Mode, string, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "!") {
		return ModeValidated, trimmed, nil
	}
	if len(trimmed) < 2 {
		return "", "", fmt.Errorf("tool: %q is not a valid mode prefix", trimmed)
	}
	prefix := trimmed[:2]
	mode, ok := prefixModes[prefix]
	if !ok {
		return "", "", fmt.Errorf("tool: unrecognised command prefix %q", prefix)
	}
	return mode, strings.TrimSpace(trimmed[2:]), nil
}
