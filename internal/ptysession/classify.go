package ptysession

import (
	"regexp"
	"strings"
)

// ansiPattern strips ANSI/VT100 escape sequences for pattern matching
// only; the raw bytes handed to clients are never touched by this.
var ansiPattern = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[a-zA-Z]|\][^\x07]*\x07|[@-Z\\-_])`)

var numberedLinePattern = regexp.MustCompile(`(?m)^(\d+)\.\s+(.+)$`)

var toolTokenPattern = regexp.MustCompile(`\b(Read|Edit|Write|Bash|Glob|Grep)\b`)

// classify applies the spec's best-effort heuristics to one chunk of PTY
// output. It is intentionally naive: false positives on ask_user for
// unrelated numbered lists are a known, accepted tradeoff, not a bug.
func classify(raw []byte) OutputEvent {
	stripped := ansiPattern.ReplaceAllString(string(raw), "")

	if opts := askUserOptions(stripped); len(opts) >= 2 {
		return OutputEvent{Type: EventAskUser, Options: opts, Content: stripped}
	}

	if m := toolTokenPattern.FindStringSubmatch(stripped); m != nil {
		return OutputEvent{Type: EventToolStart, ToolName: m[1], Content: stripped}
	}

	if strings.Contains(stripped, "@@") && (strings.Contains(stripped, "+") || strings.Contains(stripped, "-")) {
		return OutputEvent{Type: EventDiff, Content: stripped}
	}

	return OutputEvent{Type: EventText, Content: stripped}
}

// askUserOptions extracts an ordered list of numbered-line options, but
// only when the text also contains a question mark, per the spec's
// heuristic.
func askUserOptions(stripped string) []Option {
	if !strings.Contains(stripped, "?") {
		return nil
	}
	matches := numberedLinePattern.FindAllStringSubmatch(stripped, -1)
	if len(matches) < 2 {
		return nil
	}
	opts := make([]Option, 0, len(matches))
	for _, m := range matches {
		opts = append(opts, Option{Label: m[1], Value: strings.TrimSpace(m[2])})
	}
	return opts
}
