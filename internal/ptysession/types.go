package ptysession

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// ActivityStatus is a coarse classification of recent PTY output.
type ActivityStatus string

const (
	ActivityBusy    ActivityStatus = "busy"
	ActivityIdle    ActivityStatus = "idle"
	ActivityUnknown ActivityStatus = "unknown"
)

// busyWindow is how recently a Session must have emitted output to be
// considered busy.
const busyWindow = 30 * time.Second

// Info is the serializable snapshot of a Session returned to clients.
type Info struct {
	ID                  string         `json:"id"`
	Cwd                 string         `json:"cwd"`
	CreatedAt           time.Time      `json:"createdAt"`
	Status              Status         `json:"status"`
	ActivityStatus      ActivityStatus `json:"activityStatus"`
	PID                 int            `json:"pid,omitempty"`
	LastActivityInstant time.Time      `json:"lastActivityInstant"`
}

// EventType classifies a parsed chunk of PTY output.
type EventType string

const (
	EventText      EventType = "text"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventAskUser   EventType = "ask_user"
	EventDiff      EventType = "diff"
)

// Option is one choice offered by an ask_user prompt.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// OutputEvent is the best-effort heuristic classification of one PTY
// output chunk, computed on ANSI-stripped text, which it carries in
// Content; the raw bytes are always forwarded verbatim alongside it.
type OutputEvent struct {
	Type     EventType `json:"type"`
	ToolName string    `json:"toolName,omitempty"`
	Options  []Option  `json:"options,omitempty"`
	Content  string    `json:"content"`
}
