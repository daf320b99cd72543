package mux

import "github.com/yazinsai/claude-code-remote/internal/prefs"

// inboundEnvelope is parsed first to dispatch on type before unmarshaling
// the full command-specific shape.
type inboundEnvelope struct {
	Type string `json:"type"`
}

type authCmd struct {
	Token string `json:"token"`
}

type preferencesSetCmd struct {
	Preferences prefs.Preferences `json:"preferences"`
}

type sessionCreateCmd struct {
	Cwd string `json:"cwd"`
}

type sessionAttachCmd struct {
	SessionID string `json:"sessionId"`
	HasCache  bool   `json:"hasCache"`
}

type sessionAdoptCmd struct {
	PID int    `json:"pid"`
	Cwd string `json:"cwd"`
}

type sessionDestroyCmd struct {
	SessionID string `json:"sessionId"`
}

type resizeCmd struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type imageUploadCmd struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

type scheduleCreateCmd struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	Cwd    string `json:"cwd"`
	Preset string `json:"preset"`
}

type scheduleUpdateCmd struct {
	ScheduleID string `json:"scheduleId"`
	Enabled    *bool  `json:"enabled"`
}

type scheduleIDCmd struct {
	ScheduleID string `json:"scheduleId"`
}

type scheduleLogCmd struct {
	ScheduleID string `json:"scheduleId"`
	Timestamp  string `json:"timestamp"`
}
