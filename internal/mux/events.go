package mux

import "encoding/json"

// event builds one binary control frame's JSON payload. Using a plain
// map here mirrors the gin.H convention used for the HTTP surface's
// JSON responses elsewhere in this codebase.
func event(eventType string, fields map[string]any) []byte {
	m := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		m[k] = v
	}
	m["type"] = eventType
	data, err := json.Marshal(m)
	if err != nil {
		return errorEvent("failed to encode event " + eventType)
	}
	return data
}

func errorEvent(message string) []byte {
	data, _ := json.Marshal(map[string]any{"type": "error", "error": message})
	return data
}
