// Package agent – structured transport notifications
//
// Out-of-band status events published alongside spoken responses so the
// frontend can render tool activity (spinners, error banners) in real time.
package agent

// Notification event types.
const (
	EventToolStarted = "tool_started"
	EventToolSuccess = "tool_success"
	EventToolError   = "tool_error"
)

// Notification is a structured out-of-band status event carrying the tool
// name and a human-readable message.
type Notification struct {
	Event   string `json:"event"`
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ToolStarted reports that a tool invocation has begun.
func ToolStarted(tool, message string) Notification {
	return Notification{Event: EventToolStarted, Tool: tool, Message: message}
}

// ToolSuccess reports that a tool invocation completed.
func ToolSuccess(tool, message string) Notification {
	return Notification{Event: EventToolSuccess, Tool: tool, Message: message}
}

// ToolError reports a failed tool invocation.
func ToolError(tool, message, errMsg string) Notification {
	return Notification{Event: EventToolError, Tool: tool, Message: message, Error: errMsg}
}
