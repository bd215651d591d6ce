package model

import "time"

// Hook event types emitted by the gateway. Cron events may carry a
// schedule suffix (cron:hourly); matchers treat the bare type as a tier.
const (
	EventGateway   = "gateway"
	EventSession   = "session"
	EventCommand   = "command"
	EventCron      = "cron"
	EventHeartbeat = "heartbeat"
	EventAgent     = "agent"
)

// Hook event actions.
const (
	ActionStartup = "startup"
	ActionEnd     = "end"
	ActionNew     = "new"
)

// HookEvent is an internal event delivered to registered hooks. Hooks may
// append follow-up messages; Context is read-mostly caller data.
type HookEvent struct {
	ID         string
	Type       string
	Action     string
	SessionKey string
	Context    map[string]any
	Messages   []Message
	Timestamp  time.Time
}

// AddMessage appends a hook-contributed follow-up message.
func (e *HookEvent) AddMessage(role, content string) {
	e.Messages = append(e.Messages, Message{Role: role, Content: content, Timestamp: e.Timestamp})
}
