// Package model defines the core gateway data types.
package model

import "time"

// Record types found in transcript files. Readers other than the writer
// ignore everything except RecordMessage.
const (
	RecordMessage = "message"
	RecordToolUse = "tool_use"
	RecordSystem  = "system"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ValidRoles are the allowed message roles.
var ValidRoles = map[string]bool{
	RoleUser:      true,
	RoleAssistant: true,
}

// SessionEntry is the durable metadata for one session key.
type SessionEntry struct {
	SessionID    string    `json:"session_id"`
	SessionFile  string    `json:"session_file"`
	AgentID      string    `json:"agent_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Message is one exchanged message inside a transcript record.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TranscriptRecord is one line of an append-only JSONL transcript.
// Non-message records carry a nil Message.
type TranscriptRecord struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
}

// TranscriptUpdate is the ephemeral event published after a transcript
// file has been appended. It is never persisted.
type TranscriptUpdate struct {
	SessionFile string
	Timestamp   time.Time
}
