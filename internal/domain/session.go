// Package domain contains core domain types for the DataPilot application.
package domain

import (
	"time"
)

// Message roles recorded in a session history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single entry in a conversation history.
// Messages are immutable once appended.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session represents one user's ongoing conversation, including message
// history and arbitrary context such as the bound dataset path.
type Session struct {
	ID           string         `json:"session_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Metadata     map[string]any `json:"metadata"`
	History      []Message      `json:"conversation_history"`
	Context      map[string]any `json:"context"`
}

// Age returns how long ago the session was last active.
func (s *Session) Age() time.Duration {
	return time.Since(s.LastActivity)
}
