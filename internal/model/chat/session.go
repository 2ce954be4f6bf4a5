package chat

import "time"

// DefaultSessionTitle 新会话的默认标题。
const DefaultSessionTitle = "新對話"

// Session captures the denormalized metadata kept beside a session's logs.
// MessageCount is advisory and may drift from the live log length.
type Session struct {
	ID           string    `json:"session_id" yaml:"session_id"`
	Title        string    `json:"title" yaml:"title"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	MessageCount int64     `json:"message_count" yaml:"message_count"`
}

// AuditEvent is one transition recorded in a session's audit stream.
// Several events may share a TS; the stream is never read as current state.
type AuditEvent struct {
	StreamID  string `json:"stream_id,omitempty"`
	SessionID string `json:"session_id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	TS        int64  `json:"ts"`
	Deleted   bool   `json:"deleted"`
}
