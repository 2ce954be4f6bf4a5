package store

import "strings"

// ActiveSessionsKey is the set of live session ids.
const ActiveSessionsKey = "active_sessions"

const (
	historyPrefix = "chat_history:"
	deletedPrefix = "deleted_history:"
	streamPrefix  = "chat_stream:"
	sessionPrefix = "chatsession:"
)

// HistoryKey is the live log of a session.
func HistoryKey(sessionID string) string { return historyPrefix + sessionID }

// DeletedKey is the quarantine log of a session.
func DeletedKey(sessionID string) string { return deletedPrefix + sessionID }

// StreamKey is the audit stream partition of a session.
func StreamKey(sessionID string) string { return streamPrefix + sessionID }

// SessionKey is the metadata hash of a session.
func SessionKey(sessionID string) string { return sessionPrefix + sessionID }

// HistoryPattern matches every live log for SCAN.
const HistoryPattern = historyPrefix + "*"

// SessionFromHistoryKey extracts the session id from a live log key.
func SessionFromHistoryKey(key string) (string, bool) {
	if !strings.HasPrefix(key, historyPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(key, historyPrefix)
	return id, id != ""
}

// SessionKeys lists every key owned by a session.
func SessionKeys(sessionID string) []string {
	return []string{
		HistoryKey(sessionID),
		DeletedKey(sessionID),
		StreamKey(sessionID),
		SessionKey(sessionID),
	}
}
