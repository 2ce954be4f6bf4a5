package chat

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

// AuditWriter appends mutation records to the per-session audit stream.
// It is best effort: a failed append is logged and counted, never returned.
type AuditWriter struct {
	base
}

// NewAuditWriter builds the audit stream writer.
func NewAuditWriter(rdb redis.UniversalClient, opts Options) *AuditWriter {
	return &AuditWriter{base: newBase(rdb, opts.withDefaults())}
}

// Emit records one transition of msg. The append is detached from ctx
// cancellation so a caller that hangs up after the mutation still leaves a
// trail.
func (a *AuditWriter) Emit(ctx context.Context, sessionID string, msg chat.Message, deleted bool) {
	ctx, cancel := a.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	_, err := a.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: store.StreamKey(sessionID),
		Values: map[string]any{
			"session_id": sessionID,
			"sender":     msg.Sender,
			"content":    msg.Content,
			"ts":         strconv.FormatInt(msg.TS, 10),
			"deleted":    strconv.FormatBool(deleted),
		},
	}).Result()
	if err != nil {
		a.metrics.AuditFailures.Inc()
		a.log.Warn("audit stream append failed", "session_id", sessionID, "ts", msg.TS, "deleted", deleted, "error", err)
	}
}

// ParseAuditEvent converts a stream entry back into an AuditEvent. Readers
// live outside this package; the chat services only write.
func ParseAuditEvent(entry redis.XMessage) (chat.AuditEvent, error) {
	ev := chat.AuditEvent{StreamID: entry.ID}
	ev.SessionID, _ = entry.Values["session_id"].(string)
	ev.Sender, _ = entry.Values["sender"].(string)
	ev.Content, _ = entry.Values["content"].(string)

	rawTS, _ := entry.Values["ts"].(string)
	ts, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		return chat.AuditEvent{}, err
	}
	ev.TS = ts

	rawDeleted, _ := entry.Values["deleted"].(string)
	deleted, err := strconv.ParseBool(rawDeleted)
	if err != nil {
		return chat.AuditEvent{}, err
	}
	ev.Deleted = deleted
	return ev, nil
}
