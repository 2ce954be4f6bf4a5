package chat

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

const maxSessionIDLength = 100

// Log manages the append-only live log of each session.
type Log struct {
	base
}

// NewLog builds a Log over rdb.
func NewLog(rdb redis.UniversalClient, opts Options) *Log {
	return &Log{base: newBase(rdb, opts.withDefaults())}
}

// Append pushes msg to the end of the session's live log. No ts uniqueness
// check is made. Missing ts and id are assigned by the server.
func (l *Log) Append(ctx context.Context, sessionID string, msg chat.Message) (chat.Message, error) {
	msg, encoded, err := l.prepare(sessionID, msg)
	if err != nil {
		return chat.Message{}, err
	}

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	_, err = l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		queueAppend(ctx, pipe, sessionID, encoded)
		return nil
	})
	if err != nil {
		return chat.Message{}, backendErr("append", err)
	}

	l.log.Debug("message appended", "session_id", sessionID, "ts", msg.TS, "sender", msg.Sender)
	return msg, nil
}

// prepare validates msg, fills the server-owned fields and encodes it.
func (l *Log) prepare(sessionID string, msg chat.Message) (chat.Message, string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return chat.Message{}, "", err
	}
	if strings.TrimSpace(msg.Sender) == "" {
		return chat.Message{}, "", invalidf("sender is required")
	}
	if msg.Content == "" {
		return chat.Message{}, "", invalidf("content is required")
	}

	now := l.now()
	msg.SessionID = sessionID
	if msg.TS == 0 {
		msg.TS = now.UnixMilli()
	}
	if msg.ID == "" {
		id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
		if err != nil {
			return chat.Message{}, "", err
		}
		msg.ID = id.String()
	}

	encoded, err := msg.Encode()
	if err != nil {
		return chat.Message{}, "", invalidf("encode message: %v", err)
	}
	return msg, encoded, nil
}

func queueAppend(ctx context.Context, pipe redis.Pipeliner, sessionID, encoded string) {
	pipe.RPush(ctx, store.HistoryKey(sessionID), encoded)
	pipe.HIncrBy(ctx, store.SessionKey(sessionID), "message_count", 1)
}

// ReadAll returns the live log in append order. Legacy tombstones and
// undecodable entries are skipped.
func (l *Log) ReadAll(ctx context.Context, sessionID string) ([]chat.Message, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	key := store.HistoryKey(sessionID)
	raw, err := l.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, backendErr("read history", err)
	}

	messages := make([]chat.Message, 0, len(raw))
	for i, entry := range raw {
		msg, ok, err := chat.DecodeMessage(entry)
		if err != nil {
			l.warnMalformed(sessionID, key, i, err)
			continue
		}
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return invalidf("session id is required")
	}
	if len(sessionID) > maxSessionIDLength {
		return invalidf("session id longer than %d bytes", maxSessionIDLength)
	}
	return nil
}
