package chat

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

// Registry tracks active sessions and owns their namespaces.
type Registry struct {
	base
	messages *Log
	audit    *AuditWriter
	welcome  string
}

// NewRegistry builds the session registry.
func NewRegistry(rdb redis.UniversalClient, messages *Log, audit *AuditWriter, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{
		base:     newBase(rdb, opts),
		messages: messages,
		audit:    audit,
		welcome:  opts.WelcomeMessage,
	}
}

// CreateSession adds sessionID to the active set and posts a welcome message,
// both in one transaction. Calling it again for an existing session is
// allowed and posts another welcome message; the original title and creation
// time are kept.
func (r *Registry) CreateSession(ctx context.Context, sessionID string) (chat.Session, error) {
	welcome, encoded, err := r.messages.prepare(sessionID, chat.Message{
		Sender:  AssistantSender,
		Content: r.welcome,
	})
	if err != nil {
		return chat.Session{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	metaKey := store.SessionKey(sessionID)
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, store.ActiveSessionsKey, sessionID)
		pipe.HSetNX(ctx, metaKey, "session_id", sessionID)
		pipe.HSetNX(ctx, metaKey, "title", chat.DefaultSessionTitle)
		pipe.HSetNX(ctx, metaKey, "created_at", strconv.FormatInt(welcome.TS, 10))
		queueAppend(ctx, pipe, sessionID, encoded)
		return nil
	})
	if err != nil {
		return chat.Session{}, backendErr("create session", err)
	}
	r.audit.Emit(ctx, sessionID, welcome, false)

	fields, err := r.rdb.HGetAll(ctx, metaKey).Result()
	if err != nil {
		return chat.Session{}, backendErr("create session", err)
	}
	session, _ := parseSession(sessionID, fields)

	r.log.Info("session created", "session_id", sessionID)
	return session, nil
}

// DeleteSession removes sessionID from the active set and deletes its live
// log, quarantine log, audit stream and metadata in one transaction, so a
// failed call leaves the session registered and can be retried. It is
// irreversible.
func (r *Registry) DeleteSession(ctx context.Context, sessionID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err := r.update(ctx, "delete session", func(tx *redis.Tx) error {
		active, err := tx.SIsMember(ctx, store.ActiveSessionsKey, sessionID).Result()
		if err != nil {
			return err
		}
		if !active {
			return ErrSessionNotFound
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, store.ActiveSessionsKey, sessionID)
			pipe.Del(ctx, store.SessionKeys(sessionID)...)
			return nil
		})
		return err
	}, store.ActiveSessionsKey)
	if err != nil {
		return err
	}

	r.log.Info("session deleted", "session_id", sessionID)
	return nil
}

// ListSessions returns every active session that has a metadata record,
// sorted by id. Active ids without metadata are omitted.
func (r *Registry) ListSessions(ctx context.Context) ([]chat.Session, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	ids, err := r.rdb.SMembers(ctx, store.ActiveSessionsKey).Result()
	if err != nil {
		return nil, backendErr("list sessions", err)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return []chat.Session{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, store.SessionKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, backendErr("list sessions", err)
	}

	sessions := make([]chat.Session, 0, len(ids))
	for i, id := range ids {
		session, ok := parseSession(id, cmds[i].Val())
		if !ok {
			r.log.Debug("active session without metadata", "session_id", id)
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// parseSession reads a metadata hash. A hash without created_at was only
// touched by counter updates and counts as absent.
func parseSession(id string, fields map[string]string) (chat.Session, bool) {
	rawCreated, ok := fields["created_at"]
	if !ok {
		return chat.Session{}, false
	}
	createdMs, err := strconv.ParseInt(rawCreated, 10, 64)
	if err != nil {
		return chat.Session{}, false
	}

	count, _ := strconv.ParseInt(fields["message_count"], 10, 64)
	title := fields["title"]
	if title == "" {
		title = chat.DefaultSessionTitle
	}

	return chat.Session{
		ID:           id,
		Title:        title,
		CreatedAt:    time.UnixMilli(createdMs).UTC(),
		MessageCount: count,
	}, true
}
