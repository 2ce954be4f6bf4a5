package chat

import (
	"context"
	"math"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

// Quarantine moves messages between a session's live log and its deleted
// history. Every move is a watched read-modify-write, so concurrent callers on
// the same session retry instead of overwriting each other's result.
type Quarantine struct {
	base
	audit *AuditWriter
}

// NewQuarantine builds the delete/restore engine.
func NewQuarantine(rdb redis.UniversalClient, audit *AuditWriter, opts Options) *Quarantine {
	return &Quarantine{base: newBase(rdb, opts.withDefaults()), audit: audit}
}

// DeleteBatch moves every live entry whose ts is in tsList to the quarantine
// log stamped with the current time. One tombstone audit event is emitted per
// requested ts, found or not. It returns the number of entries moved.
func (q *Quarantine) DeleteBatch(ctx context.Context, sessionID string, tsList []int64) (int, error) {
	if err := validateSessionID(sessionID); err != nil {
		return 0, err
	}
	if len(tsList) == 0 {
		return 0, nil
	}

	targets := make(map[int64]struct{}, len(tsList))
	for _, ts := range tsList {
		targets[ts] = struct{}{}
	}

	histKey := store.HistoryKey(sessionID)
	delKey := store.DeletedKey(sessionID)
	deletedAt := q.now().Unix()

	opCtx, cancel := q.withTimeout(ctx)
	defer cancel()

	moved := 0
	err := q.update(opCtx, "delete batch", func(tx *redis.Tx) error {
		raw, err := tx.LRange(opCtx, histKey, 0, -1).Result()
		if err != nil {
			return err
		}

		kept := make([]any, 0, len(raw))
		removed := make([]any, 0, len(targets))
		for i, entry := range raw {
			msg, ok, err := chat.DecodeMessage(entry)
			if err != nil {
				q.warnMalformed(sessionID, histKey, i, err)
				kept = append(kept, entry)
				continue
			}
			if !ok {
				continue
			}
			if _, hit := targets[msg.TS]; !hit {
				kept = append(kept, entry)
				continue
			}

			rec, err := chat.StampDeleted(entry, deletedAt)
			if err != nil {
				q.warnMalformed(sessionID, histKey, i, err)
				kept = append(kept, entry)
				continue
			}
			removed = append(removed, rec)
		}

		moved = len(removed)
		if moved == 0 {
			return nil
		}

		_, err = tx.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
			pipe.Del(opCtx, histKey)
			if len(kept) > 0 {
				pipe.RPush(opCtx, histKey, kept...)
			}
			pipe.RPush(opCtx, delKey, removed...)
			pipe.HIncrBy(opCtx, store.SessionKey(sessionID), "message_count", -int64(moved))
			return nil
		})
		return err
	}, histKey)
	if err != nil {
		return 0, err
	}

	for _, ts := range tsList {
		q.audit.Emit(ctx, sessionID, chat.Message{SessionID: sessionID, TS: ts}, true)
	}

	q.log.Info("messages quarantined", "session_id", sessionID, "requested", len(tsList), "moved", moved)
	return moved, nil
}

// Restore moves the quarantine record identified by (ts, deletedAt) back into
// the live log, which is rewritten sorted by ts. Records older than
// retentionSeconds are treated as purged.
func (q *Quarantine) Restore(ctx context.Context, sessionID string, ts, deletedAt, retentionSeconds int64) (chat.Message, error) {
	if err := validateSessionID(sessionID); err != nil {
		return chat.Message{}, err
	}

	histKey := store.HistoryKey(sessionID)
	delKey := store.DeletedKey(sessionID)

	opCtx, cancel := q.withTimeout(ctx)
	defer cancel()

	var restored chat.Message
	err := q.update(opCtx, "restore", func(tx *redis.Tx) error {
		deletedRaw, err := tx.LRange(opCtx, delKey, 0, -1).Result()
		if err != nil {
			return err
		}

		match := -1
		var rec chat.DeletedRecord
		for i, entry := range deletedRaw {
			candidate, err := chat.DecodeDeleted(entry)
			if err != nil {
				q.warnMalformed(sessionID, delKey, i, err)
				continue
			}
			if candidate.Matches(ts, deletedAt) {
				match, rec = i, candidate
				break
			}
		}
		if match < 0 || rec.Expired(q.now().Unix(), retentionSeconds) {
			return ErrMessageNotFound
		}

		remaining := make([]any, 0, len(deletedRaw)-1)
		for i, entry := range deletedRaw {
			if i != match {
				remaining = append(remaining, entry)
			}
		}

		encoded, err := chat.UnstampDeleted(deletedRaw[match])
		if err != nil {
			return err
		}
		restored = rec.Message
		if restored.SessionID == "" {
			restored.SessionID = sessionID
		}

		liveRaw, err := tx.LRange(opCtx, histKey, 0, -1).Result()
		if err != nil {
			return err
		}
		rebuilt := q.sortedLive(sessionID, histKey, liveRaw, encoded, restored.TS)

		_, err = tx.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
			pipe.Del(opCtx, delKey)
			if len(remaining) > 0 {
				pipe.RPush(opCtx, delKey, remaining...)
			}
			pipe.Del(opCtx, histKey)
			pipe.RPush(opCtx, histKey, rebuilt...)
			pipe.HIncrBy(opCtx, store.SessionKey(sessionID), "message_count", 1)
			return nil
		})
		return err
	}, delKey, histKey)
	if err != nil {
		return chat.Message{}, err
	}

	q.audit.Emit(ctx, sessionID, restored, false)
	q.log.Info("message restored", "session_id", sessionID, "ts", ts, "deleted_at", deletedAt)
	return restored, nil
}

type orderedEntry struct {
	raw string
	ts  int64
}

// sortedLive merges the restored entry into the live log ordered by ts.
// Entries are kept byte-for-byte. An undecodable entry inherits the ts of the
// entry before it so it stays where it was relative to its neighbours.
func (q *Quarantine) sortedLive(sessionID, key string, liveRaw []string, restored string, restoredTS int64) []any {
	entries := make([]orderedEntry, 0, len(liveRaw)+1)
	prev := int64(math.MinInt64)
	for i, raw := range liveRaw {
		msg, ok, err := chat.DecodeMessage(raw)
		if err != nil {
			q.warnMalformed(sessionID, key, i, err)
			entries = append(entries, orderedEntry{raw: raw, ts: prev})
			continue
		}
		if !ok {
			continue
		}
		prev = msg.TS
		entries = append(entries, orderedEntry{raw: raw, ts: msg.TS})
	}
	entries = append(entries, orderedEntry{raw: restored, ts: restoredTS})

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ts < entries[j].ts })

	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.raw
	}
	return out
}
