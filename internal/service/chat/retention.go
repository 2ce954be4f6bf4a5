package chat

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

// Sweeper purges expired quarantine records lazily, on read. There is no
// background timer.
type Sweeper struct {
	base
}

// NewSweeper builds the retention sweeper.
func NewSweeper(rdb redis.UniversalClient, opts Options) *Sweeper {
	return &Sweeper{base: newBase(rdb, opts.withDefaults())}
}

// ReadValid returns the quarantine records whose age is within
// windowSeconds. When expired records are found the quarantine log is
// rewritten to the valid ones only; undecodable entries are dropped by that
// rewrite. Purges emit no audit event.
func (s *Sweeper) ReadValid(ctx context.Context, sessionID string, windowSeconds int64) ([]chat.DeletedRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key := store.DeletedKey(sessionID)

	var (
		valid   []chat.DeletedRecord
		expired int
	)
	err := s.update(ctx, "sweep deleted", func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return err
		}

		now := s.now().Unix()
		valid = make([]chat.DeletedRecord, 0, len(raw))
		keep := make([]any, 0, len(raw))
		expired = 0
		for i, entry := range raw {
			rec, err := chat.DecodeDeleted(entry)
			if err != nil {
				s.warnMalformed(sessionID, key, i, err)
				continue
			}
			if rec.Expired(now, windowSeconds) {
				expired++
				continue
			}
			if rec.SessionID == "" {
				rec.SessionID = sessionID
			}
			valid = append(valid, rec)
			keep = append(keep, entry)
		}

		if expired == 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(keep) > 0 {
				pipe.RPush(ctx, key, keep...)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}

	if expired > 0 {
		s.metrics.Swept.Add(float64(expired))
		s.log.Info("expired deleted records purged", "session_id", sessionID, "purged", expired, "remaining", len(valid))
	}
	return valid, nil
}
