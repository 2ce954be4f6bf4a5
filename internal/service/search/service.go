// Package search answers cross-session queries over the live logs and the
// audit streams. It only reads.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

const (
	scanBatch          = 200
	defaultHotKeywords = 5
	// TimeSlotLayout formats the start of an hourly bucket.
	TimeSlotLayout = "2006-01-02 15:00:00"
)

// Keyword is a message content and how often it occurs.
type Keyword struct {
	Keyword string `json:"keyword" yaml:"keyword"`
	Count   int    `json:"count" yaml:"count"`
}

// TrendPoint is the number of messages written in one hour.
type TrendPoint struct {
	TimeSlot string `json:"time_slot" yaml:"time_slot"`
	Count    int    `json:"count" yaml:"count"`
}

// Service runs read-only scans.
type Service struct {
	rdb       redis.UniversalClient
	log       *slog.Logger
	opTimeout time.Duration
	location  *time.Location
}

// NewService builds the search service. Hour buckets are computed in UTC.
func NewService(rdb redis.UniversalClient, logger *slog.Logger, opTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &Service{
		rdb:       rdb,
		log:       logger.With("component", "search"),
		opTimeout: opTimeout,
		location:  time.UTC,
	}
}

// SearchMessages returns the sorted ids of sessions whose live log has a
// message containing query. An empty query matches nothing.
func (s *Service) SearchMessages(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}

	matched := make([]string, 0)
	err := s.eachHistory(ctx, func(sessionID string, messages []chat.Message) {
		for _, msg := range messages {
			if strings.Contains(msg.Content, query) {
				matched = append(matched, sessionID)
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matched)
	s.log.Debug("search finished", "query", query, "sessions", len(matched))
	return matched, nil
}

// HotKeywords returns the n most frequent message contents across every live
// log. Ties are broken alphabetically. A non-positive n falls back to 5.
func (s *Service) HotKeywords(ctx context.Context, n int) ([]Keyword, error) {
	if n <= 0 {
		n = defaultHotKeywords
	}

	counts := make(map[string]int)
	err := s.eachHistory(ctx, func(_ string, messages []chat.Message) {
		for _, msg := range messages {
			if content := strings.TrimSpace(msg.Content); content != "" {
				counts[content]++
			}
		}
	})
	if err != nil {
		return nil, err
	}

	keywords := make([]Keyword, 0, len(counts))
	for k, v := range counts {
		keywords = append(keywords, Keyword{Keyword: k, Count: v})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Count != keywords[j].Count {
			return keywords[i].Count > keywords[j].Count
		}
		return keywords[i].Keyword < keywords[j].Keyword
	})
	if len(keywords) > n {
		keywords = keywords[:n]
	}
	return keywords, nil
}

// HourlyTrend buckets the messages currently live in a session by the hour of
// their ts. The audit stream is folded per ts: an append or restore adds one
// message, a tombstone removes every message with that ts.
func (s *Service) HourlyTrend(ctx context.Context, sessionID string) ([]TrendPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	entries, err := s.rdb.XRange(ctx, store.StreamKey(sessionID), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("hourly trend: %w", err)
	}

	live := make(map[int64]int)
	for _, entry := range entries {
		ev, err := chatservice.ParseAuditEvent(entry)
		if err != nil {
			s.log.Warn("skipping malformed audit event", "session_id", sessionID, "stream_id", entry.ID, "error", err)
			continue
		}
		if ev.Deleted {
			delete(live, ev.TS)
			continue
		}
		live[ev.TS]++
	}

	buckets := make(map[int64]int)
	for ts, n := range live {
		hour := time.UnixMilli(ts).In(s.location).Truncate(time.Hour).UnixMilli()
		buckets[hour] += n
	}

	hours := make([]int64, 0, len(buckets))
	for h := range buckets {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i] < hours[j] })

	trend := make([]TrendPoint, 0, len(hours))
	for _, h := range hours {
		trend = append(trend, TrendPoint{
			TimeSlot: time.UnixMilli(h).In(s.location).Format(TimeSlotLayout),
			Count:    buckets[h],
		})
	}
	return trend, nil
}

// eachHistory scans every live log and hands its decodable messages to fn.
func (s *Service) eachHistory(ctx context.Context, fn func(sessionID string, messages []chat.Message)) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	iter := s.rdb.Scan(ctx, 0, store.HistoryPattern, scanBatch).Iterator()
	seen := make(map[string]struct{})
	for iter.Next(ctx) {
		key := iter.Val()
		sessionID, ok := store.SessionFromHistoryKey(key)
		if !ok {
			continue
		}
		// SCAN may return a key more than once.
		if _, dup := seen[sessionID]; dup {
			continue
		}
		seen[sessionID] = struct{}{}

		raw, err := s.rdb.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", key, err)
		}
		messages := make([]chat.Message, 0, len(raw))
		for _, entry := range raw {
			msg, ok, err := chat.DecodeMessage(entry)
			if err != nil || !ok {
				continue
			}
			messages = append(messages, msg)
		}
		fn(sessionID, messages)
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan live logs: %w", err)
	}
	return nil
}
