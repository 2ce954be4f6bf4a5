package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/trailchat/backend/internal/logging"
	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

const testRetention = int64(30 * 24 * 60 * 60)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 11, 25, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc     *chatservice.Service
	rdb     *redis.Client
	mr      *miniredis.Miniredis
	clock   *fakeClock
	metrics *chatservice.Metrics
}

func newFixture(t *testing.T, tweak ...func(*chatservice.Options)) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newFakeClock()
	metrics := chatservice.NewMetrics(nil)
	opts := chatservice.Options{
		Logger:           logging.Discard(),
		Metrics:          metrics,
		Now:              clock.Now,
		OpTimeout:        time.Second,
		RetentionSeconds: testRetention,
	}
	for _, fn := range tweak {
		fn(&opts)
	}

	return &fixture{
		svc:     chatservice.NewService(rdb, opts),
		rdb:     rdb,
		mr:      mr,
		clock:   clock,
		metrics: metrics,
	}
}

func (f *fixture) append(t *testing.T, sessionID string, ts int64, content string) chat.Message {
	t.Helper()
	msg, err := f.svc.AppendMessage(context.Background(), sessionID, chat.Message{
		Sender:  "me",
		Content: content,
		TS:      ts,
	})
	if err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}
	return msg
}

func (f *fixture) rawList(t *testing.T, key string) []string {
	t.Helper()
	raw, err := f.rdb.LRange(context.Background(), key, 0, -1).Result()
	if err != nil {
		t.Fatalf("LRange %s err: %v", key, err)
	}
	return raw
}

func (f *fixture) auditEvents(t *testing.T, sessionID string) []chat.AuditEvent {
	t.Helper()
	entries, err := f.rdb.XRange(context.Background(), store.StreamKey(sessionID), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange err: %v", err)
	}
	events := make([]chat.AuditEvent, 0, len(entries))
	for _, e := range entries {
		ev, err := chatservice.ParseAuditEvent(e)
		if err != nil {
			t.Fatalf("ParseAuditEvent err: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func timestamps(messages []chat.Message) []int64 {
	out := make([]int64, len(messages))
	for i, m := range messages {
		out[i] = m.TS
	}
	return out
}

func equalInts(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// assertDisjoint checks that no ts is both live and quarantined.
func assertDisjoint(t *testing.T, f *fixture, sessionID string) {
	t.Helper()
	ctx := context.Background()

	live, err := f.svc.ListHistory(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListHistory err: %v", err)
	}
	deleted, err := f.svc.ListDeleted(ctx, sessionID)
	if err != nil {
		t.Fatalf("ListDeleted err: %v", err)
	}

	seen := make(map[int64]bool, len(live))
	for _, m := range live {
		seen[m.TS] = true
	}
	for _, d := range deleted {
		if seen[d.TS] {
			t.Fatalf("ts %d is both live and quarantined", d.TS)
		}
	}
}

func TestLiveAndQuarantineStayDisjoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ts := range []int64{100, 200, 300, 400} {
		f.append(t, "s1", ts, "hello")
	}
	assertDisjoint(t, f, "s1")

	if _, err := f.svc.DeleteBatch(ctx, "s1", []int64{200, 400}); err != nil {
		t.Fatalf("DeleteBatch err: %v", err)
	}
	assertDisjoint(t, f, "s1")

	deleted, err := f.svc.ListDeleted(ctx, "s1")
	if err != nil {
		t.Fatalf("ListDeleted err: %v", err)
	}
	if _, err := f.svc.RestoreMessage(ctx, "s1", 400, deleted[1].DeletedAt); err != nil {
		t.Fatalf("RestoreMessage err: %v", err)
	}
	assertDisjoint(t, f, "s1")
}

func TestSessionDeletionCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSession(ctx, "doomed"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	f.append(t, "doomed", 100, "a")
	f.append(t, "doomed", 200, "b")
	if _, err := f.svc.DeleteBatch(ctx, "doomed", []int64{100}); err != nil {
		t.Fatalf("DeleteBatch err: %v", err)
	}

	if err := f.svc.DeleteSession(ctx, "doomed"); err != nil {
		t.Fatalf("DeleteSession err: %v", err)
	}

	history, err := f.svc.ListHistory(ctx, "doomed")
	if err != nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v (err %v)", history, err)
	}
	deleted, err := f.svc.ListDeleted(ctx, "doomed")
	if err != nil || len(deleted) != 0 {
		t.Fatalf("expected empty deleted history, got %v (err %v)", deleted, err)
	}
	sessions, err := f.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	for _, s := range sessions {
		if s.ID == "doomed" {
			t.Fatal("deleted session still listed")
		}
	}
	for _, key := range store.SessionKeys("doomed") {
		if f.mr.Exists(key) {
			t.Fatalf("key %s survived session deletion", key)
		}
	}
}

func TestBackendUnavailableSurfacesAsUnavailable(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := f.svc.AppendMessage(context.Background(), "s1", chat.Message{Sender: "me", Content: "x", TS: 1})
	if err == nil {
		t.Fatal("expected error with backend down")
	}
	if !errors.Is(err, chatservice.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	if _, err := f.svc.DeleteBatch(context.Background(), "s1", []int64{1}); !errors.Is(err, chatservice.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from DeleteBatch, got %v", err)
	}
}
