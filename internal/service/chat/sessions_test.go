package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
	"github.com/zhouzirui/trailchat/backend/internal/store"
)

func TestCreateSessionPostsWelcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.ID != "s1" || session.Title != chat.DefaultSessionTitle {
		t.Fatalf("unexpected session: %+v", session)
	}
	if !session.CreatedAt.Equal(f.clock.Now()) {
		t.Fatalf("unexpected created_at: %v", session.CreatedAt)
	}
	if session.MessageCount != 1 {
		t.Fatalf("expected message_count 1, got %d", session.MessageCount)
	}

	history, err := f.svc.ListHistory(ctx, "s1")
	if err != nil {
		t.Fatalf("ListHistory err: %v", err)
	}
	if len(history) != 1 || history[0].Sender != chatservice.AssistantSender {
		t.Fatalf("expected AI welcome message, got %+v", history)
	}
}

func TestCreateSessionIsIdempotentButRepostsWelcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.svc.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	history, _ := f.svc.ListHistory(ctx, "s1")
	if len(history) != 2 {
		t.Fatalf("expected two welcome messages, got %d", len(history))
	}

	sessions, err := f.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
}

func TestCreateSessionRejectsBadIDs(t *testing.T) {
	f := newFixture(t)

	long := make([]byte, 101)
	for i := range long {
		long[i] = 'x'
	}
	for _, id := range []string{"", string(long)} {
		if _, err := f.svc.CreateSession(context.Background(), id); !errors.Is(err, chatservice.ErrInvalidInput) {
			t.Fatalf("CreateSession(%d bytes) expected ErrInvalidInput, got %v", len(id), err)
		}
	}
}

func TestListSessionsSortedWithMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if _, err := f.svc.CreateSession(ctx, id); err != nil {
			t.Fatalf("CreateSession(%s) err: %v", id, err)
		}
	}
	f.append(t, "alpha", 100, "extra")

	sessions, err := f.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	wantIDs := []string{"alpha", "bravo", "charlie"}
	for i, s := range sessions {
		if s.ID != wantIDs[i] {
			t.Fatalf("sessions[%d] = %s, want %s", i, s.ID, wantIDs[i])
		}
	}
	if sessions[0].MessageCount != 2 {
		t.Fatalf("alpha message_count = %d, want 2", sessions[0].MessageCount)
	}
}

func TestListSessionsOmitsIDsWithoutMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSession(ctx, "real"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if err := f.rdb.SAdd(ctx, store.ActiveSessionsKey, "ghost").Err(); err != nil {
		t.Fatalf("SAdd err: %v", err)
	}
	// A counter update alone does not make a session.
	f.append(t, "ghost", 100, "orphan")

	sessions, err := f.svc.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions err: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "real" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestDeleteUnknownSession(t *testing.T) {
	f := newFixture(t)

	err := f.svc.DeleteSession(context.Background(), "missing")
	if !errors.Is(err, chatservice.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if !errors.Is(err, chatservice.ErrNotFound) {
		t.Fatalf("ErrSessionNotFound should wrap ErrNotFound")
	}
}

func TestMessageCountTracksMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	f.append(t, "s1", 100, "a")
	f.append(t, "s1", 200, "b")
	if _, err := f.svc.DeleteBatch(ctx, "s1", []int64{100, 200}); err != nil {
		t.Fatalf("DeleteBatch err: %v", err)
	}
	if _, err := f.svc.RestoreMessage(ctx, "s1", 200, f.clock.Now().Unix()); err != nil {
		t.Fatalf("RestoreMessage err: %v", err)
	}

	sessions, _ := f.svc.ListSessions(ctx)
	if len(sessions) != 1 || sessions[0].MessageCount != 2 {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestFailedDeleteSessionCanBeRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateSession(ctx, "s1"); err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	f.append(t, "s1", 100, "a")

	f.mr.SetError("ERR backend went away")
	if err := f.svc.DeleteSession(ctx, "s1"); !errors.Is(err, chatservice.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	f.mr.SetError("")

	if ok, _ := f.mr.SIsMember(store.ActiveSessionsKey, "s1"); !ok {
		t.Fatal("failed delete must leave the session registered")
	}
	if !f.mr.Exists(store.HistoryKey("s1")) {
		t.Fatal("failed delete must leave the live log in place")
	}

	if err := f.svc.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("retried DeleteSession err: %v", err)
	}
	for _, key := range append(store.SessionKeys("s1"), store.ActiveSessionsKey) {
		if f.mr.Exists(key) {
			t.Fatalf("key %s survived the retried delete", key)
		}
	}
}

func TestFailedCreateSessionLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mr.SetError("ERR backend went away")
	if _, err := f.svc.CreateSession(ctx, "s1"); !errors.Is(err, chatservice.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	f.mr.SetError("")

	if f.mr.Exists(store.ActiveSessionsKey) || f.mr.Exists(store.HistoryKey("s1")) || f.mr.Exists(store.SessionKey("s1")) {
		t.Fatal("failed create left partial state")
	}

	session, err := f.svc.CreateSession(ctx, "s1")
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}
	if session.MessageCount != 1 {
		t.Fatalf("expected welcome message counted once, got %d", session.MessageCount)
	}
}
