package chat_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zhouzirui/trailchat/backend/internal/store"
)

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A string under the stream key makes XADD fail with WRONGTYPE.
	if err := f.rdb.Set(ctx, store.StreamKey("s1"), "occupied", 0).Err(); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	f.append(t, "s1", 100, "still stored")
	if _, err := f.svc.DeleteBatch(ctx, "s1", []int64{100}); err != nil {
		t.Fatalf("DeleteBatch err: %v", err)
	}

	deleted, err := f.svc.ListDeleted(ctx, "s1")
	if err != nil || len(deleted) != 1 {
		t.Fatalf("mutation lost: %+v (err %v)", deleted, err)
	}
	if got := testutil.ToFloat64(f.metrics.AuditFailures); got != 2 {
		t.Fatalf("audit failures = %v, want 2", got)
	}
}

func TestAuditEventsFollowMutationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.append(t, "s1", 100, "a")
	f.append(t, "s1", 200, "b")
	if _, err := f.svc.DeleteBatch(ctx, "s1", []int64{200}); err != nil {
		t.Fatalf("DeleteBatch err: %v", err)
	}

	events := f.auditEvents(t, "s1")
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	want := []struct {
		ts      int64
		deleted bool
	}{{100, false}, {200, false}, {200, true}}
	for i, w := range want {
		if events[i].TS != w.ts || events[i].Deleted != w.deleted || events[i].SessionID != "s1" {
			t.Fatalf("events[%d] = %+v", i, events[i])
		}
	}
}
