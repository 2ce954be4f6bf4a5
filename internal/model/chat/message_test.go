package chat

import (
	"encoding/json"
	"testing"
)

func TestStampDeletedRoundTrip(t *testing.T) {
	cases := []string{
		`{"id":"01J","session_id":"s1","sender":"me","content":"hi","ts":100}`,
		`{"session_id": "s1", "sender": "me", "content": "hi", "ts": 100, "avatar": "x.png"}`,
		`{"sender":"me","content":"nested","ts":7,"meta":{"a":[1,2]}}`,
		`{}`,
	}
	for _, raw := range cases {
		stamped, err := StampDeleted(raw, 1700000000)
		if err != nil {
			t.Fatalf("StampDeleted(%s) err: %v", raw, err)
		}
		rec, err := DecodeDeleted(stamped)
		if err != nil {
			t.Fatalf("DecodeDeleted(%s) err: %v", stamped, err)
		}
		if rec.DeletedAt != 1700000000 {
			t.Fatalf("deleted_at not stamped: %s", stamped)
		}

		back, err := UnstampDeleted(stamped)
		if err != nil {
			t.Fatalf("UnstampDeleted(%s) err: %v", stamped, err)
		}
		if back != raw {
			t.Fatalf("round trip changed record:\nbefore %s\nafter  %s", raw, back)
		}
	}
}

func TestUnstampDeletedKeepsUnknownFields(t *testing.T) {
	raw := `{"session_id": "s1", "deleted_at": 1700000000, "sender": "me", "content": "hi", "ts": 100, "avatar": "x.png"}`

	live, err := UnstampDeleted(raw)
	if err != nil {
		t.Fatalf("UnstampDeleted err: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(live), &fields); err != nil {
		t.Fatalf("unmarshal err: %v", err)
	}
	if _, ok := fields["deleted_at"]; ok {
		t.Fatalf("deleted_at survived: %s", live)
	}
	if fields["avatar"] != "x.png" || fields["content"] != "hi" || fields["ts"] != float64(100) {
		t.Fatalf("fields lost: %s", live)
	}
}

func TestStampDeletedReplacesExistingStamp(t *testing.T) {
	stamped, err := StampDeleted(`{"ts":1,"deleted_at":5}`, 9)
	if err != nil {
		t.Fatalf("StampDeleted err: %v", err)
	}
	rec, err := DecodeDeleted(stamped)
	if err != nil || rec.DeletedAt != 9 {
		t.Fatalf("expected deleted_at 9, got %+v (err %v)", rec, err)
	}
}

func TestStampDeletedRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{"null", "[1,2]", "{broken"} {
		if _, err := StampDeleted(raw, 1); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
