package chat

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// LegacyTombstone marks a deleted slot in logs written before deletions moved
// to the quarantine list. Readers skip it; rewrites drop it.
const LegacyTombstone = "__deleted__"

const deletedAtField = "deleted_at"

var errNotObject = errors.New("record is not a JSON object")

// Message is one turn in a session. TS (milliseconds) identifies the message
// within its session; ID is informational only.
type Message struct {
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	SessionID string `json:"session_id" yaml:"session_id"`
	Sender    string `json:"sender" yaml:"sender"`
	Content   string `json:"content" yaml:"content"`
	TS        int64  `json:"ts" yaml:"ts"`
}

// DeletedRecord is a quarantined message. DeletedAt is in seconds.
type DeletedRecord struct {
	Message   `yaml:",inline"`
	DeletedAt int64 `json:"deleted_at" yaml:"deleted_at"`
}

// Matches reports whether the record is the (ts, deleted_at) pair.
func (r DeletedRecord) Matches(ts, deletedAt int64) bool {
	return r.TS == ts && r.DeletedAt == deletedAt
}

// Expired reports whether the record is older than window seconds at now.
func (r DeletedRecord) Expired(now, window int64) bool {
	return now-r.DeletedAt > window
}

// DecodeMessage parses a live-log entry. ok is false for the legacy
// tombstone; err is set for undecodable entries.
func DecodeMessage(raw string) (msg Message, ok bool, err error) {
	if strings.TrimSpace(raw) == LegacyTombstone {
		return Message{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

// DecodeDeleted parses a quarantine entry.
func DecodeDeleted(raw string) (DeletedRecord, error) {
	var rec DeletedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return DeletedRecord{}, err
	}
	return rec, nil
}

// Encode returns the JSON form stored in the live log.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StampDeleted turns a live-log entry into a quarantine entry by adding
// deleted_at. Every other member is kept as written, including fields
// Message does not know about.
func StampDeleted(raw string, deletedAt int64) (string, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return "", err
	}
	stamp := strconv.FormatInt(deletedAt, 10)
	if _, ok := fields[deletedAtField]; ok {
		fields[deletedAtField] = json.RawMessage(stamp)
		return encodeFields(fields)
	}

	body := strings.TrimRightFunc(raw, unicode.IsSpace)
	body = strings.TrimSuffix(body, "}")
	sep := ","
	if strings.HasSuffix(strings.TrimRightFunc(body, unicode.IsSpace), "{") {
		sep = ""
	}
	return body + sep + `"` + deletedAtField + `":` + stamp + "}", nil
}

// UnstampDeleted is the inverse of StampDeleted. A record stamped by
// StampDeleted comes back byte for byte; older records keep all their members
// but are re-encoded.
func UnstampDeleted(raw string) (string, error) {
	fields, err := objectFields(raw)
	if err != nil {
		return "", err
	}
	stamp, ok := fields[deletedAtField]
	if !ok {
		return raw, nil
	}

	member := `"` + deletedAtField + `":` + string(stamp) + "}"
	if body, cut := strings.CutSuffix(raw, ","+member); cut {
		if live := body + "}"; json.Valid([]byte(live)) {
			return live, nil
		}
	}
	if body, cut := strings.CutSuffix(raw, member); cut && strings.HasSuffix(strings.TrimRightFunc(body, unicode.IsSpace), "{") {
		return body + "}", nil
	}

	delete(fields, deletedAtField)
	return encodeFields(fields)
}

func objectFields(raw string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	return fields, nil
}

func encodeFields(fields map[string]json.RawMessage) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
