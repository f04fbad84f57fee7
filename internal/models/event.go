package models

import (
	"encoding/json"
	"time"
)

// Table names a stream of change events
type Table string

const (
	TableProfiles       Table = "profiles"
	TableFriendRequests Table = "friend_requests"
	TableFriendEdges    Table = "friend_edges"
	TableMessages       Table = "direct_messages"
	TablePosts          Table = "posts"
	TableRoomMessages   Table = "room_messages"
)

// Op is the kind of row change
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent is a single row change delivered by the push channel
type ChangeEvent struct {
	Table       Table           `json:"table"`
	Op          Op              `json:"op"`
	Record      json.RawMessage `json:"record,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewChangeEvent encodes record and old into an event
func NewChangeEvent(table Table, op Op, record, old interface{}) (ChangeEvent, error) {
	ev := ChangeEvent{Table: table, Op: op, CommittedAt: time.Now().UTC()}
	if record != nil {
		b, err := json.Marshal(record)
		if err != nil {
			return ev, err
		}
		ev.Record = b
	}
	if old != nil {
		b, err := json.Marshal(old)
		if err != nil {
			return ev, err
		}
		ev.Old = b
	}
	return ev, nil
}

// Row returns the row the event is about: the new record, or the old one
// for deletes.
func (e ChangeEvent) Row() json.RawMessage {
	if e.Op == OpDelete && len(e.Old) > 0 {
		return e.Old
	}
	return e.Record
}

// Decode unmarshals the event row into v
func (e ChangeEvent) Decode(v interface{}) error {
	return json.Unmarshal(e.Row(), v)
}
