package messaging

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/pending"
)

// Entry is one row of a conversation log as exposed to observers
type Entry struct {
	Message *models.DirectMessage `json:"message"`
	TempID  string                `json:"temp_id,omitempty"`
	State   pending.State         `json:"state"`
}

type entry struct {
	msg    *models.DirectMessage
	ticket *pending.Ticket[*models.DirectMessage]
}

func (e *entry) pending() bool {
	return e.ticket != nil && e.ticket.State() == pending.StatePending
}

// InsertResult tells what Log.Insert did with a message
type InsertResult int

const (
	Duplicate InsertResult = iota
	Appended
	Inserted
	Confirmed
)

// Log is the ordered, deduplicated message list of one conversation.
// Confirmed messages are kept in createdAt order; optimistic entries sit
// where they were appended until confirmed in place.
type Log struct {
	entries []*entry
}

// Len returns the number of entries
func (l *Log) Len() int { return len(l.entries) }

// Reset replaces the confirmed history with msgs. Pending entries survive:
// those whose client id shows up in msgs are confirmed, the rest are kept
// at the tail.
func (l *Log) Reset(msgs []*models.DirectMessage) {
	sorted := make([]*models.DirectMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	byClientID := make(map[string]*models.DirectMessage)
	for _, m := range sorted {
		if m.ClientID != "" {
			byClientID[m.ClientID] = m
		}
	}

	next := make([]*entry, 0, len(sorted)+len(l.entries))
	for _, m := range sorted {
		next = append(next, &entry{msg: m})
	}
	for _, e := range l.entries {
		if !e.pending() {
			continue
		}
		if saved, ok := byClientID[e.ticket.ID()]; ok {
			e.ticket.Confirm(saved)
			continue
		}
		next = append(next, e)
	}
	l.entries = next
}

// Restore puts back a confirmed message that a history snapshot may not
// include yet. A stored copy is only replaced when msg carries a read time
// it lacks.
func (l *Log) Restore(msg *models.DirectMessage) {
	if i := l.indexOf(msg.ID); i >= 0 {
		if l.entries[i].msg.ReadAt == nil && msg.ReadAt != nil {
			l.entries[i].msg = msg
		}
		return
	}
	l.Insert(msg)
}

// AddPending appends an optimistic entry for ticket
func (l *Log) AddPending(ticket *pending.Ticket[*models.DirectMessage]) {
	l.entries = append(l.entries, &entry{msg: ticket.Value(), ticket: ticket})
}

// Confirm swaps the optimistic entry of tempID for saved, keeping its
// position. It returns false if the entry is gone or was already confirmed.
func (l *Log) Confirm(tempID string, saved *models.DirectMessage) bool {
	i := l.indexOfTemp(tempID)
	if i < 0 || !l.entries[i].pending() {
		return false
	}

	l.entries[i].ticket.Confirm(saved)
	if j := l.indexOf(saved.ID); j >= 0 {
		// the saved row already arrived on its own; keep that one
		l.remove(i)
		return true
	}
	l.entries[i].msg = saved
	return true
}

// Discard removes the optimistic entry of tempID after a failed write. It
// returns false when there is nothing pending to roll back.
func (l *Log) Discard(tempID string, cause error) bool {
	i := l.indexOfTemp(tempID)
	if i < 0 || !l.entries[i].pending() {
		return false
	}
	l.entries[i].ticket.Fail(cause)
	l.remove(i)
	return true
}

// Insert adds a message that was not written by this log's owner, or the
// echo of one that was.
func (l *Log) Insert(msg *models.DirectMessage) InsertResult {
	if l.indexOf(msg.ID) >= 0 {
		return Duplicate
	}

	if msg.ClientID != "" {
		if i := l.indexOfTemp(msg.ClientID); i >= 0 && l.entries[i].pending() {
			l.entries[i].ticket.Confirm(msg)
			l.entries[i].msg = msg
			return Confirmed
		}
	}

	pos := len(l.entries)
	for pos > 0 && l.entries[pos-1].msg.CreatedAt.After(msg.CreatedAt) {
		pos--
	}

	l.entries = append(l.entries, nil)
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = &entry{msg: msg}

	if pos == len(l.entries)-1 {
		return Appended
	}
	return Inserted
}

// Update replaces the stored copy of msg, matched by id
func (l *Log) Update(msg *models.DirectMessage) bool {
	i := l.indexOf(msg.ID)
	if i < 0 {
		return false
	}
	l.entries[i].msg = msg
	return true
}

// Remove deletes the message with id
func (l *Log) Remove(id uuid.UUID) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.remove(i)
	return true
}

// Clear empties the log. Pending tickets are failed with cause.
func (l *Log) Clear(cause error) {
	for _, e := range l.entries {
		if e.pending() {
			e.ticket.Fail(cause)
		}
	}
	l.entries = nil
}

// UnreadFrom returns confirmed messages sender sent to receiver that have
// not been read
func (l *Log) UnreadFrom(sender, receiver uuid.UUID) []*models.DirectMessage {
	var unread []*models.DirectMessage
	for _, e := range l.entries {
		if e.pending() {
			continue
		}
		if e.msg.SenderID == sender && e.msg.ReceiverID == receiver && e.msg.ReadAt == nil {
			unread = append(unread, e.msg)
		}
	}
	return unread
}

// MarkRead sets readAt on the confirmed message with id if it has none
func (l *Log) MarkRead(id uuid.UUID, at time.Time) {
	if i := l.indexOf(id); i >= 0 && l.entries[i].msg.ReadAt == nil {
		read := *l.entries[i].msg
		read.ReadAt = &at
		l.entries[i].msg = &read
	}
}

// Entries returns a snapshot of the log
func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = Entry{Message: e.msg, State: pending.StateConfirmed}
		if e.ticket != nil {
			out[i].TempID = e.ticket.ID()
			out[i].State = e.ticket.State()
		}
	}
	return out
}

// Messages returns the confirmed messages in log order
func (l *Log) Messages() []*models.DirectMessage {
	out := make([]*models.DirectMessage, 0, len(l.entries))
	for _, e := range l.entries {
		if !e.pending() {
			out = append(out, e.msg)
		}
	}
	return out
}

func (l *Log) indexOf(id uuid.UUID) int {
	if id == uuid.Nil {
		return -1
	}
	for i, e := range l.entries {
		if !e.pending() && e.msg.ID == id {
			return i
		}
	}
	return -1
}

func (l *Log) indexOfTemp(tempID string) int {
	for i, e := range l.entries {
		if e.ticket != nil && e.ticket.ID() == tempID {
			return i
		}
	}
	return -1
}

func (l *Log) remove(i int) {
	copy(l.entries[i:], l.entries[i+1:])
	l.entries[len(l.entries)-1] = nil
	l.entries = l.entries[:len(l.entries)-1]
}
