package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind discriminates what a direct message carries
type MessageKind string

const (
	KindText      MessageKind = "text"
	KindGameEvent MessageKind = "game_event"
	KindVoice     MessageKind = "voice"
	KindImage     MessageKind = "image"
)

// Valid reports whether k is a known message kind
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindGameEvent, KindVoice, KindImage:
		return true
	}
	return false
}

// DirectMessage is one message between two users
type DirectMessage struct {
	ID         uuid.UUID   `json:"id" db:"id"`
	ClientID   string      `json:"client_id,omitempty" db:"client_id"`
	SenderID   uuid.UUID   `json:"sender_id" db:"sender_id"`
	ReceiverID uuid.UUID   `json:"receiver_id" db:"receiver_id"`
	Kind       MessageKind `json:"kind" db:"kind"`
	Content    string      `json:"content" db:"content"`
	ImageRef   string      `json:"image_ref,omitempty" db:"image_ref"`
	VoiceRef   string      `json:"voice_ref,omitempty" db:"voice_ref"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ReadAt     *time.Time  `json:"read_at,omitempty" db:"read_at"`
}

// Between reports whether the message belongs to the conversation of a and b
func (m *DirectMessage) Between(a, b uuid.UUID) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Peer returns the other party of the message as seen by self
func (m *DirectMessage) Peer(self uuid.UUID) uuid.UUID {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

// IsRead reports whether the receiver has seen the message
func (m *DirectMessage) IsRead() bool {
	return m.ReadAt != nil
}

// MessagePayload is what a sender supplies for a new message
type MessagePayload struct {
	Kind     MessageKind `json:"kind"`
	Content  string      `json:"content"`
	ImageRef string      `json:"image_ref,omitempty"`
	VoiceRef string      `json:"voice_ref,omitempty"`
}

// IsEmpty reports whether the payload has neither text nor an attachment
func (p MessagePayload) IsEmpty() bool {
	return strings.TrimSpace(p.Content) == "" && p.ImageRef == "" && p.VoiceRef == ""
}

// ResolvedKind returns the explicit kind, or infers it from the attachments
func (p MessagePayload) ResolvedKind() MessageKind {
	if p.Kind.Valid() {
		return p.Kind
	}
	switch {
	case p.VoiceRef != "":
		return KindVoice
	case p.ImageRef != "":
		return KindImage
	}
	return KindText
}
