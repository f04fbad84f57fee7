package session

import (
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/games"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/notifications"
)

// Command types accepted from the client
const (
	CmdOpenConversation  = "open_conversation"
	CmdSendMessage       = "send_message"
	CmdMarkRead          = "mark_read"
	CmdClearConversation = "clear_conversation"
	CmdGameStart         = "game_start"
	CmdGameMove          = "game_move"
	CmdGameChoice        = "game_choice"
	CmdGameResign        = "game_resign"
	CmdClearCounter      = "clear_counter"
	CmdMarkMessagesRead  = "mark_messages_read"
	CmdTyping            = "typing"
)

// Frame types sent to the client
const (
	FrameReady         = "ready"
	FrameConversation  = "conversation"
	FrameConversations = "conversations"
	FrameCounters      = "counters"
	FrameGames         = "games"
	FrameTyping        = "typing"
	FrameError         = "error"
)

// Command is one request from the client
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`

	PeerID   uuid.UUID          `json:"peer_id,omitempty"`
	Kind     models.MessageKind `json:"kind,omitempty"`
	Content  string             `json:"content,omitempty"`
	ImageRef string             `json:"image_ref,omitempty"`
	VoiceRef string             `json:"voice_ref,omitempty"`

	GameID   string         `json:"game_id,omitempty"`
	GameType games.GameType `json:"game_type,omitempty"`
	Cell     *int           `json:"cell,omitempty"`
	Choice   games.Choice   `json:"choice,omitempty"`
	Target   int            `json:"target,omitempty"`

	Category notifications.Category `json:"category,omitempty"`
	IsTyping bool                   `json:"is_typing,omitempty"`
}

// Frame is one update pushed to the client
type Frame struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ErrorPayload is the payload of an error frame
type ErrorPayload struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// ErrorFrame turns err into a frame for the client
func ErrorFrame(requestID string, err error) Frame {
	return Frame{
		Type:      FrameError,
		RequestID: requestID,
		Payload:   ErrorPayload{Code: apperr.CodeOf(err), Message: apperr.Message(err)},
	}
}

// ConversationPayload is the payload of a conversation frame
type ConversationPayload struct {
	PeerID  uuid.UUID   `json:"peer_id"`
	Change  string      `json:"change"`
	Entries interface{} `json:"entries"`
}

// TypingPayload is relayed between the two members of a conversation
type TypingPayload struct {
	SenderID uuid.UUID `json:"sender_id"`
	IsTyping bool      `json:"is_typing"`
}

// ReadyPayload is sent once the session is set up
type ReadyPayload struct {
	Profile  *models.Profile      `json:"profile"`
	Counters notifications.Counts `json:"counters"`
}
