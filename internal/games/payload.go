// Package games implements the two-player games that travel inside direct
// messages. Every game action is a message of kind game_event whose content
// is a JSON payload; the state of a game is the fold of its payloads.
package games

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

// GameType names one of the supported games
type GameType string

const (
	TicTacToe         GameType = "tictactoe"
	RockPaperScissors GameType = "rps"
)

func (g GameType) Valid() bool {
	return g == TicTacToe || g == RockPaperScissors
}

// EventType is the kind of a game payload
type EventType string

const (
	EventStart  EventType = "start"
	EventMove   EventType = "move"
	EventChoice EventType = "choice"
	EventResult EventType = "result"
)

// Tie is the result of a drawn game
const Tie = "tie"

// Event is the payload carried in a game_event message
type Event struct {
	Type     EventType      `json:"type"`
	GameID   string         `json:"game_id"`
	GameType GameType       `json:"game_type,omitempty"`
	Cell     *int           `json:"cell,omitempty"`
	Choice   Choice         `json:"choice,omitempty"`
	Target   int            `json:"target,omitempty"`
	Winner   string         `json:"winner,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
}

// Validate checks the fields each event type requires
func (e Event) Validate() error {
	if strings.TrimSpace(e.GameID) == "" {
		return apperr.Validation("game id is required")
	}
	switch e.Type {
	case EventStart:
		if !e.GameType.Valid() {
			return apperr.Validation("unknown game type")
		}
		if e.Target < 0 {
			return apperr.Validation("target must not be negative")
		}
	case EventMove:
		if e.Cell == nil || *e.Cell < 0 || *e.Cell >= boardSize {
			return apperr.Validation("cell must be between 0 and 8")
		}
	case EventChoice:
		if !e.Choice.Valid() {
			return apperr.Validation("choice must be rock, paper or scissors")
		}
	case EventResult:
		if e.Winner == "" {
			return apperr.Validation("result needs a winner or tie")
		}
	default:
		return apperr.Validation("unknown game event type")
	}
	return nil
}

// Encode renders e as message content
func (e Event) Encode() (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", apperr.Internal("failed to encode game event", err)
	}
	return string(b), nil
}

// Parse decodes and validates a game payload. Anything malformed is
// reported as not ok.
func Parse(content string) (Event, bool) {
	var e Event
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return Event{}, false
	}
	if e.Validate() != nil {
		return Event{}, false
	}
	return e, true
}

// Move is a parsed game event together with the message that carried it
type Move struct {
	Event
	MessageID  uuid.UUID
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	CreatedAt  time.Time
}

// MoveFrom extracts the game event of msg
func MoveFrom(msg *models.DirectMessage) (Move, bool) {
	if msg == nil || msg.Kind != models.KindGameEvent {
		return Move{}, false
	}
	ev, ok := Parse(msg.Content)
	if !ok {
		return Move{}, false
	}
	return Move{
		Event:      ev,
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		CreatedAt:  msg.CreatedAt,
	}, true
}

// before orders moves by creation time, breaking ties by message id
func (m Move) before(o Move) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return bytes.Compare(m.MessageID[:], o.MessageID[:]) < 0
}
