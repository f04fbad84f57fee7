package games

import (
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
)

// Round is the last resolved round of rock-paper-scissors
type Round struct {
	Number  int                  `json:"number"`
	Choices map[uuid.UUID]Choice `json:"choices"`
	Winner  string               `json:"winner"`
}

// Session is the folded state of one game
type Session struct {
	GameID      string            `json:"game_id"`
	GameType    GameType          `json:"game_type"`
	CreatorID   uuid.UUID         `json:"creator_id"`
	OpponentID  uuid.UUID         `json:"opponent_id"`
	Board       Board             `json:"board"`
	CurrentTurn uuid.UUID         `json:"current_turn"`
	Round       int               `json:"round"`
	Chosen      []uuid.UUID       `json:"chosen"`
	LastRound   *Round            `json:"last_round,omitempty"`
	Scores      map[uuid.UUID]int `json:"scores"`
	Target      int               `json:"target,omitempty"`
	Result      string            `json:"result,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	choices map[uuid.UUID]Choice
}

func newSession(m Move) *Session {
	return &Session{
		GameID:      m.GameID,
		GameType:    m.GameType,
		CreatorID:   m.SenderID,
		OpponentID:  m.ReceiverID,
		CurrentTurn: m.SenderID,
		Round:       1,
		Chosen:      []uuid.UUID{},
		Scores:      map[uuid.UUID]int{m.SenderID: 0, m.ReceiverID: 0},
		Target:      m.Target,
		StartedAt:   m.CreatedAt,
		UpdatedAt:   m.CreatedAt,
		choices:     map[uuid.UUID]Choice{},
	}
}

// Terminal reports whether the game has a result
func (s *Session) Terminal() bool { return s.Result != "" }

// Has reports whether user plays in this game
func (s *Session) Has(user uuid.UUID) bool {
	return user == s.CreatorID || user == s.OpponentID
}

// Other returns the opponent of user
func (s *Session) Other(user uuid.UUID) uuid.UUID {
	if user == s.CreatorID {
		return s.OpponentID
	}
	return s.CreatorID
}

// MarkOf returns the mark user places. The creator plays X.
func (s *Session) MarkOf(user uuid.UUID) Mark {
	if user == s.CreatorID {
		return X
	}
	return O
}

// HasChosen reports whether user already picked in the current round
func (s *Session) HasChosen(user uuid.UUID) bool {
	_, ok := s.choices[user]
	return ok
}

// CanMove checks a marking-game move by user on cell
func (s *Session) CanMove(user uuid.UUID, cell int) error {
	switch {
	case s.GameType != TicTacToe, s.Terminal(), !s.Has(user):
		return apperr.ErrInvalidGameEvent
	case user != s.CurrentTurn:
		return apperr.Validation("it is not your turn")
	case cell < 0 || cell >= boardSize:
		return apperr.Validation("cell must be between 0 and 8")
	case s.Board[cell] != Empty:
		return apperr.Validation("cell is already taken")
	}
	return nil
}

// CanChoose checks a rock-paper-scissors pick by user
func (s *Session) CanChoose(user uuid.UUID, c Choice) error {
	switch {
	case s.GameType != RockPaperScissors, s.Terminal(), !s.Has(user):
		return apperr.ErrInvalidGameEvent
	case !c.Valid():
		return apperr.Validation("choice must be rock, paper or scissors")
	case s.HasChosen(user):
		return apperr.Validation("you already chose this round")
	}
	return nil
}

// CanFinish checks a result posted by user. A player can only end a game
// by conceding it; wins and ties come from the moves themselves.
func (s *Session) CanFinish(user uuid.UUID, winner string) error {
	if s.Terminal() || !s.Has(user) {
		return apperr.ErrInvalidGameEvent
	}
	if winner != s.Other(user).String() {
		return apperr.Validation("a result must name your opponent as winner")
	}
	return nil
}

// apply folds one move into s. Invalid moves are ignored and reported
// as false.
func (s *Session) apply(m Move) bool {
	switch m.Type {
	case EventMove:
		if s.CanMove(m.SenderID, *m.Cell) != nil {
			return false
		}
		s.Board[*m.Cell] = s.MarkOf(m.SenderID)
		switch w := Winner(s.Board); w {
		case "":
			s.CurrentTurn = s.Other(m.SenderID)
		case Tie:
			s.Result = Tie
		default:
			s.Result = s.CreatorID.String()
			if Mark(w) == O {
				s.Result = s.OpponentID.String()
			}
		}
	case EventChoice:
		if s.CanChoose(m.SenderID, m.Choice) != nil {
			return false
		}
		s.choices[m.SenderID] = m.Choice
		s.Chosen = append(s.Chosen, m.SenderID)
		if len(s.choices) == 2 {
			s.resolveRound()
		}
	case EventResult:
		if s.CanFinish(m.SenderID, m.Winner) != nil {
			return false
		}
		// posted scores are informational; the rounds played decide them
		s.Result = m.Winner
		s.Reason = m.Reason
	default:
		return false
	}
	s.UpdatedAt = m.CreatedAt
	return true
}

func (s *Session) resolveRound() {
	creator, opponent := s.choices[s.CreatorID], s.choices[s.OpponentID]
	round := &Round{
		Number:  s.Round,
		Choices: map[uuid.UUID]Choice{s.CreatorID: creator, s.OpponentID: opponent},
		Winner:  Tie,
	}

	switch Resolve(creator, opponent) {
	case FirstWins:
		s.Scores[s.CreatorID]++
		round.Winner = s.CreatorID.String()
	case SecondWins:
		s.Scores[s.OpponentID]++
		round.Winner = s.OpponentID.String()
	}

	s.LastRound = round
	s.Round++
	s.choices = map[uuid.UUID]Choice{}
	s.Chosen = []uuid.UUID{}

	if s.Target > 0 {
		for id, score := range s.Scores {
			if score >= s.Target {
				s.Result = id.String()
			}
		}
	}
}

// Clone returns a deep copy of s
func (s *Session) Clone() *Session {
	c := *s
	c.Chosen = append([]uuid.UUID{}, s.Chosen...)
	c.Scores = make(map[uuid.UUID]int, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	c.choices = make(map[uuid.UUID]Choice, len(s.choices))
	for k, v := range s.choices {
		c.choices[k] = v
	}
	if s.LastRound != nil {
		r := *s.LastRound
		r.Choices = make(map[uuid.UUID]Choice, len(s.LastRound.Choices))
		for k, v := range s.LastRound.Choices {
			r.Choices[k] = v
		}
		c.LastRound = &r
	}
	return &c
}
