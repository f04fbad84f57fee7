package games

import (
	"sort"

	"github.com/ammar1510/huddle/internal/models"
)

// Moves extracts the game events of msgs in fold order
func Moves(msgs []*models.DirectMessage) []Move {
	out := make([]Move, 0)
	for _, msg := range msgs {
		if m, ok := MoveFrom(msg); ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// Fold replays every game found in msgs and returns the resulting sessions
// keyed by game id. Malformed and invalid events are skipped.
func Fold(msgs []*models.DirectMessage) map[string]*Session {
	games := make(map[string]*Session)
	for _, m := range Moves(msgs) {
		games[m.GameID] = step(games[m.GameID], m)
	}
	for id, s := range games {
		if s == nil {
			delete(games, id)
		}
	}
	return games
}

// step applies m to s. A start always replaces the current state, so the
// later of two concurrent starts wins.
func step(s *Session, m Move) *Session {
	if m.Type == EventStart {
		if m.SenderID == m.ReceiverID {
			return s
		}
		return newSession(m)
	}
	if s != nil {
		s.apply(m)
	}
	return s
}
