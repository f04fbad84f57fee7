package games

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

var log = logger.New("games")

type game struct {
	moves []Move
	seen  map[uuid.UUID]bool
	state *Session
}

// Tracker keeps the folded state of every game in a conversation. Events
// that arrive in order are applied to the cached state; an event older than
// the last applied one makes that game refold from its history.
type Tracker struct {
	mu    sync.Mutex
	games map[string]*game
}

func NewTracker() *Tracker {
	return &Tracker{games: make(map[string]*game)}
}

// Reset discards all state and folds msgs from scratch
func (t *Tracker) Reset(msgs []*models.DirectMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.games = make(map[string]*game)
	for _, m := range Moves(msgs) {
		t.addLocked(m)
	}
}

// Apply folds msg into its game and returns the updated state. It returns
// nil when msg is not a game event, was already applied, or does not
// belong to a started game.
func (t *Tracker) Apply(msg *models.DirectMessage) *Session {
	m, ok := MoveFrom(msg)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.addLocked(m)
	if g == nil || g.state == nil {
		return nil
	}
	return g.state.Clone()
}

func (t *Tracker) addLocked(m Move) *game {
	g := t.games[m.GameID]
	if g == nil {
		g = &game{seen: make(map[uuid.UUID]bool)}
		t.games[m.GameID] = g
	}
	if g.seen[m.MessageID] {
		return nil
	}
	g.seen[m.MessageID] = true

	n := len(g.moves)
	if n == 0 || g.moves[n-1].before(m) {
		g.moves = append(g.moves, m)
		g.state = step(g.state, m)
		return g
	}

	// late arrival: put it in place and replay the game
	i := sort.Search(n, func(i int) bool { return m.before(g.moves[i]) })
	g.moves = append(g.moves, Move{})
	copy(g.moves[i+1:], g.moves[i:])
	g.moves[i] = m

	log.Debug("Refolding game %s after out-of-order event %s", m.GameID, m.MessageID)
	g.state = nil
	for _, mv := range g.moves {
		g.state = step(g.state, mv)
	}
	return g
}

// Get returns a copy of the state of gameID
func (t *Tracker) Get(gameID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g := t.games[gameID]
	if g == nil || g.state == nil {
		return nil, false
	}
	return g.state.Clone(), true
}

// Sessions returns copies of every started game, most recently active first
func (t *Tracker) Sessions() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Session, 0, len(t.games))
	for _, g := range t.games {
		if g.state != nil {
			out = append(out, g.state.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].GameID < out[j].GameID
	})
	return out
}
