package games

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type players struct {
	creator, opponent uuid.UUID
	clock             time.Duration
}

func newPlayers() *players {
	return &players{creator: uuid.New(), opponent: uuid.New()}
}

// msg encodes ev as a game message from sender, one second after the
// previous one
func (p *players) msg(t *testing.T, sender uuid.UUID, ev Event) *models.DirectMessage {
	t.Helper()
	content, err := ev.Encode()
	require.NoError(t, err)

	p.clock += time.Second
	receiver := p.opponent
	if sender == p.opponent {
		receiver = p.creator
	}
	return &models.DirectMessage{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       models.KindGameEvent,
		Content:    content,
		CreatedAt:  t0.Add(p.clock),
	}
}

func cell(i int) *int { return &i }

func board(s string) Board {
	var b Board
	for i, r := range s {
		switch r {
		case 'X':
			b[i] = X
		case 'O':
			b[i] = O
		}
	}
	return b
}

func TestWinner(t *testing.T) {
	tests := []struct {
		name  string
		board string
		want  string
	}{
		{name: "top row", board: "XXX......", want: "X"},
		{name: "column", board: ".O..O..O.", want: "O"},
		{name: "diagonal", board: "X...X...X", want: "X"},
		{name: "anti diagonal", board: "..O.O.O..", want: "O"},
		{name: "full board without line", board: "XOXXOOOXX", want: Tie},
		{name: "ongoing", board: "XO.......", want: ""},
		{name: "empty", board: ".........", want: ""},
		{name: "win on full board", board: "XXXOOXXOO", want: "X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Winner(board(tt.board)))
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		first, second Choice
		want          Outcome
	}{
		{Rock, Scissors, FirstWins},
		{Paper, Paper, Draw},
		// rock beats scissors whichever side plays it
		{Scissors, Rock, SecondWins},
		{Scissors, Paper, FirstWins},
		{Paper, Rock, FirstWins},
		{Rock, Paper, SecondWins},
	}

	for _, tt := range tests {
		t.Run(string(tt.first)+"_vs_"+string(tt.second), func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.first, tt.second))
		})
	}
}

func TestResolveIsSymmetric(t *testing.T) {
	all := []Choice{Rock, Paper, Scissors}
	for _, a := range all {
		for _, b := range all {
			got, mirrored := Resolve(a, b), Resolve(b, a)
			switch got {
			case Draw:
				assert.Equal(t, Draw, mirrored)
			case FirstWins:
				assert.Equal(t, SecondWins, mirrored)
			case SecondWins:
				assert.Equal(t, FirstWins, mirrored)
			}
		}
	}
}

func TestParseDropsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ok      bool
	}{
		{name: "plain text", content: "hello there", ok: false},
		{name: "broken json", content: `{"type":"move"`, ok: false},
		{name: "missing game id", content: `{"type":"move","cell":1}`, ok: false},
		{name: "move without cell", content: `{"type":"move","game_id":"g"}`, ok: false},
		{name: "cell out of range", content: `{"type":"move","game_id":"g","cell":9}`, ok: false},
		{name: "bad choice", content: `{"type":"choice","game_id":"g","choice":"lizard"}`, ok: false},
		{name: "unknown game", content: `{"type":"start","game_id":"g","game_type":"chess"}`, ok: false},
		{name: "valid move", content: `{"type":"move","game_id":"g","cell":0}`, ok: true},
		{name: "valid start", content: `{"type":"start","game_id":"g","game_type":"rps","target":3}`, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := Parse(tt.content)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestFoldTicTacToe(t *testing.T) {
	p := newPlayers()
	msgs := []*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "g1", GameType: TicTacToe}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g1", Cell: cell(0)}),
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g1", Cell: cell(3)}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g1", Cell: cell(1)}),
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g1", Cell: cell(4)}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g1", Cell: cell(2)}),
		// after the result nothing else applies
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g1", Cell: cell(5)}),
	}

	games := Fold(msgs)
	require.Contains(t, games, "g1")
	s := games["g1"]

	assert.Equal(t, board("XXXOO...."), s.Board)
	assert.Equal(t, p.creator.String(), s.Result)
	assert.True(t, s.Terminal())
}

func TestFoldIgnoresInvalidMoves(t *testing.T) {
	p := newPlayers()
	text := &models.DirectMessage{
		ID: uuid.New(), SenderID: p.creator, ReceiverID: p.opponent,
		Kind: models.KindText, Content: `{"type":"move","game_id":"g1","cell":4}`, CreatedAt: t0.Add(time.Hour),
	}
	garbage := p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g1", Cell: cell(1)})
	garbage.Content = "{not json"

	msgs := []*models.DirectMessage{
		// a move before any start is ignored
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g1", Cell: cell(8)}),
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "g1", GameType: TicTacToe}),
		// opponent out of turn
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g1", Cell: cell(0)}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g1", Cell: cell(4)}),
		// occupied cell
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g1", Cell: cell(4)}),
		garbage,
		text,
	}

	s := Fold(msgs)["g1"]
	require.NotNil(t, s)
	assert.Equal(t, board("....X...."), s.Board)
	assert.Equal(t, p.opponent, s.CurrentTurn)
	assert.False(t, s.Terminal())
}

func TestFoldRockPaperScissors(t *testing.T) {
	p := newPlayers()
	msgs := []*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "r", GameType: RockPaperScissors, Target: 2}),
		p.msg(t, p.opponent, Event{Type: EventChoice, GameID: "r", Choice: Scissors}),
		// second pick in the same round is ignored
		p.msg(t, p.opponent, Event{Type: EventChoice, GameID: "r", Choice: Paper}),
		p.msg(t, p.creator, Event{Type: EventChoice, GameID: "r", Choice: Rock}),
	}

	s := Fold(msgs)["r"]
	require.NotNil(t, s)
	assert.Equal(t, 1, s.Scores[p.creator])
	assert.Equal(t, 0, s.Scores[p.opponent])
	assert.Equal(t, 2, s.Round)
	require.NotNil(t, s.LastRound)
	assert.Equal(t, Scissors, s.LastRound.Choices[p.opponent])
	assert.False(t, s.Terminal())

	msgs = append(msgs,
		p.msg(t, p.creator, Event{Type: EventChoice, GameID: "r", Choice: Paper}),
		p.msg(t, p.opponent, Event{Type: EventChoice, GameID: "r", Choice: Paper}),
		p.msg(t, p.creator, Event{Type: EventChoice, GameID: "r", Choice: Scissors}),
		p.msg(t, p.opponent, Event{Type: EventChoice, GameID: "r", Choice: Paper}),
	)

	s = Fold(msgs)["r"]
	assert.Equal(t, 2, s.Scores[p.creator])
	assert.Equal(t, p.creator.String(), s.Result)
}

func TestBothPeersDeriveTheSameState(t *testing.T) {
	p := newPlayers()
	msgs := []*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "r", GameType: RockPaperScissors}),
		p.msg(t, p.creator, Event{Type: EventChoice, GameID: "r", Choice: Scissors}),
		p.msg(t, p.opponent, Event{Type: EventChoice, GameID: "r", Choice: Rock}),
	}
	// the other peer sees the same messages in a different arrival order
	reversed := []*models.DirectMessage{msgs[2], msgs[1], msgs[0]}

	a, b := Fold(msgs)["r"], Fold(reversed)["r"]
	assert.Equal(t, a.Scores, b.Scores)
	assert.Equal(t, 1, a.Scores[p.opponent])
	assert.Equal(t, p.opponent.String(), a.LastRound.Winner)
}

func TestFoldLastStartWins(t *testing.T) {
	p := newPlayers()
	first := p.msg(t, p.creator, Event{Type: EventStart, GameID: "g", GameType: TicTacToe})
	second := p.msg(t, p.opponent, Event{Type: EventStart, GameID: "g", GameType: TicTacToe})
	second.CreatedAt = first.CreatedAt

	want := p.opponent
	if second.ID.String() < first.ID.String() {
		// equal timestamps fall back to id order
		want = p.creator
	}

	s := Fold([]*models.DirectMessage{first, second})["g"]
	require.NotNil(t, s)
	assert.Equal(t, want, s.CreatorID)
	assert.Equal(t, want, s.CurrentTurn)
}

func TestFoldResultAndResign(t *testing.T) {
	p := newPlayers()
	msgs := []*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "g", GameType: TicTacToe}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g", Cell: cell(0)}),
		p.msg(t, p.opponent, Event{Type: EventResult, GameID: "g", Winner: p.creator.String(), Reason: "resign"}),
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g", Cell: cell(1)}),
	}

	s := Fold(msgs)["g"]
	assert.Equal(t, p.creator.String(), s.Result)
	assert.Equal(t, "resign", s.Reason)
	assert.Equal(t, board("X........"), s.Board)
}

func TestSessionChecks(t *testing.T) {
	p := newPlayers()
	s := Fold([]*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "g", GameType: TicTacToe}),
	})["g"]

	assert.NoError(t, s.CanMove(p.creator, 4))
	assert.Error(t, s.CanMove(p.opponent, 4))
	assert.ErrorIs(t, s.CanMove(uuid.New(), 4), apperr.ErrInvalidGameEvent)
	assert.ErrorIs(t, s.CanChoose(p.creator, Rock), apperr.ErrInvalidGameEvent)
	assert.Error(t, s.CanFinish(p.creator, "someone"))
	assert.Error(t, s.CanFinish(p.creator, Tie))
	assert.Error(t, s.CanFinish(p.creator, p.creator.String()))
	assert.NoError(t, s.CanFinish(p.creator, p.opponent.String()))
	assert.ErrorIs(t, s.CanFinish(uuid.New(), p.creator.String()), apperr.ErrInvalidGameEvent)
}

func TestFoldIgnoresSelfAwardedResults(t *testing.T) {
	tests := []struct {
		name   string
		result func(p *players) Event
		want   func(p *players) string
	}{
		{
			name:   "sender names themself",
			result: func(p *players) Event { return Event{Type: EventResult, GameID: "g", Winner: p.opponent.String()} },
			want:   func(*players) string { return "" },
		},
		{
			name:   "sender declares a tie",
			result: func(*players) Event { return Event{Type: EventResult, GameID: "g", Winner: Tie} },
			want:   func(*players) string { return "" },
		},
		{
			name:   "sender concedes",
			result: func(p *players) Event { return Event{Type: EventResult, GameID: "g", Winner: p.creator.String()} },
			want:   func(p *players) string { return p.creator.String() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlayers()
			result := tt.result(p)
			result.Scores = map[string]int{p.opponent.String(): 99}
			s := Fold([]*models.DirectMessage{
				p.msg(t, p.creator, Event{Type: EventStart, GameID: "g", GameType: TicTacToe}),
				p.msg(t, p.creator, Event{Type: EventMove, GameID: "g", Cell: cell(0)}),
				p.msg(t, p.opponent, result),
			})["g"]

			require.NotNil(t, s)
			assert.Equal(t, tt.want(p), s.Result)
			assert.Equal(t, 0, s.Scores[p.opponent])
		})
	}
}

func TestTrackerIncrementalMatchesFold(t *testing.T) {
	p := newPlayers()
	msgs := []*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "g", GameType: TicTacToe}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g", Cell: cell(4)}),
		p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g", Cell: cell(0)}),
		p.msg(t, p.creator, Event{Type: EventMove, GameID: "g", Cell: cell(8)}),
	}

	tr := NewTracker()
	var last *Session
	for _, m := range msgs {
		last = tr.Apply(m)
	}
	require.NotNil(t, last)
	assert.Equal(t, Fold(msgs)["g"].Board, last.Board)

	// duplicates are ignored
	assert.Nil(t, tr.Apply(msgs[1]))

	got, ok := tr.Get("g")
	require.True(t, ok)
	assert.Equal(t, p.opponent, got.CurrentTurn)
}

func TestTrackerRefoldsLateEvents(t *testing.T) {
	p := newPlayers()
	start := p.msg(t, p.creator, Event{Type: EventStart, GameID: "g", GameType: TicTacToe})
	first := p.msg(t, p.creator, Event{Type: EventMove, GameID: "g", Cell: cell(0)})
	reply := p.msg(t, p.opponent, Event{Type: EventMove, GameID: "g", Cell: cell(1)})

	tr := NewTracker()
	tr.Apply(start)
	// the reply arrives before the move it answers; it is out of turn for now
	s := tr.Apply(reply)
	assert.Equal(t, Board{}, s.Board)

	s = tr.Apply(first)
	assert.Equal(t, board("XO......."), s.Board)
	assert.Equal(t, p.creator, s.CurrentTurn)
}

func TestTrackerReset(t *testing.T) {
	p := newPlayers()
	tr := NewTracker()
	tr.Apply(p.msg(t, p.creator, Event{Type: EventStart, GameID: "old", GameType: TicTacToe}))

	tr.Reset([]*models.DirectMessage{
		p.msg(t, p.opponent, Event{Type: EventStart, GameID: "new", GameType: RockPaperScissors}),
	})

	_, ok := tr.Get("old")
	assert.False(t, ok)
	sessions := tr.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "new", sessions[0].GameID)
	assert.Equal(t, p.opponent, sessions[0].CreatorID)
}

func TestCloneIsIndependent(t *testing.T) {
	p := newPlayers()
	s := Fold([]*models.DirectMessage{
		p.msg(t, p.creator, Event{Type: EventStart, GameID: "r", GameType: RockPaperScissors}),
		p.msg(t, p.creator, Event{Type: EventChoice, GameID: "r", Choice: Rock}),
	})["r"]

	c := s.Clone()
	c.Scores[p.creator] = 10
	c.Chosen = nil
	assert.Equal(t, 0, s.Scores[p.creator])
	assert.True(t, s.HasChosen(p.creator))
	assert.True(t, c.HasChosen(p.creator))
}
