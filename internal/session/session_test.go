package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/games"
	"github.com/ammar1510/huddle/internal/mocks"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/profiles"
	"github.com/ammar1510/huddle/internal/realtime"
)

type recorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recorder) emit(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Type
	}
	return out
}

func (r *recorder) last(frameType string) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i].Type == frameType {
			return r.frames[i], true
		}
	}
	return Frame{}, false
}

type fixture struct {
	db      *mocks.DBMock
	hub     *realtime.Hub
	rec     *recorder
	session *Session
	self    uuid.UUID
	friend  uuid.UUID

	relayMu sync.Mutex
	relayed map[uuid.UUID][]Frame
}

// saveMessage mimics the store: it assigns an id and keeps the client id
func saveMessage(ctx context.Context, m *models.DirectMessage) *models.DirectMessage {
	saved := *m
	saved.ID = uuid.New()
	return &saved
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:      new(mocks.DBMock),
		hub:     realtime.NewHub(),
		rec:     &recorder{},
		self:    uuid.New(),
		friend:  uuid.New(),
		relayed: make(map[uuid.UUID][]Frame),
	}

	friendProfile := &models.Profile{ID: f.friend, Username: "friend"}
	f.db.On("EnsureProfile", mock.Anything, f.self, "me").Return(&models.Profile{ID: f.self, Username: "me"}, nil)
	f.db.On("CountUnreadMessages", mock.Anything, f.self).Return(0, nil)
	f.db.On("ListFriendRequests", mock.Anything, f.self, models.FriendRequestPending).Return([]*models.FriendRequest{}, nil)
	f.db.On("ListFriendEdges", mock.Anything, f.self).Return([]models.FriendEdge{models.NewFriendEdge(f.self, f.friend)}, nil)
	f.db.On("GetProfiles", mock.Anything, []uuid.UUID{f.friend}).Return([]*models.Profile{friendProfile}, nil)
	f.db.On("GetLatestMessages", mock.Anything, f.self).Return([]*models.DirectMessage{}, nil)
	f.db.On("HasFriendEdge", mock.Anything, f.self, f.friend).Return(true, nil)
	f.db.On("HasFriendEdge", mock.Anything, f.self, mock.Anything).Return(false, nil)
	f.db.On("GetConversation", mock.Anything, f.self, f.friend).Return([]*models.DirectMessage{}, nil)

	deps := Deps{
		DB:       f.db,
		Broker:   f.hub,
		Profiles: profiles.NewDirectory(f.db, nil, time.Minute, time.Second),
		Friends:  friends.NewService(f.db, time.Second),
		Timeout:  time.Second,
		Relay: func(to uuid.UUID, fr Frame) {
			f.relayMu.Lock()
			defer f.relayMu.Unlock()
			f.relayed[to] = append(f.relayed[to], fr)
		},
	}

	s, err := New(context.Background(), deps, auth.Identity{UserID: f.self, Username: "me"}, f.rec.emit)
	require.NoError(t, err)
	f.session = s

	t.Cleanup(func() {
		s.Close()
		f.hub.Close()
	})
	return f
}

func (f *fixture) handle(t *testing.T, cmd Command) error {
	t.Helper()
	return f.session.Handle(context.Background(), cmd)
}

func TestNewSessionEmitsInitialState(t *testing.T) {
	f := newFixture(t)

	types := f.rec.types()
	assert.Contains(t, types, FrameCounters)
	assert.Contains(t, types, FrameConversations)
	assert.Equal(t, FrameReady, types[len(types)-1])

	ready, _ := f.rec.last(FrameReady)
	assert.Equal(t, f.self, ready.Payload.(ReadyPayload).Profile.ID)

	// two conversation index watchers and four counters
	assert.Equal(t, 6, f.hub.Subscribers())
	f.session.Close()
	assert.Equal(t, 0, f.hub.Subscribers())
}

func TestOpenConversationRequiresFriendship(t *testing.T) {
	f := newFixture(t)

	err := f.handle(t, Command{Type: CmdOpenConversation, PeerID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.CodeAuthorization))

	err = f.handle(t, Command{Type: CmdOpenConversation, PeerID: f.self})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	require.NoError(t, f.handle(t, Command{Type: CmdOpenConversation, PeerID: f.friend}))
	frame, ok := f.rec.last(FrameConversation)
	require.True(t, ok)
	assert.Equal(t, f.friend, frame.Payload.(ConversationPayload).PeerID)
}

func TestSendMessageCommand(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, Command{Type: CmdOpenConversation, PeerID: f.friend}))

	f.db.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m *models.DirectMessage) bool {
		return m.Content == "hi" && m.Kind == models.KindText && m.ReceiverID == f.friend
	})).Return(saveMessage, nil).Once()

	require.NoError(t, f.handle(t, Command{Type: CmdSendMessage, Content: "hi"}))
	assert.ErrorIs(t, f.handle(t, Command{Type: CmdSendMessage}), apperr.ErrEmptyMessage)
	f.db.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestGameCommands(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handle(t, Command{Type: CmdOpenConversation, PeerID: f.friend}))

	f.db.On("CreateMessage", mock.Anything, mock.MatchedBy(func(m *models.DirectMessage) bool {
		return m.Kind == models.KindGameEvent
	})).Return(saveMessage, nil)

	require.NoError(t, f.handle(t, Command{Type: CmdGameStart, GameID: "g1", GameType: games.TicTacToe}))

	frame, ok := f.rec.last(FrameGames)
	require.True(t, ok)
	sessions := frame.Payload.([]*games.Session)
	require.Len(t, sessions, 1)
	assert.Equal(t, f.self, sessions[0].CurrentTurn)

	cell := 4
	require.NoError(t, f.handle(t, Command{Type: CmdGameMove, GameID: "g1", Cell: &cell}))

	g := f.session.Games()[0]
	assert.Equal(t, games.X, g.Board[4])
	assert.Equal(t, f.friend, g.CurrentTurn)

	// out of turn is refused before anything is sent
	other := 0
	err := f.handle(t, Command{Type: CmdGameMove, GameID: "g1", Cell: &other})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	f.db.AssertNumberOfCalls(t, "CreateMessage", 2)

	err = f.handle(t, Command{Type: CmdGameChoice, GameID: "g1", Choice: games.Rock})
	assert.ErrorIs(t, err, apperr.ErrInvalidGameEvent)

	require.NoError(t, f.handle(t, Command{Type: CmdGameResign, GameID: "g1"}))
	g = f.session.Games()[0]
	assert.Equal(t, f.friend.String(), g.Result)
	assert.Equal(t, "resign", g.Reason)

	err = f.handle(t, Command{Type: CmdGameMove, GameID: "missing", Cell: &other})
	assert.ErrorIs(t, err, apperr.ErrInvalidGameEvent)
}

func TestGameCommandsNeedConversation(t *testing.T) {
	f := newFixture(t)
	err := f.handle(t, Command{Type: CmdGameStart, GameType: games.RockPaperScissors})
	assert.ErrorIs(t, err, apperr.ErrNoConversation)
}

func TestTypingIsRelayedToPeer(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.handle(t, Command{Type: CmdTyping, IsTyping: true}), apperr.ErrNoConversation)

	require.NoError(t, f.handle(t, Command{Type: CmdOpenConversation, PeerID: f.friend}))
	require.NoError(t, f.handle(t, Command{Type: CmdTyping, IsTyping: true}))

	f.relayMu.Lock()
	defer f.relayMu.Unlock()
	require.Len(t, f.relayed[f.friend], 1)
	assert.Equal(t, TypingPayload{SenderID: f.self, IsTyping: true}, f.relayed[f.friend][0].Payload)
}

func TestCounterCommands(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.handle(t, Command{Type: CmdClearCounter, Category: "likes"}), apperr.ErrUnknownCategory)
	require.NoError(t, f.handle(t, Command{Type: CmdClearCounter, Category: "posts"}))

	f.db.On("MarkMessagesRead", mock.Anything, f.self, uuid.Nil, mock.Anything).Return([]*models.DirectMessage{}, nil).Once()
	require.NoError(t, f.handle(t, Command{Type: CmdMarkMessagesRead}))
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	err := f.handle(t, Command{Type: "dance"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestErrorFrame(t *testing.T) {
	frame := ErrorFrame("r1", apperr.ErrEmptyMessage)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "r1", frame.RequestID)
	assert.Equal(t, ErrorPayload{Code: apperr.CodeValidation, Message: "message must contain text or an attachment"}, frame.Payload)
}
