// Package session is the per-connection root of the gateway. A Session is
// created when an authenticated client connects and owns every stateful
// component acting for that user until the client disconnects.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/conversations"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/games"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/messaging"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/notifications"
	"github.com/ammar1510/huddle/internal/profiles"
	"github.com/ammar1510/huddle/internal/realtime"
)

var log = logger.New("session")

// Emitter delivers a frame to the client of the session. It must not block.
type Emitter func(Frame)

// Deps are the shared services a session is built from
type Deps struct {
	DB       database.DBInterface
	Broker   realtime.Broker
	Profiles *profiles.Directory
	Friends  *friends.Service
	Timeout  time.Duration
	// Relay delivers a frame to another connected user, if any
	Relay func(to uuid.UUID, f Frame)
}

// Session holds the state of one connected user
type Session struct {
	self    uuid.UUID
	profile *models.Profile
	deps    Deps
	emit    Emitter

	ctx    context.Context
	cancel context.CancelFunc

	engine  *messaging.Engine
	tracker *games.Tracker
	agg     *notifications.Aggregator
	index   *conversations.Index

	started   bool
	closeOnce sync.Once
}

// New sets up a session for id: the profile is ensured, counters seeded and
// the conversation list loaded before it is returned.
func New(ctx context.Context, deps Deps, id auth.Identity, emit Emitter) (*Session, error) {
	profile, err := deps.Profiles.Ensure(ctx, id.UserID, id.Username)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		self:    id.UserID,
		profile: profile,
		deps:    deps,
		emit:    emit,
		ctx:     sctx,
		cancel:  cancel,
		tracker: games.NewTracker(),
	}

	s.engine = messaging.NewEngine(deps.DB, deps.Broker, s.self, messaging.Options{Timeout: deps.Timeout})
	s.engine.OnChange(s.onConversationChange)

	s.agg = notifications.NewAggregator(deps.DB, deps.Broker, s.self, deps.Timeout)
	s.agg.Subscribe(func(c notifications.Counts) {
		s.emit(Frame{Type: FrameCounters, Payload: c})
	})

	s.index = conversations.NewIndex(deps.DB, deps.Broker, s.self, deps.Timeout)
	s.index.Subscribe(func(list []conversations.Conversation) {
		s.emit(Frame{Type: FrameConversations, Payload: list})
	})

	if err := s.agg.Start(sctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.index.Start(sctx); err != nil {
		s.Close()
		return nil, err
	}

	s.started = true
	metrics.SessionOpened()
	log.Info("Session started for %s (%s)", profile.Username, s.self)
	s.emit(Frame{Type: FrameReady, Payload: ReadyPayload{Profile: profile, Counters: s.agg.Counts()}})
	return s, nil
}

// UserID returns the user the session acts for
func (s *Session) UserID() uuid.UUID { return s.self }

// Profile returns the profile ensured at session start
func (s *Session) Profile() *models.Profile { return s.profile }

// Games returns the games of the open conversation
func (s *Session) Games() []*games.Session { return s.tracker.Sessions() }

// Close tears down every component of the session
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.engine.Close()
		s.agg.Close()
		s.index.Close()
		if s.started {
			metrics.SessionClosed()
		}
		log.Info("Session closed for %s", s.self)
	})
}

// onConversationChange runs with the engine locked
func (s *Session) onConversationChange(c messaging.Change) {
	s.emit(Frame{
		Type:    FrameConversation,
		Payload: ConversationPayload{PeerID: c.PeerID, Change: string(c.Kind), Entries: c.Entries},
	})

	gamesChanged := false
	switch c.Kind {
	case messaging.ChangeReset, messaging.ChangeCleared, messaging.ChangeRemoved:
		s.tracker.Reset(confirmed(c.Entries))
		gamesChanged = true
	case messaging.ChangeAppended, messaging.ChangeInserted, messaging.ChangeConfirmed:
		// optimistic drafts have no id yet and are folded once confirmed
		if c.Message != nil && c.Message.ID != uuid.Nil {
			gamesChanged = s.tracker.Apply(c.Message) != nil
		}
	}
	if gamesChanged {
		s.emit(Frame{Type: FrameGames, Payload: s.tracker.Sessions()})
	}
}

func confirmed(entries []messaging.Entry) []*models.DirectMessage {
	out := make([]*models.DirectMessage, 0, len(entries))
	for _, e := range entries {
		if e.Message != nil && e.Message.ID != uuid.Nil {
			out = append(out, e.Message)
		}
	}
	return out
}

// Handle executes one client command
func (s *Session) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case CmdOpenConversation:
		return s.openConversation(ctx, cmd.PeerID)
	case CmdSendMessage:
		_, err := s.engine.Send(ctx, models.MessagePayload{
			Kind:     cmd.Kind,
			Content:  cmd.Content,
			ImageRef: cmd.ImageRef,
			VoiceRef: cmd.VoiceRef,
		})
		return err
	case CmdMarkRead:
		return s.engine.MarkRead(ctx)
	case CmdClearConversation:
		return s.engine.Clear(ctx)
	case CmdGameStart:
		return s.startGame(ctx, cmd)
	case CmdGameMove:
		return s.move(ctx, cmd)
	case CmdGameChoice:
		return s.choose(ctx, cmd)
	case CmdGameResign:
		return s.resign(ctx, cmd)
	case CmdClearCounter:
		return s.agg.Clear(cmd.Category)
	case CmdMarkMessagesRead:
		return s.agg.MarkMessagesAsRead(ctx)
	case CmdTyping:
		return s.typing(cmd.IsTyping)
	}
	return apperr.Validation("unknown command type")
}

func (s *Session) openConversation(ctx context.Context, peer uuid.UUID) error {
	if peer == uuid.Nil || peer == s.self {
		return apperr.Validation("invalid conversation peer")
	}
	ok, err := s.deps.Friends.AreFriends(ctx, s.self, peer)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Authorization("you can only message friends")
	}
	return s.engine.Open(ctx, peer)
}

func (s *Session) typing(isTyping bool) error {
	peer := s.engine.Peer()
	if peer == uuid.Nil {
		return apperr.ErrNoConversation
	}
	if s.deps.Relay != nil {
		s.deps.Relay(peer, Frame{Type: FrameTyping, Payload: TypingPayload{SenderID: s.self, IsTyping: isTyping}})
	}
	return nil
}

func (s *Session) sendGameEvent(ctx context.Context, ev games.Event) error {
	content, err := ev.Encode()
	if err != nil {
		return err
	}
	_, err = s.engine.Send(ctx, models.MessagePayload{Kind: models.KindGameEvent, Content: content})
	return err
}

func (s *Session) startGame(ctx context.Context, cmd Command) error {
	if s.engine.Peer() == uuid.Nil {
		return apperr.ErrNoConversation
	}
	gameID := strings.TrimSpace(cmd.GameID)
	if gameID == "" {
		gameID = uuid.NewString()
	}
	return s.sendGameEvent(ctx, games.Event{
		Type:     games.EventStart,
		GameID:   gameID,
		GameType: cmd.GameType,
		Target:   cmd.Target,
	})
}

// game returns the tracked game of the open conversation
func (s *Session) game(gameID string) (*games.Session, error) {
	peer := s.engine.Peer()
	if peer == uuid.Nil {
		return nil, apperr.ErrNoConversation
	}
	g, ok := s.tracker.Get(gameID)
	if !ok || !g.Has(peer) || !g.Has(s.self) {
		return nil, apperr.ErrInvalidGameEvent
	}
	return g, nil
}

func (s *Session) move(ctx context.Context, cmd Command) error {
	g, err := s.game(cmd.GameID)
	if err != nil {
		return err
	}
	if cmd.Cell == nil {
		return apperr.Validation("cell is required")
	}
	if err := g.CanMove(s.self, *cmd.Cell); err != nil {
		return err
	}
	return s.sendGameEvent(ctx, games.Event{Type: games.EventMove, GameID: g.GameID, Cell: cmd.Cell})
}

func (s *Session) choose(ctx context.Context, cmd Command) error {
	g, err := s.game(cmd.GameID)
	if err != nil {
		return err
	}
	if err := g.CanChoose(s.self, cmd.Choice); err != nil {
		return err
	}
	return s.sendGameEvent(ctx, games.Event{Type: games.EventChoice, GameID: g.GameID, Choice: cmd.Choice})
}

func (s *Session) resign(ctx context.Context, cmd Command) error {
	g, err := s.game(cmd.GameID)
	if err != nil {
		return err
	}
	winner := g.Other(s.self).String()
	if err := g.CanFinish(s.self, winner); err != nil {
		return err
	}

	scores := make(map[string]int, len(g.Scores))
	for id, score := range g.Scores {
		scores[id.String()] = score
	}
	return s.sendGameEvent(ctx, games.Event{
		Type:   games.EventResult,
		GameID: g.GameID,
		Winner: winner,
		Reason: "resign",
		Scores: scores,
	})
}
