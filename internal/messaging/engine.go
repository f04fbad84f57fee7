// Package messaging keeps the local view of one direct-message conversation
// consistent with the store and the push channel.
package messaging

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/pending"
	"github.com/ammar1510/huddle/internal/realtime"
)

var log = logger.New("messaging")

const defaultTimeout = 10 * time.Second

// Store is the part of the durable store the engine writes through
type Store interface {
	CreateMessage(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error)
	GetConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID uuid.UUID, at time.Time) ([]*models.DirectMessage, error)
	DeleteConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error)
}

// ChangeKind describes a mutation of the log
type ChangeKind string

const (
	ChangeReset     ChangeKind = "reset"
	ChangeAppended  ChangeKind = "appended"
	ChangeInserted  ChangeKind = "inserted"
	ChangeConfirmed ChangeKind = "confirmed"
	ChangeUpdated   ChangeKind = "updated"
	ChangeRemoved   ChangeKind = "removed"
	ChangeCleared   ChangeKind = "cleared"
)

// Change is delivered to observers after every mutation
type Change struct {
	Kind    ChangeKind
	PeerID  uuid.UUID
	Message *models.DirectMessage
	Entries []Entry
}

// Options configures an Engine
type Options struct {
	// Timeout bounds every store call
	Timeout time.Duration
	Now     func() time.Time
}

// Engine owns the conversation log of one signed-in user. At most one
// conversation is open at a time.
type Engine struct {
	db      Store
	broker  realtime.Broker
	self    uuid.UUID
	timeout time.Duration
	now     func() time.Time

	mu        sync.Mutex
	peer      uuid.UUID
	gen       uint64
	log       Log
	loads     loadSync
	watcher   *realtime.Watcher
	observers []func(Change)
}

// loadSync records what the log learned while a history fetch was in
// flight. The fetched snapshot may predate those changes, so they are
// replayed on top of it.
type loadSync struct {
	active  int
	touched map[uuid.UUID]*models.DirectMessage
	removed map[uuid.UUID]bool
	cleared bool
}

func (s *loadSync) begin() {
	if s.active == 0 {
		*s = loadSync{
			touched: make(map[uuid.UUID]*models.DirectMessage),
			removed: make(map[uuid.UUID]bool),
		}
	}
	s.active++
}

func (s *loadSync) end() {
	if s.active--; s.active <= 0 {
		*s = loadSync{}
	}
}

func (s *loadSync) touch(msg *models.DirectMessage) {
	if s.active > 0 && msg != nil && msg.ID != uuid.Nil {
		s.touched[msg.ID] = msg
		delete(s.removed, msg.ID)
	}
}

func (s *loadSync) remove(id uuid.UUID) {
	if s.active > 0 {
		delete(s.touched, id)
		s.removed[id] = true
	}
}

func (s *loadSync) clear() {
	if s.active > 0 {
		s.cleared = true
	}
}

// NewEngine creates an engine acting as self
func NewEngine(db Store, broker realtime.Broker, self uuid.UUID, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		db:      db,
		broker:  broker,
		self:    self,
		timeout: opts.Timeout,
		now:     opts.Now,
	}
}

// OnChange registers fn for log changes. Observers run with the engine
// locked and must not call back into it.
func (e *Engine) OnChange(fn func(Change)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

// Peer returns the user of the open conversation, or uuid.Nil
func (e *Engine) Peer() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// Entries returns a snapshot of the open conversation
func (e *Engine) Entries() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Entries()
}

// Messages returns the confirmed messages of the open conversation
func (e *Engine) Messages() []*models.DirectMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.log.Messages()
}

// Open switches to the conversation with peer. The previous subscription is
// torn down before the new one is set up, then the history is loaded.
func (e *Engine) Open(ctx context.Context, peer uuid.UUID) error {
	if peer == uuid.Nil || peer == e.self {
		return apperr.Validation("invalid conversation peer")
	}

	e.mu.Lock()
	old := e.watcher
	e.watcher = nil
	e.gen++
	gen := e.gen
	e.peer = peer
	e.log.Clear(apperr.ErrNoConversation)
	e.loads = loadSync{}
	// pushes delivered from the moment the watcher subscribes are kept
	e.loads.begin()
	e.notify(ChangeReset, nil)
	e.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	w, err := realtime.Watch(ctx, e.broker, ConversationFilter(e.self, peer),
		func(ev models.ChangeEvent) { e.handleEvent(gen, ev) },
		realtime.WatchOptions{OnReconnect: func(ctx context.Context) { e.backfill(ctx, gen) }},
	)
	if err != nil {
		// still show the history; live updates resume on the next Open
		log.Warn("Failed to subscribe to conversation with %s: %v", peer, err)
		if loadErr := e.load(ctx, peer, gen); loadErr != nil {
			return loadErr
		}
		return err
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		w.Stop()
		return nil
	}
	e.watcher = w
	e.mu.Unlock()

	return e.load(ctx, peer, gen)
}

// Load fetches the full history of the open conversation. On failure the
// current log is left as it is. Messages pushed while the fetch is in flight
// survive even when the fetched history does not contain them yet.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	peer, gen := e.peer, e.gen
	if peer == uuid.Nil {
		e.mu.Unlock()
		return apperr.ErrNoConversation
	}
	e.loads.begin()
	e.mu.Unlock()

	return e.load(ctx, peer, gen)
}

// load fetches and applies the history; e.loads.begin must already have
// been called for gen
func (e *Engine) load(ctx context.Context, peer uuid.UUID, gen uint64) error {
	msgs, err := e.fetch(ctx, peer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return nil
	}
	if err != nil {
		e.loads.end()
		log.Warn("Failed to load conversation with %s: %v", peer, err)
		return err
	}
	e.applyLocked(msgs)
	return nil
}

// applyLocked replaces the log with a fetched history, then replays the
// changes observed since the fetch began
func (e *Engine) applyLocked(msgs []*models.DirectMessage) {
	defer e.loads.end()
	if e.loads.cleared {
		// the snapshot predates a clear
		return
	}

	e.log.Reset(msgs)
	for id := range e.loads.removed {
		e.log.Remove(id)
	}
	for _, m := range e.loads.touched {
		e.log.Restore(m)
	}
	e.notify(ChangeReset, nil)
}

func (e *Engine) fetch(ctx context.Context, peer uuid.UUID) ([]*models.DirectMessage, error) {
	cctx, cancel := e.storeContext(ctx)
	defer cancel()

	msgs, err := e.db.GetConversation(cctx, e.self, peer)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeInternal {
			err = apperr.Fetch("failed to load conversation", err)
		}
		return nil, apperr.FromContext("load conversation", err)
	}
	return msgs, nil
}

// backfill re-reads the history after the push channel reconnected
func (e *Engine) backfill(ctx context.Context, gen uint64) {
	e.mu.Lock()
	peer := e.peer
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.loads.begin()
	e.mu.Unlock()

	msgs, err := e.fetch(ctx, peer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	if err != nil {
		e.loads.end()
		log.Warn("Backfill after reconnect failed: %v", err)
		return
	}
	e.applyLocked(msgs)
}

// Send inserts payload optimistically, persists it and reconciles the log
// with the outcome. On failure the optimistic entry is removed and the
// error returned; nothing is retried.
func (e *Engine) Send(ctx context.Context, payload models.MessagePayload) (*models.DirectMessage, error) {
	if payload.IsEmpty() {
		metrics.MessageSent("rejected")
		return nil, apperr.ErrEmptyMessage
	}
	if payload.Kind != "" && !payload.Kind.Valid() {
		metrics.MessageSent("rejected")
		return nil, apperr.Validation("unknown message kind")
	}

	e.mu.Lock()
	peer, gen := e.peer, e.gen
	if peer == uuid.Nil {
		e.mu.Unlock()
		return nil, apperr.ErrNoConversation
	}

	draft := &models.DirectMessage{
		SenderID:   e.self,
		ReceiverID: peer,
		Kind:       payload.ResolvedKind(),
		Content:    payload.Content,
		ImageRef:   payload.ImageRef,
		VoiceRef:   payload.VoiceRef,
		CreatedAt:  e.now(),
	}
	ticket := pending.NewTicket(draft)
	draft.ClientID = ticket.ID()

	e.log.AddPending(ticket)
	e.notify(ChangeAppended, draft)
	e.mu.Unlock()

	toStore := *draft
	cctx, cancel := e.storeContext(ctx)
	saved, err := e.db.CreateMessage(cctx, &toStore)
	cancel()
	err = apperr.FromContext("send message", err)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		// conversation was switched or cleared while the write was in flight
		if err != nil {
			metrics.MessageSent("rolled_back")
			return nil, err
		}
		metrics.MessageSent("confirmed")
		return saved, nil
	}

	if err != nil {
		if e.log.Discard(ticket.ID(), err) {
			e.notify(ChangeRemoved, draft)
			metrics.MessageSent("rolled_back")
			log.Info("Rolled back message %s: %v", ticket.ID(), err)
			return nil, err
		}
		// the echo confirmed the write even though the call failed
		if ticket.State() == pending.StateConfirmed {
			metrics.MessageSent("confirmed")
			return ticket.Value(), nil
		}
		metrics.MessageSent("rolled_back")
		return nil, err
	}

	if e.log.Confirm(ticket.ID(), saved) {
		e.loads.touch(saved)
		e.notify(ChangeConfirmed, saved)
	}
	metrics.MessageSent("confirmed")
	return saved, nil
}

// OnPeerMessage applies a message delivered by the push channel
func (e *Engine) OnPeerMessage(msg *models.DirectMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.insertLocked(msg)
}

func (e *Engine) insertLocked(msg *models.DirectMessage) {
	if e.peer == uuid.Nil || !msg.Between(e.self, e.peer) {
		return
	}

	switch e.log.Insert(msg) {
	case Duplicate:
		log.Debug("Ignoring duplicate message %s", msg.ID)
	case Appended:
		e.loads.touch(msg)
		e.notify(ChangeAppended, msg)
	case Inserted:
		e.loads.touch(msg)
		e.notify(ChangeInserted, msg)
	case Confirmed:
		e.loads.touch(msg)
		e.notify(ChangeConfirmed, msg)
	}
}

func (e *Engine) handleEvent(gen uint64, ev models.ChangeEvent) {
	var msg models.DirectMessage
	if err := ev.Decode(&msg); err != nil {
		log.Warn("Dropping undecodable %s event: %v", ev.Table, err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}

	switch ev.Op {
	case models.OpInsert:
		e.insertLocked(&msg)
	case models.OpUpdate:
		e.loads.touch(&msg)
		if e.log.Update(&msg) {
			e.notify(ChangeUpdated, &msg)
		}
	case models.OpDelete:
		e.loads.remove(msg.ID)
		if e.log.Remove(msg.ID) {
			e.notify(ChangeRemoved, &msg)
		}
	}
}

// MarkRead marks every unread message from the peer as read with one
// batched write. Nothing unread means nothing is written.
func (e *Engine) MarkRead(ctx context.Context) error {
	e.mu.Lock()
	peer, gen := e.peer, e.gen
	if peer == uuid.Nil {
		e.mu.Unlock()
		return apperr.ErrNoConversation
	}
	unread := e.log.UnreadFrom(peer, e.self)
	e.mu.Unlock()

	if len(unread) == 0 {
		return nil
	}

	cctx, cancel := e.storeContext(ctx)
	defer cancel()

	changed, err := e.db.MarkMessagesRead(cctx, e.self, peer, e.now())
	if err != nil {
		return apperr.FromContext("mark read", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return nil
	}
	for _, m := range changed {
		if m.ReadAt != nil {
			e.log.MarkRead(m.ID, *m.ReadAt)
		}
	}
	if len(changed) > 0 {
		e.notify(ChangeUpdated, nil)
	}
	return nil
}

// Clear empties the local log right away and deletes the history from the
// store. The local clear is not undone if the delete fails.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	peer := e.peer
	if peer == uuid.Nil {
		e.mu.Unlock()
		return apperr.ErrNoConversation
	}
	e.log.Clear(apperr.Validation("conversation cleared"))
	e.loads.clear()
	e.notify(ChangeCleared, nil)
	e.mu.Unlock()

	cctx, cancel := e.storeContext(ctx)
	defer cancel()

	if _, err := e.db.DeleteConversation(cctx, e.self, peer); err != nil {
		return apperr.FromContext("clear conversation", err)
	}
	return nil
}

// Close releases the subscription and forgets the open conversation
func (e *Engine) Close() {
	e.mu.Lock()
	w := e.watcher
	e.watcher = nil
	e.gen++
	e.peer = uuid.Nil
	e.log.Clear(apperr.ErrNoConversation)
	e.loads = loadSync{}
	e.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// storeContext bounds a store call with the engine timeout and tags it with
// the acting user for row-level security
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(database.WithUser(ctx, e.self), e.timeout)
}

// notify must be called with e.mu held
func (e *Engine) notify(kind ChangeKind, msg *models.DirectMessage) {
	if len(e.observers) == 0 {
		return
	}
	c := Change{Kind: kind, PeerID: e.peer, Message: msg, Entries: e.log.Entries()}
	for _, fn := range e.observers {
		fn(c)
	}
}

// ConversationFilter selects message events between a and b
func ConversationFilter(a, b uuid.UUID) realtime.Filter {
	return realtime.Filter{
		Table: models.TableMessages,
		Any: []realtime.Match{
			{"sender_id": a.String(), "receiver_id": b.String()},
			{"sender_id": b.String(), "receiver_id": a.String()},
		},
	}
}
