// Package conversations derives the conversation list of a user: one entry
// per friend, most recently active first.
package conversations

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/realtime"
)

var log = logger.New("conversations")

// Conversation is one friend and the latest message exchanged with them
type Conversation struct {
	Friend      *models.Profile       `json:"friend"`
	LastMessage *models.DirectMessage `json:"last_message,omitempty"`
	Unread      int                   `json:"unread"`
}

// Build joins friends with the latest message per peer. Conversations are
// ordered by last message time, newest first; friends without messages come
// last in the order given.
func Build(self uuid.UUID, friends []*models.Profile, latest []*models.DirectMessage) []Conversation {
	last := make(map[uuid.UUID]*models.DirectMessage, len(latest))
	for _, m := range latest {
		peer := m.Peer(self)
		if cur, ok := last[peer]; !ok || m.CreatedAt.After(cur.CreatedAt) {
			last[peer] = m
		}
	}

	out := make([]Conversation, 0, len(friends))
	for _, f := range friends {
		c := Conversation{Friend: f, LastMessage: last[f.ID]}
		if c.LastMessage != nil && c.LastMessage.ReceiverID == self && !c.LastMessage.IsRead() {
			c.Unread = 1
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

// Store is what the index reads from
type Store interface {
	ListFriendEdges(ctx context.Context, userID uuid.UUID) ([]models.FriendEdge, error)
	GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error)
	GetLatestMessages(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error)
}

// Index keeps the conversation list of one user current with the push
// channel.
type Index struct {
	db      Store
	broker  realtime.Broker
	self    uuid.UUID
	timeout time.Duration

	refresh  sync.Mutex
	mu       sync.Mutex
	list     []Conversation
	watchers []*realtime.Watcher
	subs     map[int]func([]Conversation)
	nextSub  int
}

// NewIndex creates an index for self. timeout bounds every store call.
func NewIndex(db Store, broker realtime.Broker, self uuid.UUID, timeout time.Duration) *Index {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Index{
		db:      db,
		broker:  broker,
		self:    self,
		timeout: timeout,
		subs:    make(map[int]func([]Conversation)),
	}
}

// Start loads the list and begins following message and friendship events
func (x *Index) Start(ctx context.Context) error {
	if err := x.Refresh(ctx); err != nil {
		return err
	}

	me := x.self.String()
	filters := []realtime.Filter{
		{
			Table: models.TableMessages,
			Ops:   []models.Op{models.OpInsert, models.OpUpdate, models.OpDelete},
			Any:   []realtime.Match{{"sender_id": me}, {"receiver_id": me}},
		},
		{
			Table: models.TableFriendEdges,
			Any:   []realtime.Match{{"user_a": me}, {"user_b": me}},
		},
	}

	opts := realtime.WatchOptions{OnReconnect: func(ctx context.Context) { x.refreshQuietly(ctx) }}
	for _, f := range filters {
		w, err := realtime.Watch(ctx, x.broker, f, func(models.ChangeEvent) { x.refreshQuietly(ctx) }, opts)
		if err != nil {
			x.Close()
			return err
		}
		x.mu.Lock()
		x.watchers = append(x.watchers, w)
		x.mu.Unlock()
	}
	return nil
}

func (x *Index) refreshQuietly(ctx context.Context) {
	if err := x.Refresh(ctx); err != nil {
		log.Warn("Failed to refresh conversations for %s: %v", x.self, err)
	}
}

// Refresh recomputes the list from the store. On failure the previous list
// is kept.
func (x *Index) Refresh(ctx context.Context) error {
	x.refresh.Lock()
	defer x.refresh.Unlock()

	cctx, cancel := context.WithTimeout(database.WithUser(ctx, x.self), x.timeout)
	defer cancel()

	edges, err := x.db.ListFriendEdges(cctx, x.self)
	if err != nil {
		return apperr.FromContext("list friends", err)
	}

	friends := []*models.Profile{}
	if len(edges) > 0 {
		ids := make([]uuid.UUID, len(edges))
		for i, e := range edges {
			ids[i] = e.Other(x.self)
		}
		profiles, err := x.db.GetProfiles(cctx, ids)
		if err != nil {
			return apperr.FromContext("load friend profiles", err)
		}
		// friends without messages keep the order they were added in
		friends = models.OrderProfiles(profiles, ids)
	}

	latest, err := x.db.GetLatestMessages(cctx, x.self)
	if err != nil {
		return apperr.FromContext("load latest messages", err)
	}

	list := Build(x.self, friends, latest)

	x.mu.Lock()
	x.list = list
	subs := make([]func([]Conversation), 0, len(x.subs))
	for _, fn := range x.subs {
		subs = append(subs, fn)
	}
	x.mu.Unlock()

	for _, fn := range subs {
		fn(list)
	}
	return nil
}

// List returns the current conversation list
func (x *Index) List() []Conversation {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]Conversation(nil), x.list...)
}

// Subscribe registers fn for list changes and returns a cancel func
func (x *Index) Subscribe(fn func([]Conversation)) func() {
	x.mu.Lock()
	defer x.mu.Unlock()
	id := x.nextSub
	x.nextSub++
	x.subs[id] = fn
	return func() {
		x.mu.Lock()
		defer x.mu.Unlock()
		delete(x.subs, id)
	}
}

// Close stops following events
func (x *Index) Close() {
	x.mu.Lock()
	watchers := x.watchers
	x.watchers = nil
	x.subs = make(map[int]func([]Conversation))
	x.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
