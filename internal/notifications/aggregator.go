// Package notifications keeps the unread counters shown next to each
// section of the app.
package notifications

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/realtime"
)

var log = logger.New("notifications")

// Category is one counter
type Category string

const (
	Messages       Category = "messages"
	FriendRequests Category = "friend_requests"
	Posts          Category = "posts"
	Chat           Category = "chat"
)

// Categories lists every counter in display order
var Categories = []Category{Messages, FriendRequests, Posts, Chat}

func (c Category) Valid() bool {
	switch c {
	case Messages, FriendRequests, Posts, Chat:
		return true
	}
	return false
}

// Counts maps each category to its counter
type Counts map[Category]int

// Store is what the aggregator reads and writes
type Store interface {
	CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error)
	ListFriendRequests(ctx context.Context, userID uuid.UUID, status models.FriendRequestStatus) ([]*models.FriendRequest, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID uuid.UUID, at time.Time) ([]*models.DirectMessage, error)
}

// rule decides whether an insert event concerns the user
type rule struct {
	category Category
	filter   realtime.Filter
	// actor column that must not be the user, for shared streams
	actor string
}

// Aggregator counts insert events addressed to one user. It is created
// when the session starts and closed when it ends.
type Aggregator struct {
	db      Store
	broker  realtime.Broker
	self    uuid.UUID
	timeout time.Duration
	now     func() time.Time

	emit     sync.Mutex
	mu       sync.Mutex
	counts   Counts
	subs     map[int]func(Counts)
	nextSub  int
	watchers []*realtime.Watcher
}

func NewAggregator(db Store, broker realtime.Broker, self uuid.UUID, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	counts := make(Counts, len(Categories))
	for _, c := range Categories {
		counts[c] = 0
	}
	return &Aggregator{
		db:      db,
		broker:  broker,
		self:    self,
		timeout: timeout,
		now:     time.Now,
		counts:  counts,
		subs:    make(map[int]func(Counts)),
	}
}

func (a *Aggregator) rules() []rule {
	me := a.self.String()
	insert := []models.Op{models.OpInsert}
	return []rule{
		{category: Messages, filter: realtime.Filter{Table: models.TableMessages, Ops: insert, Any: []realtime.Match{{"receiver_id": me}}}},
		{category: FriendRequests, filter: realtime.Filter{Table: models.TableFriendRequests, Ops: insert, Any: []realtime.Match{{"receiver_id": me}}}},
		{category: Posts, filter: realtime.Filter{Table: models.TablePosts, Ops: insert}, actor: "author_id"},
		{category: Chat, filter: realtime.Filter{Table: models.TableRoomMessages, Ops: insert}, actor: "sender_id"},
	}
}

// Start seeds the counters from the store and starts following events.
// A failed seed is logged and the counters start from zero.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.Seed(ctx); err != nil {
		log.Warn("Failed to seed counters for %s: %v", a.self, err)
	}

	opts := realtime.WatchOptions{OnReconnect: func(ctx context.Context) {
		if err := a.Seed(ctx); err != nil {
			log.Warn("Failed to reseed counters for %s: %v", a.self, err)
		}
	}}

	for _, r := range a.rules() {
		r := r
		w, err := realtime.Watch(ctx, a.broker, r.filter, func(ev models.ChangeEvent) { a.handle(r, ev) }, opts)
		if err != nil {
			a.Close()
			return err
		}
		a.mu.Lock()
		a.watchers = append(a.watchers, w)
		a.mu.Unlock()
	}
	return nil
}

// Seed sets the message and friend request counters from the store
func (a *Aggregator) Seed(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(database.WithUser(ctx, a.self), a.timeout)
	defer cancel()

	unread, err := a.db.CountUnreadMessages(cctx, a.self)
	if err != nil {
		return apperr.FromContext("count unread messages", err)
	}
	reqs, err := a.db.ListFriendRequests(cctx, a.self, models.FriendRequestPending)
	if err != nil {
		return apperr.FromContext("count friend requests", err)
	}
	incoming := 0
	for _, r := range reqs {
		if r.ReceiverID == a.self {
			incoming++
		}
	}

	a.mu.Lock()
	a.counts[Messages] = unread
	a.counts[FriendRequests] = incoming
	a.mu.Unlock()
	a.publish()
	return nil
}

func (a *Aggregator) handle(r rule, ev models.ChangeEvent) {
	if r.actor != "" {
		var row map[string]interface{}
		if err := json.Unmarshal(ev.Row(), &row); err != nil {
			log.Warn("Dropping undecodable %s event: %v", ev.Table, err)
			return
		}
		if actor, _ := row[r.actor].(string); actor == a.self.String() {
			return
		}
	}

	a.mu.Lock()
	a.counts[r.category]++
	a.mu.Unlock()
	a.publish()
}

// Counts returns a copy of the counters
func (a *Aggregator) Counts() Counts {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}

func (a *Aggregator) snapshot() Counts {
	out := make(Counts, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

// Clear resets one counter
func (a *Aggregator) Clear(c Category) error {
	if !c.Valid() {
		return apperr.ErrUnknownCategory
	}
	a.mu.Lock()
	a.counts[c] = 0
	a.mu.Unlock()
	a.publish()
	return nil
}

// MarkMessagesAsRead clears the messages counter right away, then marks
// every message to the user as read. The counter is not restored when the
// write fails.
func (a *Aggregator) MarkMessagesAsRead(ctx context.Context) error {
	if err := a.Clear(Messages); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(database.WithUser(ctx, a.self), a.timeout)
	defer cancel()

	if _, err := a.db.MarkMessagesRead(cctx, a.self, uuid.Nil, a.now()); err != nil {
		log.Warn("Failed to mark messages read for %s: %v", a.self, err)
		return apperr.FromContext("mark messages read", err)
	}
	return nil
}

// Subscribe registers fn for counter changes and returns a cancel func
func (a *Aggregator) Subscribe(fn func(Counts)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// publish delivers the current counters to every subscriber, one delivery
// at a time so subscribers see counters in order
func (a *Aggregator) publish() {
	a.emit.Lock()
	defer a.emit.Unlock()

	a.mu.Lock()
	counts := a.snapshot()
	subs := make([]func(Counts), 0, len(a.subs))
	for _, fn := range a.subs {
		subs = append(subs, fn)
	}
	a.mu.Unlock()

	for _, fn := range subs {
		fn(counts)
	}
}

// Close stops every watcher and drops the subscribers
func (a *Aggregator) Close() {
	a.mu.Lock()
	watchers := a.watchers
	a.watchers = nil
	a.subs = make(map[int]func(Counts))
	a.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
}
