package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

const defaultBuffer = 64

var errHubClosed = errors.New("realtime hub closed")

// Subscription is a live stream of filtered change events
type Subscription struct {
	id     uint64
	filter Filter
	hub    *Hub
	events chan models.ChangeEvent
	err    error
	ended  bool
}

// Events returns the delivery channel. It is closed when the subscription
// ends; Err then tells why.
func (s *Subscription) Events() <-chan models.ChangeEvent {
	return s.events
}

// Err returns nil after Unsubscribe and a transport error when the
// subscription was interrupted. Only meaningful once Events is closed.
func (s *Subscription) Err() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return s.err
}

// Unsubscribe ends the subscription. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.end(s, nil)
}

// Hub is an in-process broker. It is the memory realtime driver and the
// local fan-out behind the networked brokers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*Subscription), buffer: defaultBuffer}
}

// Subscribe registers a new subscription for f
func (h *Hub) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.FromContext("subscribe", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, apperr.Transport("subscribe failed", errHubClosed)
	}

	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		filter: f,
		hub:    h,
		events: make(chan models.ChangeEvent, h.buffer),
	}
	h.subs[sub.id] = sub
	return sub, nil
}

// Publish fans ev out to every matching subscription. A subscriber whose
// buffer is full is ended with a transport error rather than blocking the
// other subscribers.
func (h *Hub) Publish(ctx context.Context, ev models.ChangeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return apperr.Transport("publish failed", errHubClosed)
	}

	for _, sub := range h.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			log.Warn("Subscription %d fell behind, dropping it", sub.id)
			h.end(sub, apperr.Transport("subscriber fell behind", nil))
		}
	}
	return nil
}

// Interrupt ends every subscription with a transport error. Brokers call it
// when the upstream connection was lost and events may be missing.
func (h *Hub) Interrupt(cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		h.end(sub, apperr.Transport("push channel interrupted", cause))
	}
}

// Subscribers returns the number of live subscriptions
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends all subscriptions and rejects further use
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for _, sub := range h.subs {
		h.end(sub, apperr.Transport("push channel closed", errHubClosed))
	}
	return nil
}

// end must be called with h.mu held
func (h *Hub) end(sub *Subscription, err error) {
	if sub.ended {
		return
	}
	sub.ended = true
	sub.err = err
	delete(h.subs, sub.id)
	close(sub.events)
}
