package realtime

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

const redisPrefix = "realtime:"

// RedisBroker relays change events over Redis pub/sub, one channel per table
type RedisBroker struct {
	rdb    *redis.Client
	pubsub *redis.PubSub
	hub    *Hub
	done   chan struct{}
}

// NewRedisBroker pattern-subscribes to every table channel
func NewRedisBroker(ctx context.Context, rdb *redis.Client) (*RedisBroker, error) {
	pubsub := rdb.PSubscribe(ctx, redisPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, apperr.Transport("failed to subscribe to change events", err)
	}

	b := &RedisBroker{rdb: rdb, pubsub: pubsub, hub: NewHub(), done: make(chan struct{})}
	go b.relay(pubsub.ChannelWithSubscriptions(ctx, defaultBuffer))
	return b, nil
}

func (b *RedisBroker) relay(ch <-chan interface{}) {
	defer close(b.done)

	for msg := range ch {
		switch m := msg.(type) {
		case *redis.Subscription:
			// go-redis resubscribes by itself after a reconnect and reports
			// it here; messages sent in between were not delivered.
			if m.Kind == "psubscribe" {
				b.hub.Interrupt(nil)
			}
		case *redis.Message:
			var ev models.ChangeEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				log.Warn("Dropping malformed change event on %s: %v", m.Channel, err)
				continue
			}
			b.hub.Publish(context.Background(), ev)
		}
	}
}

// Publish sends ev to the channel of its table
func (b *RedisBroker) Publish(ctx context.Context, ev models.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return apperr.Internal("failed to encode change event", err)
	}
	if err := b.rdb.Publish(ctx, redisPrefix+string(ev.Table), payload).Err(); err != nil {
		return apperr.Transport("failed to publish change event", apperr.FromContext("publish", err))
	}
	return nil
}

// Subscribe registers a filtered subscription
func (b *RedisBroker) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	return b.hub.Subscribe(ctx, f)
}

// Close unsubscribes and ends all subscriptions
func (b *RedisBroker) Close() error {
	err := b.pubsub.Close()
	<-b.done
	b.hub.Close()
	return err
}
