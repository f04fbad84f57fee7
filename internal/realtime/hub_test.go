package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

func messageEvent(t *testing.T, op models.Op, sender, receiver uuid.UUID) models.ChangeEvent {
	t.Helper()
	msg := &models.DirectMessage{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Kind:       models.KindText,
		Content:    "hi",
		CreatedAt:  time.Now(),
	}
	ev, err := models.NewChangeEvent(models.TableMessages, op, msg, nil)
	require.NoError(t, err)
	return ev
}

func TestFilterMatches(t *testing.T) {
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	conversation := Filter{
		Table: models.TableMessages,
		Any: []Match{
			{"sender_id": alice.String(), "receiver_id": bob.String()},
			{"sender_id": bob.String(), "receiver_id": alice.String()},
		},
	}

	tests := []struct {
		name   string
		filter Filter
		event  models.ChangeEvent
		want   bool
	}{
		{name: "alice to bob", filter: conversation, event: messageEvent(t, models.OpInsert, alice, bob), want: true},
		{name: "bob to alice", filter: conversation, event: messageEvent(t, models.OpInsert, bob, alice), want: true},
		{name: "carol to alice", filter: conversation, event: messageEvent(t, models.OpInsert, carol, alice), want: false},
		{name: "other table", filter: Filter{Table: models.TablePosts}, event: messageEvent(t, models.OpInsert, alice, bob), want: false},
		{name: "op mismatch", filter: Filter{Table: models.TableMessages, Ops: []models.Op{models.OpDelete}}, event: messageEvent(t, models.OpInsert, alice, bob), want: false},
		{name: "match all rows", filter: Filter{Table: models.TableMessages}, event: messageEvent(t, models.OpUpdate, carol, bob), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.event))
		})
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	defer hub.Close()
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	all, err := hub.Subscribe(ctx, Filter{Table: models.TableMessages})
	require.NoError(t, err)
	toBob, err := hub.Subscribe(ctx, Filter{Table: models.TableMessages, Any: []Match{{"receiver_id": bob.String()}}})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, messageEvent(t, models.OpInsert, alice, bob)))
	require.NoError(t, hub.Publish(ctx, messageEvent(t, models.OpInsert, bob, alice)))

	assert.Len(t, all.Events(), 2)
	assert.Len(t, toBob.Events(), 1)

	toBob.Unsubscribe()
	toBob.Unsubscribe()
	_, open := <-drainAll(toBob)
	assert.False(t, open)
	assert.NoError(t, toBob.Err())
	assert.Equal(t, 1, hub.Subscribers())
}

func TestHubSlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	hub.buffer = 1
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	ev := messageEvent(t, models.OpInsert, uuid.New(), uuid.New())
	require.NoError(t, hub.Publish(ctx, ev))
	require.NoError(t, hub.Publish(ctx, ev))

	drainAll(sub)
	assert.True(t, apperr.Is(sub.Err(), apperr.CodeTransport))
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHubInterruptAndClose(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, Filter{})
	require.NoError(t, err)

	hub.Interrupt(nil)
	drainAll(sub)
	assert.True(t, apperr.Is(sub.Err(), apperr.CodeTransport))

	require.NoError(t, hub.Close())
	_, err = hub.Subscribe(ctx, Filter{})
	assert.True(t, apperr.Is(err, apperr.CodeTransport))
	assert.Error(t, hub.Publish(ctx, models.ChangeEvent{}))
}

// drainAll reads until the subscription's channel is closed
func drainAll(sub *Subscription) <-chan models.ChangeEvent {
	for range sub.Events() {
	}
	return sub.Events()
}
