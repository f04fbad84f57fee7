package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/mocks"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/realtime"
)

func publish(t *testing.T, hub *realtime.Hub, table models.Table, record interface{}) {
	t.Helper()
	ev, err := models.NewChangeEvent(table, models.OpInsert, record, nil)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))
}

func startAggregator(t *testing.T, unread int, requests []*models.FriendRequest) (*Aggregator, *mocks.DBMock, *realtime.Hub, uuid.UUID) {
	t.Helper()
	db := new(mocks.DBMock)
	hub := realtime.NewHub()
	self := uuid.New()

	db.On("CountUnreadMessages", mock.Anything, self).Return(unread, nil)
	db.On("ListFriendRequests", mock.Anything, self, models.FriendRequestPending).Return(requests, nil)

	agg := NewAggregator(db, hub, self, time.Second)
	require.NoError(t, agg.Start(context.Background()))
	t.Cleanup(func() {
		agg.Close()
		hub.Close()
	})
	return agg, db, hub, self
}

func TestSeed(t *testing.T) {
	self := uuid.New()
	db := new(mocks.DBMock)
	db.On("CountUnreadMessages", mock.Anything, self).Return(3, nil)
	db.On("ListFriendRequests", mock.Anything, self, models.FriendRequestPending).Return([]*models.FriendRequest{
		{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: self},
		{ID: uuid.New(), SenderID: self, ReceiverID: uuid.New()},
	}, nil)

	agg := NewAggregator(db, realtime.NewHub(), self, time.Second)
	require.NoError(t, agg.Seed(context.Background()))

	assert.Equal(t, Counts{Messages: 3, FriendRequests: 1, Posts: 0, Chat: 0}, agg.Counts())
}

func TestIncrementRules(t *testing.T) {
	agg, _, hub, self := startAggregator(t, 0, []*models.FriendRequest{})
	other := uuid.New()

	// counted
	publish(t, hub, models.TableMessages, &models.DirectMessage{ID: uuid.New(), SenderID: other, ReceiverID: self})
	publish(t, hub, models.TableFriendRequests, &models.FriendRequest{ID: uuid.New(), SenderID: other, ReceiverID: self})
	publish(t, hub, models.TablePosts, &models.Post{ID: uuid.New(), AuthorID: other})
	publish(t, hub, models.TableRoomMessages, &models.RoomMessage{ID: uuid.New(), SenderID: other})

	// not counted: addressed to someone else or written by self
	publish(t, hub, models.TableMessages, &models.DirectMessage{ID: uuid.New(), SenderID: self, ReceiverID: other})
	publish(t, hub, models.TableFriendRequests, &models.FriendRequest{ID: uuid.New(), SenderID: self, ReceiverID: other})
	publish(t, hub, models.TablePosts, &models.Post{ID: uuid.New(), AuthorID: self})
	publish(t, hub, models.TableRoomMessages, &models.RoomMessage{ID: uuid.New(), SenderID: self})

	want := Counts{Messages: 1, FriendRequests: 1, Posts: 1, Chat: 1}
	assert.Eventually(t, func() bool {
		got := agg.Counts()
		return got[Messages] == 1 && got[FriendRequests] == 1 && got[Posts] == 1 && got[Chat] == 1
	}, time.Second, 5*time.Millisecond)

	// give stray deliveries a chance to show up
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, want, agg.Counts())
}

func TestClear(t *testing.T) {
	agg, _, hub, _ := startAggregator(t, 2, []*models.FriendRequest{})
	publish(t, hub, models.TablePosts, &models.Post{ID: uuid.New(), AuthorID: uuid.New()})
	assert.Eventually(t, func() bool { return agg.Counts()[Posts] == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, agg.Clear(Posts))
	assert.Equal(t, 0, agg.Counts()[Posts])
	assert.Equal(t, 2, agg.Counts()[Messages])

	assert.ErrorIs(t, agg.Clear("likes"), apperr.ErrUnknownCategory)
}

func TestMarkMessagesAsReadIsOptimistic(t *testing.T) {
	agg, db, _, self := startAggregator(t, 4, []*models.FriendRequest{})

	db.On("MarkMessagesRead", mock.Anything, self, uuid.Nil, mock.Anything).
		Run(func(args mock.Arguments) {
			assert.Equal(t, 0, agg.Counts()[Messages])
		}).
		Return(nil, errors.New("store down")).Once()

	err := agg.MarkMessagesAsRead(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, agg.Counts()[Messages], "counter is not restored")
	db.AssertExpectations(t)
}

func TestSubscribe(t *testing.T) {
	agg, _, hub, _ := startAggregator(t, 0, []*models.FriendRequest{})

	var mu sync.Mutex
	var got []Counts
	cancel := agg.Subscribe(func(c Counts) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})

	publish(t, hub, models.TableRoomMessages, &models.RoomMessage{ID: uuid.New(), SenderID: uuid.New()})
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0][Chat] == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, agg.Clear(Chat))
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestReseedAfterReconnect(t *testing.T) {
	db := new(mocks.DBMock)
	hub := realtime.NewHub()
	defer hub.Close()
	self := uuid.New()

	db.On("CountUnreadMessages", mock.Anything, self).Return(0, nil).Once()
	db.On("CountUnreadMessages", mock.Anything, self).Return(5, nil)
	db.On("ListFriendRequests", mock.Anything, self, models.FriendRequestPending).Return([]*models.FriendRequest{}, nil)

	agg := NewAggregator(db, hub, self, time.Second)
	require.NoError(t, agg.Start(context.Background()))
	defer agg.Close()
	assert.Equal(t, 0, agg.Counts()[Messages])

	hub.Interrupt(errors.New("link down"))
	assert.Eventually(t, func() bool { return agg.Counts()[Messages] == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseStopsWatchers(t *testing.T) {
	agg, _, hub, _ := startAggregator(t, 0, []*models.FriendRequest{})
	assert.Equal(t, 4, hub.Subscribers())
	agg.Close()
	assert.Equal(t, 0, hub.Subscribers())
}
