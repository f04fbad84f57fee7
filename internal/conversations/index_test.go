package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/mocks"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/realtime"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func profile() *models.Profile {
	return &models.Profile{ID: uuid.New(), Username: gofakeit.Username()}
}

func message(from, to uuid.UUID, at time.Duration) *models.DirectMessage {
	return &models.DirectMessage{
		ID: uuid.New(), SenderID: from, ReceiverID: to,
		Kind: models.KindText, Content: gofakeit.Word(), CreatedAt: t0.Add(at),
	}
}

func friendIDs(list []Conversation) []uuid.UUID {
	out := make([]uuid.UUID, len(list))
	for i, c := range list {
		out[i] = c.Friend.ID
	}
	return out
}

func TestBuildOrdersByLatestMessage(t *testing.T) {
	self := uuid.New()
	none, five, ten := profile(), profile(), profile()

	list := Build(self,
		[]*models.Profile{none, five, ten},
		[]*models.DirectMessage{
			message(self, five.ID, 5*time.Second),
			message(ten.ID, self, 10*time.Second),
		})

	assert.Equal(t, []uuid.UUID{ten.ID, five.ID, none.ID}, friendIDs(list))
	assert.Nil(t, list[2].LastMessage)
	assert.Equal(t, 1, list[0].Unread)
	assert.Equal(t, 0, list[1].Unread)
}

func TestBuildKeepsOrderOfSilentFriends(t *testing.T) {
	self := uuid.New()
	a, b, c, d := profile(), profile(), profile(), profile()

	list := Build(self, []*models.Profile{a, b, c, d}, []*models.DirectMessage{message(c.ID, self, time.Second)})
	assert.Equal(t, []uuid.UUID{c.ID, a.ID, b.ID, d.ID}, friendIDs(list))
}

func TestBuildIgnoresNonFriends(t *testing.T) {
	self := uuid.New()
	friend := profile()

	list := Build(self, []*models.Profile{friend}, []*models.DirectMessage{message(uuid.New(), self, time.Second)})
	require.Len(t, list, 1)
	assert.Nil(t, list[0].LastMessage)
}

func TestIndexRefresh(t *testing.T) {
	db := new(mocks.DBMock)
	self, friend := uuid.New(), profile()
	latest := message(friend.ID, self, time.Second)

	db.On("ListFriendEdges", mock.Anything, self).Return([]models.FriendEdge{models.NewFriendEdge(self, friend.ID)}, nil)
	db.On("GetProfiles", mock.Anything, []uuid.UUID{friend.ID}).Return([]*models.Profile{friend}, nil)
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{latest}, nil).Once()

	x := NewIndex(db, realtime.NewHub(), self, time.Second)
	var seen [][]Conversation
	cancel := x.Subscribe(func(list []Conversation) { seen = append(seen, list) })

	require.NoError(t, x.Refresh(context.Background()))
	require.Len(t, x.List(), 1)
	assert.Equal(t, latest.ID, x.List()[0].LastMessage.ID)
	assert.Len(t, seen, 1)

	// a failed refresh keeps the previous list
	db.On("GetLatestMessages", mock.Anything, self).Return(nil, errors.New("down")).Once()
	assert.Error(t, x.Refresh(context.Background()))
	assert.Len(t, x.List(), 1)

	cancel()
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{}, nil).Once()
	require.NoError(t, x.Refresh(context.Background()))
	assert.Len(t, seen, 1)
	assert.Nil(t, x.List()[0].LastMessage)
}

func TestIndexKeepsEdgeOrderForSilentFriends(t *testing.T) {
	db := new(mocks.DBMock)
	self := uuid.New()
	first, second, third := profile(), profile(), profile()
	edges := []models.FriendEdge{
		models.NewFriendEdge(self, first.ID),
		models.NewFriendEdge(self, second.ID),
		models.NewFriendEdge(self, third.ID),
	}

	db.On("ListFriendEdges", mock.Anything, self).Return(edges, nil)
	db.On("GetProfiles", mock.Anything, []uuid.UUID{first.ID, second.ID, third.ID}).
		Return([]*models.Profile{third, first, second}, nil)
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{}, nil)

	x := NewIndex(db, realtime.NewHub(), self, time.Second)
	require.NoError(t, x.Refresh(context.Background()))
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID}, friendIDs(x.List()))
}

func TestIndexFollowsReadReceipts(t *testing.T) {
	db := new(mocks.DBMock)
	hub := realtime.NewHub()
	defer hub.Close()
	self, friend := uuid.New(), profile()
	incoming := message(friend.ID, self, time.Minute)
	read := *incoming
	at := t0.Add(time.Hour)
	read.ReadAt = &at

	db.On("ListFriendEdges", mock.Anything, self).Return([]models.FriendEdge{models.NewFriendEdge(self, friend.ID)}, nil)
	db.On("GetProfiles", mock.Anything, mock.Anything).Return([]*models.Profile{friend}, nil)
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{incoming}, nil).Once()
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{&read}, nil)

	x := NewIndex(db, hub, self, time.Second)
	require.NoError(t, x.Start(context.Background()))
	defer x.Close()
	require.Equal(t, 1, x.List()[0].Unread)

	ev, err := models.NewChangeEvent(models.TableMessages, models.OpUpdate, &read, incoming)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool {
		list := x.List()
		return len(list) == 1 && list[0].Unread == 0
	}, time.Second, 5*time.Millisecond)
}

func TestIndexFollowsMessageEvents(t *testing.T) {
	db := new(mocks.DBMock)
	hub := realtime.NewHub()
	defer hub.Close()
	self, friend := uuid.New(), profile()
	incoming := message(friend.ID, self, time.Minute)

	db.On("ListFriendEdges", mock.Anything, self).Return([]models.FriendEdge{models.NewFriendEdge(self, friend.ID)}, nil)
	db.On("GetProfiles", mock.Anything, mock.Anything).Return([]*models.Profile{friend}, nil)
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{}, nil).Once()
	db.On("GetLatestMessages", mock.Anything, self).Return([]*models.DirectMessage{incoming}, nil)

	x := NewIndex(db, hub, self, time.Second)
	require.NoError(t, x.Start(context.Background()))
	defer x.Close()
	assert.Equal(t, 2, hub.Subscribers())

	ev, err := models.NewChangeEvent(models.TableMessages, models.OpInsert, incoming, nil)
	require.NoError(t, err)
	require.NoError(t, hub.Publish(context.Background(), ev))

	assert.Eventually(t, func() bool {
		list := x.List()
		return len(list) == 1 && list[0].LastMessage != nil && list[0].LastMessage.ID == incoming.ID
	}, time.Second, 5*time.Millisecond)

	x.Close()
	assert.Equal(t, 0, hub.Subscribers())
}
