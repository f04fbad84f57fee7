package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/models"
)

// DBMock is a testify mock of database.DBInterface
type DBMock struct {
	mock.Mock
}

var _ database.DBInterface = (*DBMock)(nil)

func (m *DBMock) EnsureProfile(ctx context.Context, id uuid.UUID, username string) (*models.Profile, error) {
	args := m.Called(ctx, id, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *DBMock) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *DBMock) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *DBMock) GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Profile), args.Error(1)
}

func (m *DBMock) SearchProfiles(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]*models.Profile, error) {
	args := m.Called(ctx, query, exclude, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Profile), args.Error(1)
}

func (m *DBMock) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *DBMock) CreateFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendRequest), args.Error(1)
}

func (m *DBMock) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendRequest), args.Error(1)
}

func (m *DBMock) FindFriendRequest(ctx context.Context, userA, userB uuid.UUID) (*models.FriendRequest, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendRequest), args.Error(1)
}

func (m *DBMock) SetFriendRequestStatus(ctx context.Context, id, receiverID uuid.UUID, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	args := m.Called(ctx, id, receiverID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FriendRequest), args.Error(1)
}

func (m *DBMock) ListFriendRequests(ctx context.Context, userID uuid.UUID, status models.FriendRequestStatus) ([]*models.FriendRequest, error) {
	args := m.Called(ctx, userID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.FriendRequest), args.Error(1)
}

func (m *DBMock) CreateFriendEdge(ctx context.Context, edge models.FriendEdge) (*models.FriendEdge, bool, error) {
	args := m.Called(ctx, edge)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.FriendEdge), args.Bool(1), args.Error(2)
}

func (m *DBMock) HasFriendEdge(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	args := m.Called(ctx, userA, userB)
	return args.Bool(0), args.Error(1)
}

func (m *DBMock) ListFriendEdges(ctx context.Context, userID uuid.UUID) ([]models.FriendEdge, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.FriendEdge), args.Error(1)
}

func (m *DBMock) CreateMessage(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error) {
	args := m.Called(ctx, msg)
	if fn, ok := args.Get(0).(func(context.Context, *models.DirectMessage) *models.DirectMessage); ok {
		return fn(ctx, msg), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DirectMessage), args.Error(1)
}

func (m *DBMock) GetConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DirectMessage), args.Error(1)
}

func (m *DBMock) GetLatestMessages(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DirectMessage), args.Error(1)
}

func (m *DBMock) MarkMessagesRead(ctx context.Context, receiverID, senderID uuid.UUID, at time.Time) ([]*models.DirectMessage, error) {
	args := m.Called(ctx, receiverID, senderID, at)
	if fn, ok := args.Get(0).(func(context.Context, uuid.UUID, uuid.UUID, time.Time) []*models.DirectMessage); ok {
		return fn(ctx, receiverID, senderID, at), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DirectMessage), args.Error(1)
}

func (m *DBMock) DeleteConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DirectMessage), args.Error(1)
}

func (m *DBMock) CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error) {
	args := m.Called(ctx, receiverID)
	return args.Int(0), args.Error(1)
}

func (m *DBMock) CreatePost(ctx context.Context, authorID uuid.UUID, req models.PostRequest) (*models.Post, error) {
	args := m.Called(ctx, authorID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *DBMock) ListPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Post), args.Error(1)
}

func (m *DBMock) CreateRoomMessage(ctx context.Context, senderID uuid.UUID, content string) (*models.RoomMessage, error) {
	args := m.Called(ctx, senderID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomMessage), args.Error(1)
}

func (m *DBMock) ListRoomMessages(ctx context.Context, limit int) ([]*models.RoomMessage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoomMessage), args.Error(1)
}

func (m *DBMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
