package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/models"
)

// DBInterface is the durable store of the data platform as seen by the
// gateway. Every call is bounded by ctx.
type DBInterface interface {
	// Profile methods
	EnsureProfile(ctx context.Context, id uuid.UUID, username string) (*models.Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error)
	SearchProfiles(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error)

	// Friendship methods
	CreateFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error)
	GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error)
	FindFriendRequest(ctx context.Context, userA, userB uuid.UUID) (*models.FriendRequest, error)
	SetFriendRequestStatus(ctx context.Context, id, receiverID uuid.UUID, status models.FriendRequestStatus) (*models.FriendRequest, error)
	ListFriendRequests(ctx context.Context, userID uuid.UUID, status models.FriendRequestStatus) ([]*models.FriendRequest, error)
	CreateFriendEdge(ctx context.Context, edge models.FriendEdge) (*models.FriendEdge, bool, error)
	HasFriendEdge(ctx context.Context, userA, userB uuid.UUID) (bool, error)
	ListFriendEdges(ctx context.Context, userID uuid.UUID) ([]models.FriendEdge, error)

	// Message methods
	CreateMessage(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error)
	GetConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error)
	GetLatestMessages(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error)
	MarkMessagesRead(ctx context.Context, receiverID, senderID uuid.UUID, at time.Time) ([]*models.DirectMessage, error)
	DeleteConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error)
	CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error)

	// Feed and chat room methods
	CreatePost(ctx context.Context, authorID uuid.UUID, req models.PostRequest) (*models.Post, error)
	ListPosts(ctx context.Context, limit int) ([]*models.Post, error)
	CreateRoomMessage(ctx context.Context, senderID uuid.UUID, content string) (*models.RoomMessage, error)
	ListRoomMessages(ctx context.Context, limit int) ([]*models.RoomMessage, error)

	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	Supabase   DatabaseType = "supabase"
)

// NewDatabase opens the store for dbType
func NewDatabase(dbType DatabaseType, connStr string) (*PostgresDB, error) {
	switch dbType {
	case PostgreSQL:
		return NewPostgresDB(connStr)
	case Supabase:
		return NewSupabaseDB(connStr)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
