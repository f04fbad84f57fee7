package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/models"
)

const (
	profileColumns = `id, username, COALESCE(display_name, '') AS display_name,
		COALESCE(avatar_ref, '') AS avatar_ref, created_at, last_seen`
	requestColumns = `id, sender_id, receiver_id, status, created_at, updated_at`
	messageColumns = `id, COALESCE(client_id, '') AS client_id, sender_id, receiver_id, kind, content,
		COALESCE(image_ref, '') AS image_ref, COALESCE(voice_ref, '') AS voice_ref, created_at, read_at`
	postColumns = `id, author_id, body, COALESCE(image_ref, '') AS image_ref, created_at`
	roomColumns = `id, sender_id, content, created_at`

	conversationClause = `((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`
)

// PostgresDB is the PostgreSQL implementation of DBInterface
type PostgresDB struct {
	*sqlx.DB
	rowLevelSecurity bool
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresDB{DB: db}, nil
}

func (db *PostgresDB) EnsureProfile(ctx context.Context, id uuid.UUID, username string) (*models.Profile, error) {
	profile := &models.Profile{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, profile, `
			INSERT INTO profiles (id, username) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET last_seen = now()
			RETURNING `+profileColumns, id, username)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.EnsureProfile", err, apperr.Conflict("username is already taken"))
	}
	return profile, nil
}

func (db *PostgresDB) GetProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	profile := &models.Profile{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, profile, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	})
	if err != nil {
		return nil, readErr("PostgresDB.GetProfile", err, apperr.ErrProfileNotFound)
	}
	return profile, nil
}

func (db *PostgresDB) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	profile := &models.Profile{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, profile, `SELECT `+profileColumns+` FROM profiles WHERE username = $1`, username)
	})
	if err != nil {
		return nil, readErr("PostgresDB.GetProfileByUsername", err, apperr.ErrProfileNotFound)
	}
	return profile, nil
}

func (db *PostgresDB) GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error) {
	if len(ids) == 0 {
		return []*models.Profile{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	profiles := []*models.Profile{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &profiles,
			`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1::uuid[])
			ORDER BY array_position($1::uuid[], id)`, pq.Array(keys))
	})
	if err != nil {
		return nil, readErr("PostgresDB.GetProfiles", err, nil)
	}
	return profiles, nil
}

func (db *PostgresDB) SearchProfiles(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]*models.Profile, error) {
	profiles := []*models.Profile{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &profiles, `
			SELECT `+profileColumns+` FROM profiles
			WHERE id <> $1 AND (username ILIKE $2 || '%' OR display_name ILIKE $2 || '%')
			ORDER BY username LIMIT $3`, exclude, query, limit)
	})
	if err != nil {
		return nil, readErr("PostgresDB.SearchProfiles", err, nil)
	}
	return profiles, nil
}

func (db *PostgresDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	profile := &models.Profile{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, profile, `
			UPDATE profiles SET display_name = NULLIF($2, ''), avatar_ref = NULLIF($3, '')
			WHERE id = $1
			RETURNING `+profileColumns, id, update.DisplayName, update.AvatarRef)
	})
	if err != nil {
		return nil, readErr("PostgresDB.UpdateProfile", err, apperr.ErrProfileNotFound)
	}
	return profile, nil
}

func (db *PostgresDB) CreateFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, req, `
			INSERT INTO friend_requests (sender_id, receiver_id, status) VALUES ($1, $2, $3)
			RETURNING `+requestColumns, senderID, receiverID, models.FriendRequestPending)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.CreateFriendRequest", err, apperr.ErrDuplicateFriendRequest)
	}
	return req, nil
}

func (db *PostgresDB) GetFriendRequest(ctx context.Context, id uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, req, `SELECT `+requestColumns+` FROM friend_requests WHERE id = $1`, id)
	})
	if err != nil {
		return nil, readErr("PostgresDB.GetFriendRequest", err, apperr.ErrFriendRequestNotFound)
	}
	return req, nil
}

// FindFriendRequest returns the most recent request between two users in
// either direction
func (db *PostgresDB) FindFriendRequest(ctx context.Context, userA, userB uuid.UUID) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, req, `
			SELECT `+requestColumns+` FROM friend_requests
			WHERE `+conversationClause+`
			ORDER BY created_at DESC LIMIT 1`, userA, userB)
	})
	if err != nil {
		return nil, readErr("PostgresDB.FindFriendRequest", err, apperr.ErrFriendRequestNotFound)
	}
	return req, nil
}

func (db *PostgresDB) SetFriendRequestStatus(ctx context.Context, id, receiverID uuid.UUID, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	req := &models.FriendRequest{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, req, `
			UPDATE friend_requests SET status = $3, updated_at = now()
			WHERE id = $1 AND receiver_id = $2
			RETURNING `+requestColumns, id, receiverID, status)
	})
	if err != nil {
		return nil, readErr("PostgresDB.SetFriendRequestStatus", err, apperr.ErrFriendRequestNotFound)
	}
	return req, nil
}

// ListFriendRequests returns requests in status that userID sent or received
func (db *PostgresDB) ListFriendRequests(ctx context.Context, userID uuid.UUID, status models.FriendRequestStatus) ([]*models.FriendRequest, error) {
	reqs := []*models.FriendRequest{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &reqs, `
			SELECT `+requestColumns+` FROM friend_requests
			WHERE (sender_id = $1 OR receiver_id = $1) AND status = $2
			ORDER BY created_at DESC`, userID, status)
	})
	if err != nil {
		return nil, readErr("PostgresDB.ListFriendRequests", err, nil)
	}
	return reqs, nil
}

// CreateFriendEdge inserts edge unless it exists. The bool reports whether
// a new row was written.
func (db *PostgresDB) CreateFriendEdge(ctx context.Context, edge models.FriendEdge) (*models.FriendEdge, bool, error) {
	edge = models.NewFriendEdge(edge.UserA, edge.UserB)
	created := true

	err := db.run(ctx, func(q sqlx.ExtContext) error {
		err := sqlx.GetContext(ctx, q, &edge, `
			INSERT INTO friend_edges (user_a, user_b) VALUES ($1, $2)
			ON CONFLICT (user_a, user_b) DO NOTHING
			RETURNING user_a, user_b, created_at`, edge.UserA, edge.UserB)
		if err != sql.ErrNoRows {
			return err
		}

		created = false
		return sqlx.GetContext(ctx, q, &edge, `
			SELECT user_a, user_b, created_at FROM friend_edges
			WHERE user_a = $1 AND user_b = $2`, edge.UserA, edge.UserB)
	})
	if err != nil {
		return nil, false, writeErr("PostgresDB.CreateFriendEdge", err, nil)
	}
	return &edge, created, nil
}

func (db *PostgresDB) HasFriendEdge(ctx context.Context, userA, userB uuid.UUID) (bool, error) {
	edge := models.NewFriendEdge(userA, userB)
	var exists bool
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &exists, `
			SELECT EXISTS (SELECT 1 FROM friend_edges WHERE user_a = $1 AND user_b = $2)`,
			edge.UserA, edge.UserB)
	})
	if err != nil {
		return false, readErr("PostgresDB.HasFriendEdge", err, nil)
	}
	return exists, nil
}

func (db *PostgresDB) ListFriendEdges(ctx context.Context, userID uuid.UUID) ([]models.FriendEdge, error) {
	edges := []models.FriendEdge{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &edges, `
			SELECT user_a, user_b, created_at FROM friend_edges
			WHERE user_a = $1 OR user_b = $1
			ORDER BY created_at`, userID)
	})
	if err != nil {
		return nil, readErr("PostgresDB.ListFriendEdges", err, nil)
	}
	return edges, nil
}

// CreateMessage persists msg. The store assigns the id and created_at.
func (db *PostgresDB) CreateMessage(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error) {
	saved := &models.DirectMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, saved, `
			INSERT INTO direct_messages (client_id, sender_id, receiver_id, kind, content, image_ref, voice_ref)
			VALUES (NULLIF($1, ''), $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
			RETURNING `+messageColumns,
			msg.ClientID, msg.SenderID, msg.ReceiverID, msg.Kind, msg.Content, msg.ImageRef, msg.VoiceRef)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.CreateMessage", err, nil)
	}
	return saved, nil
}

// GetConversation returns every message between two users, oldest first
func (db *PostgresDB) GetConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error) {
	msgs := []*models.DirectMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &msgs, `
			SELECT `+messageColumns+` FROM direct_messages
			WHERE `+conversationClause+`
			ORDER BY created_at ASC, id ASC`, userA, userB)
	})
	if err != nil {
		return nil, readErr("PostgresDB.GetConversation", err, nil)
	}
	return msgs, nil
}

// GetLatestMessages returns the newest message of every conversation userID
// takes part in
func (db *PostgresDB) GetLatestMessages(ctx context.Context, userID uuid.UUID) ([]*models.DirectMessage, error) {
	msgs := []*models.DirectMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &msgs, `
			SELECT DISTINCT ON (LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id))
				`+messageColumns+`
			FROM direct_messages
			WHERE sender_id = $1 OR receiver_id = $1
			ORDER BY LEAST(sender_id, receiver_id), GREATEST(sender_id, receiver_id),
				created_at DESC, id DESC`, userID)
	})
	if err != nil {
		return nil, readErr("PostgresDB.GetLatestMessages", err, nil)
	}
	return msgs, nil
}

// MarkMessagesRead stamps every unread message to receiverID with at and
// returns the rows it changed. A nil senderID covers all senders. Rows
// that already carry read_at are never touched again.
func (db *PostgresDB) MarkMessagesRead(ctx context.Context, receiverID, senderID uuid.UUID, at time.Time) ([]*models.DirectMessage, error) {
	var sender interface{}
	if senderID != uuid.Nil {
		sender = senderID
	}

	msgs := []*models.DirectMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &msgs, `
			UPDATE direct_messages SET read_at = $3
			WHERE receiver_id = $1 AND ($2::uuid IS NULL OR sender_id = $2) AND read_at IS NULL
			RETURNING `+messageColumns, receiverID, sender, at)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.MarkMessagesRead", err, nil)
	}
	return msgs, nil
}

func (db *PostgresDB) DeleteConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error) {
	msgs := []*models.DirectMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &msgs, `
			DELETE FROM direct_messages WHERE `+conversationClause+`
			RETURNING `+messageColumns, userA, userB)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.DeleteConversation", err, nil)
	}
	return msgs, nil
}

func (db *PostgresDB) CountUnreadMessages(ctx context.Context, receiverID uuid.UUID) (int, error) {
	var count int
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, &count,
			`SELECT COUNT(*) FROM direct_messages WHERE receiver_id = $1 AND read_at IS NULL`, receiverID)
	})
	if err != nil {
		return 0, readErr("PostgresDB.CountUnreadMessages", err, nil)
	}
	return count, nil
}

func (db *PostgresDB) CreatePost(ctx context.Context, authorID uuid.UUID, req models.PostRequest) (*models.Post, error) {
	post := &models.Post{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, post, `
			INSERT INTO posts (author_id, body, image_ref) VALUES ($1, $2, NULLIF($3, ''))
			RETURNING `+postColumns, authorID, req.Body, req.ImageRef)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.CreatePost", err, nil)
	}
	return post, nil
}

func (db *PostgresDB) ListPosts(ctx context.Context, limit int) ([]*models.Post, error) {
	posts := []*models.Post{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &posts,
			`SELECT `+postColumns+` FROM posts ORDER BY created_at DESC LIMIT $1`, limit)
	})
	if err != nil {
		return nil, readErr("PostgresDB.ListPosts", err, nil)
	}
	return posts, nil
}

func (db *PostgresDB) CreateRoomMessage(ctx context.Context, senderID uuid.UUID, content string) (*models.RoomMessage, error) {
	msg := &models.RoomMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.GetContext(ctx, q, msg, `
			INSERT INTO room_messages (sender_id, content) VALUES ($1, $2)
			RETURNING `+roomColumns, senderID, content)
	})
	if err != nil {
		return nil, writeErr("PostgresDB.CreateRoomMessage", err, nil)
	}
	return msg, nil
}

func (db *PostgresDB) ListRoomMessages(ctx context.Context, limit int) ([]*models.RoomMessage, error) {
	msgs := []*models.RoomMessage{}
	err := db.run(ctx, func(q sqlx.ExtContext) error {
		return sqlx.SelectContext(ctx, q, &msgs,
			`SELECT `+roomColumns+` FROM room_messages ORDER BY created_at DESC LIMIT $1`, limit)
	})
	if err != nil {
		return nil, readErr("PostgresDB.ListRoomMessages", err, nil)
	}
	return msgs, nil
}
