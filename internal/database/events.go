package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

var log = logger.New("database")

// Publisher receives a change event for every successful write
type Publisher interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

// eventDB announces writes on the push channel after they commit. Reads
// pass straight through to the embedded store.
type eventDB struct {
	DBInterface
	pub Publisher
}

// WithEvents wraps db so that writes publish change events to pub
func WithEvents(db DBInterface, pub Publisher) DBInterface {
	return &eventDB{DBInterface: db, pub: pub}
}

// publish is best effort: the write already committed, so a lost event
// only delays subscribers until their next re-fetch.
func (db *eventDB) publish(ctx context.Context, table models.Table, op models.Op, record, old interface{}) {
	ev, err := models.NewChangeEvent(table, op, record, old)
	if err == nil {
		err = db.pub.Publish(ctx, ev)
	}
	if err != nil {
		log.Warn("Failed to publish %s %s event: %v", table, op, err)
	}
}

func (db *eventDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.Profile, error) {
	profile, err := db.DBInterface.UpdateProfile(ctx, id, update)
	if err == nil {
		db.publish(ctx, models.TableProfiles, models.OpUpdate, profile, nil)
	}
	return profile, err
}

func (db *eventDB) CreateFriendRequest(ctx context.Context, senderID, receiverID uuid.UUID) (*models.FriendRequest, error) {
	req, err := db.DBInterface.CreateFriendRequest(ctx, senderID, receiverID)
	if err == nil {
		db.publish(ctx, models.TableFriendRequests, models.OpInsert, req, nil)
	}
	return req, err
}

func (db *eventDB) SetFriendRequestStatus(ctx context.Context, id, receiverID uuid.UUID, status models.FriendRequestStatus) (*models.FriendRequest, error) {
	req, err := db.DBInterface.SetFriendRequestStatus(ctx, id, receiverID, status)
	if err == nil {
		db.publish(ctx, models.TableFriendRequests, models.OpUpdate, req, nil)
	}
	return req, err
}

func (db *eventDB) CreateFriendEdge(ctx context.Context, edge models.FriendEdge) (*models.FriendEdge, bool, error) {
	saved, created, err := db.DBInterface.CreateFriendEdge(ctx, edge)
	if err == nil && created {
		db.publish(ctx, models.TableFriendEdges, models.OpInsert, saved, nil)
	}
	return saved, created, err
}

func (db *eventDB) CreateMessage(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error) {
	saved, err := db.DBInterface.CreateMessage(ctx, msg)
	if err == nil {
		db.publish(ctx, models.TableMessages, models.OpInsert, saved, nil)
	}
	return saved, err
}

func (db *eventDB) MarkMessagesRead(ctx context.Context, receiverID, senderID uuid.UUID, at time.Time) ([]*models.DirectMessage, error) {
	msgs, err := db.DBInterface.MarkMessagesRead(ctx, receiverID, senderID, at)
	if err == nil {
		for _, m := range msgs {
			db.publish(ctx, models.TableMessages, models.OpUpdate, m, nil)
		}
	}
	return msgs, err
}

func (db *eventDB) DeleteConversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.DirectMessage, error) {
	msgs, err := db.DBInterface.DeleteConversation(ctx, userA, userB)
	if err == nil {
		for _, m := range msgs {
			db.publish(ctx, models.TableMessages, models.OpDelete, nil, m)
		}
	}
	return msgs, err
}

func (db *eventDB) CreatePost(ctx context.Context, authorID uuid.UUID, req models.PostRequest) (*models.Post, error) {
	post, err := db.DBInterface.CreatePost(ctx, authorID, req)
	if err == nil {
		db.publish(ctx, models.TablePosts, models.OpInsert, post, nil)
	}
	return post, err
}

func (db *eventDB) CreateRoomMessage(ctx context.Context, senderID uuid.UUID, content string) (*models.RoomMessage, error) {
	msg, err := db.DBInterface.CreateRoomMessage(ctx, senderID, content)
	if err == nil {
		db.publish(ctx, models.TableRoomMessages, models.OpInsert, msg, nil)
	}
	return msg, err
}
