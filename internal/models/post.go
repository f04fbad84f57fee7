package models

import (
	"time"

	"github.com/google/uuid"
)

// Post is an entry in the shared feed
type Post struct {
	ID        uuid.UUID `json:"id" db:"id"`
	AuthorID  uuid.UUID `json:"author_id" db:"author_id"`
	Body      string    `json:"body" db:"body"`
	ImageRef  string    `json:"image_ref,omitempty" db:"image_ref"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PostRequest is the body of a post creation call
type PostRequest struct {
	Body     string `json:"body" binding:"required,min=1,max=2000"`
	ImageRef string `json:"image_ref" binding:"omitempty,url"`
}

// RoomMessage is a message in the shared chat room
type RoomMessage struct {
	ID        uuid.UUID `json:"id" db:"id"`
	SenderID  uuid.UUID `json:"sender_id" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RoomMessageRequest is the body of a chat room post
type RoomMessageRequest struct {
	Content string `json:"content" binding:"required,min=1,max=1000"`
}
