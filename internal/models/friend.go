package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// FriendRequestStatus is the lifecycle state of a friend request
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestRejected FriendRequestStatus = "rejected"
)

// FriendRequest is a directed request from sender to receiver
type FriendRequest struct {
	ID         uuid.UUID           `json:"id" db:"id"`
	SenderID   uuid.UUID           `json:"sender_id" db:"sender_id"`
	ReceiverID uuid.UUID           `json:"receiver_id" db:"receiver_id"`
	Status     FriendRequestStatus `json:"status" db:"status"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at" db:"updated_at"`
}

// FriendRequestInput is the body of a friend request creation call
type FriendRequestInput struct {
	ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
}

// FriendEdge is an accepted friendship. UserA always sorts before UserB.
type FriendEdge struct {
	UserA     uuid.UUID `json:"user_a" db:"user_a"`
	UserB     uuid.UUID `json:"user_b" db:"user_b"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewFriendEdge builds the canonical edge for an unordered pair
func NewFriendEdge(x, y uuid.UUID) FriendEdge {
	if bytes.Compare(x[:], y[:]) > 0 {
		x, y = y, x
	}
	return FriendEdge{UserA: x, UserB: y}
}

// Other returns the member of the edge that is not self
func (e FriendEdge) Other(self uuid.UUID) uuid.UUID {
	if e.UserA == self {
		return e.UserB
	}
	return e.UserA
}

// Has reports whether the user is one of the two members
func (e FriendEdge) Has(user uuid.UUID) bool {
	return e.UserA == user || e.UserB == user
}
