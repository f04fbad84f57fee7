package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/conversations"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/models"
)

// MessageRequest is the body of a direct message sent over HTTP
type MessageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
	models.MessagePayload
}

// MessageHandler handles message-related routes
type MessageHandler struct {
	DB      database.DBInterface
	Friends *friends.Service
	Timeout time.Duration
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(db database.DBInterface, svc *friends.Service, timeout time.Duration) *MessageHandler {
	return &MessageHandler{DB: db, Friends: svc, Timeout: timeout}
}

func (h *MessageHandler) ctx(c *gin.Context, userID uuid.UUID) (context.Context, context.CancelFunc) {
	return context.WithTimeout(database.WithUser(c.Request.Context(), userID), h.Timeout)
}

// requireFriend answers 403 unless the two users share a friend edge
func (h *MessageHandler) requireFriend(c *gin.Context, userID, peerID uuid.UUID) bool {
	ok, err := h.Friends.AreFriends(c.Request.Context(), userID, peerID)
	if err != nil {
		respondError(c, err)
		return false
	}
	if !ok {
		respondError(c, apperr.Authorization("you can only message friends"))
		return false
	}
	return true
}

// SendMessage stores a new direct message from the authenticated user
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IsEmpty() {
		respondError(c, apperr.ErrEmptyMessage)
		return
	}
	if req.ReceiverID == userID {
		respondError(c, apperr.Validation("cannot message yourself"))
		return
	}
	if !h.requireFriend(c, userID, req.ReceiverID) {
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	message, err := h.DB.CreateMessage(ctx, &models.DirectMessage{
		SenderID:   userID,
		ReceiverID: req.ReceiverID,
		Kind:       req.ResolvedKind(),
		Content:    req.Content,
		ImageRef:   req.ImageRef,
		VoiceRef:   req.VoiceRef,
	})
	if err != nil {
		respondError(c, apperr.FromContext("send message", err))
		return
	}

	metrics.MessageSent("confirmed")
	c.JSON(http.StatusCreated, message)
}

// GetConversation returns all messages between the authenticated user and a friend
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, ok := uuidParam(c, "peerID")
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	messages, err := h.DB.GetConversation(ctx, userID, peerID)
	if err != nil {
		respondError(c, apperr.FromContext("load conversation", err))
		return
	}
	if messages == nil {
		messages = []*models.DirectMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

// MarkRead marks every unread message from the peer as read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, ok := uuidParam(c, "peerID")
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	updated, err := h.DB.MarkMessagesRead(ctx, userID, peerID, time.Now().UTC())
	if err != nil {
		respondError(c, apperr.FromContext("mark read", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": len(updated)})
}

// DeleteConversation removes the whole history with the peer
func (h *MessageHandler) DeleteConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	peerID, ok := uuidParam(c, "peerID")
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	deleted, err := h.DB.DeleteConversation(ctx, userID, peerID)
	if err != nil {
		respondError(c, apperr.FromContext("delete conversation", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": len(deleted)})
}

// ListConversations returns every friend with the latest message exchanged
func (h *MessageHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	friendList, err := h.Friends.Friends(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	latest, err := h.DB.GetLatestMessages(ctx, userID)
	if err != nil {
		respondError(c, apperr.FromContext("load conversations", err))
		return
	}
	c.JSON(http.StatusOK, conversations.Build(userID, friendList, latest))
}
