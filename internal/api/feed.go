package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/models"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// FeedHandler serves the shared post feed and chat room
type FeedHandler struct {
	DB      database.DBInterface
	Timeout time.Duration
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(db database.DBInterface, timeout time.Duration) *FeedHandler {
	return &FeedHandler{DB: db, Timeout: timeout}
}

func (h *FeedHandler) ctx(c *gin.Context, userID uuid.UUID) (context.Context, context.CancelFunc) {
	return context.WithTimeout(database.WithUser(c.Request.Context(), userID), h.Timeout)
}

func feedLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultFeedLimit
	}
	if limit > maxFeedLimit {
		return maxFeedLimit
	}
	return limit
}

// CreatePost adds a post to the feed
func (h *FeedHandler) CreatePost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	post, err := h.DB.CreatePost(ctx, userID, req)
	if err != nil {
		respondError(c, apperr.FromContext("create post", err))
		return
	}
	c.JSON(http.StatusCreated, post)
}

// ListPosts returns the newest posts
func (h *FeedHandler) ListPosts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	posts, err := h.DB.ListPosts(ctx, feedLimit(c))
	if err != nil {
		respondError(c, apperr.FromContext("list posts", err))
		return
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	c.JSON(http.StatusOK, posts)
}

// PostRoomMessage writes to the shared chat room
func (h *FeedHandler) PostRoomMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.RoomMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	msg, err := h.DB.CreateRoomMessage(ctx, userID, req.Content)
	if err != nil {
		respondError(c, apperr.FromContext("post room message", err))
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListRoomMessages returns the newest chat room messages
func (h *FeedHandler) ListRoomMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	ctx, cancel := h.ctx(c, userID)
	defer cancel()

	msgs, err := h.DB.ListRoomMessages(ctx, feedLimit(c))
	if err != nil {
		respondError(c, apperr.FromContext("list room messages", err))
		return
	}
	if msgs == nil {
		msgs = []*models.RoomMessage{}
	}
	c.JSON(http.StatusOK, msgs)
}
