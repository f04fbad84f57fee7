package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/models"
)

// FriendHandler handles friend request routes
type FriendHandler struct {
	Friends *friends.Service
}

// NewFriendHandler creates a new friend handler
func NewFriendHandler(svc *friends.Service) *FriendHandler {
	return &FriendHandler{Friends: svc}
}

// ListFriends returns the profiles of the caller's friends
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.Friends.Friends(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// ListRequests returns pending requests split by direction
func (h *FriendHandler) ListRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	incoming, outgoing, err := h.Friends.Pending(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"incoming": incoming, "outgoing": outgoing})
}

// SendRequest creates a friend request from the caller
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.FriendRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.Friends.SendRequest(c.Request.Context(), userID, input.ReceiverID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// AcceptRequest accepts a request addressed to the caller
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := uuidParam(c, "requestID")
	if !ok {
		return
	}

	req, err := h.Friends.Accept(c.Request.Context(), userID, requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RejectRequest declines a request addressed to the caller
func (h *FriendHandler) RejectRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := uuidParam(c, "requestID")
	if !ok {
		return
	}

	req, err := h.Friends.Reject(c.Request.Context(), userID, requestID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
