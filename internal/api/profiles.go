package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/profiles"
)

// ProfileHandler handles profile routes
type ProfileHandler struct {
	Directory *profiles.Directory
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(dir *profiles.Directory) *ProfileHandler {
	return &ProfileHandler{Directory: dir}
}

// GetMe returns the profile of the caller, creating it on first use
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.Directory.Ensure(c.Request.Context(), userID, c.GetString("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMe changes the display name or avatar of the caller
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input models.ProfileUpdate
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.Directory.Update(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// GetProfile returns a profile by id
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "userID")
	if !ok {
		return
	}

	profile, err := h.Directory.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// GetByUsername returns a profile by username
func (h *ProfileHandler) GetByUsername(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.Directory.ByUsername(c.Request.Context(), userID, c.Param("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// Search finds other users by username or display name prefix
func (h *ProfileHandler) Search(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	results, err := h.Directory.Search(c.Request.Context(), userID, c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
