package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/auth"
)

// setupAuthTestRouter creates a test router behind the given middleware
func setupAuthTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		userID, _ := c.Get("userID")
		c.JSON(http.StatusOK, gin.H{
			"userID":   userID,
			"username": c.GetString("username"),
		})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	auth.InitJWTKey([]byte("test-secret-key-for-api-tests"))
	router := setupAuthTestRouter(AuthMiddleware())

	identity := auth.Identity{UserID: uuid.New(), Username: "testuser", Email: "test@example.com"}
	token, _, err := auth.GenerateToken(identity, time.Hour)
	require.NoError(t, err)
	expired, _, err := auth.GenerateToken(identity, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "no token", header: "", wantStatus: http.StatusUnauthorized},
		{name: "invalid token format", header: "Bearer invalid.token.string", wantStatus: http.StatusUnauthorized},
		{name: "missing Bearer prefix", header: token, wantStatus: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var response struct {
				UserID   string `json:"userID"`
				Username string `json:"username"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, identity.UserID.String(), response.UserID)
			assert.Equal(t, identity.Username, response.Username)
		})
	}
}

func TestTokenAuthMiddleware(t *testing.T) {
	auth.InitJWTKey([]byte("test-secret-key-for-api-tests"))
	router := setupAuthTestRouter(TokenAuthMiddleware())

	token, _, err := auth.GenerateToken(auth.Identity{UserID: uuid.New()}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
	}{
		{name: "query token", target: "/test?token=" + token, wantStatus: http.StatusOK},
		{name: "header token", target: "/test", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "missing", target: "/test", wantStatus: http.StatusUnauthorized},
		{name: "garbage", target: "/test?token=abc", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
