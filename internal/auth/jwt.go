package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/logger"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	jwtKey          = []byte(os.Getenv("JWT_SECRET"))
	log             = logger.New("auth")
)

// InitJWTKey sets the secret shared with the identity service
func InitJWTKey(key []byte) {
	jwtKey = key
}

// Identity is the authenticated user behind a session
type Identity struct {
	UserID   uuid.UUID
	Email    string
	Username string
}

// JWTClaims represents the claims of an access token issued by the
// identity service. Subject carries the user id.
type JWTClaims struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken signs an access token for id. The gateway only validates
// tokens in production; this is used by development tooling and tests.
func GenerateToken(id Identity, ttl time.Duration) (string, time.Time, error) {
	if id.UserID == uuid.Nil {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}

	expirationTime := time.Now().Add(ttl)
	claims := &JWTClaims{
		Email:    id.Email,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtKey)
	return tokenString, expirationTime, err
}

// ValidateToken validates an access token and returns its claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		log.Warn("Validating empty token")
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtKey, nil
	})
	if err != nil {
		log.Debug("Token validation error: %v", err)
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IdentityFromToken validates tokenString and resolves the session identity
func IdentityFromToken(tokenString string) (Identity, error) {
	claims, err := ValidateToken(tokenString)
	if err != nil {
		return Identity{}, err
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: userID, Email: claims.Email, Username: claims.Username}, nil
}
