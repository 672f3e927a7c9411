package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token fails verification
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token is past its expiry
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the JWT payload for Moments access tokens
type Claims struct {
	jwt.RegisteredClaims
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// Manager signs and verifies access tokens
type Manager struct {
	secretKey []byte
	tokenTTL  time.Duration
}

// NewManager creates a token manager. ttlHours is the access token lifetime.
func NewManager(secret string, ttlHours int) *Manager {
	return &Manager{
		secretKey: []byte(secret),
		tokenTTL:  time.Duration(ttlHours) * time.Hour,
	}
}

// GenerateToken issues a signed access token for the user
func (m *Manager) GenerateToken(userID uint, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken parses and validates a token string
func (m *Manager) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ShouldRefresh reports whether the token is within the sliding-refresh
// window (less than a third of its lifetime remaining)
func (m *Manager) ShouldRefresh(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	remaining := time.Until(claims.ExpiresAt.Time)
	return remaining > 0 && remaining < m.tokenTTL/3
}
