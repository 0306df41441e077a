package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultSessionTTL is the lifetime of player and admin tokens
	DefaultSessionTTL = 7 * 24 * time.Hour
	adminTokenExpiry  = 12 * time.Hour
)

// JWTClaims represents the JWT token claims for players and admins
type JWTClaims struct {
	UserID  uuid.UUID `json:"sub"`
	Admin   string    `json:"admin,omitempty"`
	IsAdmin bool      `json:"isAdmin,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTService creates a new JWT service. A non-positive ttl uses DefaultSessionTTL.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL is the lifetime of player tokens
func (s *JWTService) TTL() time.Duration {
	return s.ttl
}

// AdminTTL is the lifetime of admin tokens
func (s *JWTService) AdminTTL() time.Duration {
	if s.ttl < adminTokenExpiry {
		return s.ttl
	}
	return adminTokenExpiry
}

// SignUserToken creates a player token
func (s *JWTService) SignUserToken(userID uuid.UUID) (string, error) {
	return s.sign(&JWTClaims{UserID: userID}, s.ttl)
}

// SignAdminToken creates a token carrying the isAdmin claim
func (s *JWTService) SignAdminToken(username string) (string, error) {
	return s.sign(&JWTClaims{Admin: username, IsAdmin: true}, s.AdminTTL())
}

func (s *JWTService) sign(claims *JWTClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// VerifyToken verifies and parses a JWT token
func (s *JWTService) VerifyToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
