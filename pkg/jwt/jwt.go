// Package jwt validates the access tokens that identify console actors.
// Tokens are issued upstream; Generate exists for tooling and tests.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrEmptyUserID is returned when user_id is empty.
	ErrEmptyUserID = errors.New("user_id cannot be empty")
	// ErrEmptyRole is returned when a token carries no role.
	ErrEmptyRole = errors.New("role cannot be empty")
	// ErrInvalidIssuer is returned when the issuer does not match.
	ErrInvalidIssuer = errors.New("invalid token issuer")
)

// Claims identifies the actor behind a request.
type Claims struct {
	UserID string `json:"id"`
	Role   string `json:"role"`
	Email  string `json:"email,omitempty"`

	jwt.RegisteredClaims
}

// TokenConfig holds token configuration.
type TokenConfig struct {
	Secret              string
	Issuer              string
	AccessTokenDuration time.Duration
}

// Generator signs and validates access tokens.
type Generator struct {
	config TokenConfig
}

// NewGenerator creates a new token generator.
func NewGenerator(config TokenConfig) *Generator {
	if config.AccessTokenDuration <= 0 {
		config.AccessTokenDuration = 15 * time.Minute
	}
	return &Generator{config: config}
}

// Generate creates an access token for userID acting with role.
func (g *Generator) Generate(userID, role string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrEmptyUserID
	}
	if role == "" {
		return "", time.Time{}, ErrEmptyRole
	}

	now := time.Now()
	expiresAt := now.Add(g.config.AccessTokenDuration)
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    g.config.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(g.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate validates the token and returns the claims.
func (g *Generator) Validate(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(tokenString, g.config.Secret)
	if err != nil {
		return nil, err
	}
	if g.config.Issuer != "" && claims.Issuer != g.config.Issuer {
		return nil, ErrInvalidIssuer
	}
	return claims, nil
}

// ValidateToken validates an HMAC signed token and returns the claims.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrEmptyUserID
	}
	if claims.Role == "" {
		return nil, ErrEmptyRole
	}
	return claims, nil
}
