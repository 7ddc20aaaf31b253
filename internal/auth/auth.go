// Package auth resolves the caller identity from HS256 bearer tokens. Token
// issuance belongs to the identity service; IssueToken exists for the seed
// and simulate tools.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleNurse   Role = "nurse"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	// RoleSystem marks scheduled jobs. It is never accepted from a token.
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleNurse, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}

// Caller is the authenticated identity attached to every request.
type Caller struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// System is the actor used by background jobs.
var System = Caller{ID: uuid.Nil, Role: RoleSystem}

func (c Caller) IsProvider() bool {
	return c.Role == RoleNurse || c.Role == RoleDoctor
}

func (c Caller) IsPrivileged() bool {
	return c.Role == RoleAdmin || c.Role == RoleSystem
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("invalid token")

// ValidateToken parses and verifies a token and returns the caller it names.
func ValidateToken(tokenString, secret string) (Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Caller{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Caller{}, fmt.Errorf("%w: user_id is not a uuid", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return Caller{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return Caller{ID: id, Role: claims.Role}, nil
}

// IssueToken signs a short-lived token for the given caller.
func IssueToken(secret string, caller Caller, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: caller.ID.String(),
		Role:   caller.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type contextKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok
}
