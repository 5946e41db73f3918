// Package auth issues and verifies session tokens for the two roles of the
// back-office: admins log in with a password, clients identify themselves
// with their VAT number.
package auth

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Sentinel errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnknownClient      = errors.New("no client registered with this VAT number")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmptySecret        = errors.New("auth secret required")
)

// Role of an authenticated principal.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

// User is a back-office operator.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
}

// UserRepository provides lookup of operators.
type UserRepository interface {
	// FindByEmail returns ErrUserNotFound when no user matches.
	FindByEmail(ctx context.Context, email string) (*User, error)
	Upsert(ctx context.Context, u *User) error
}

// Claims are embedded in every session token. For clients Subject is the
// client identifier and VATNumber the normalized VAT number.
type Claims struct {
	Role      Role   `json:"role"`
	Name      string `json:"name,omitempty"`
	VATNumber string `json:"vat,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims grant admin access.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type claimsKey struct{}

// WithClaims stores claims in the context.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims of the authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}
