package auth

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of a session token.
//
// IssuedAt is the original authentication time and survives renewals.
// ExpiresAt is the lease expiry of the most recent mint.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserRoles []string `json:"roles"`
}

// Subject returns the authenticated username.
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Roles returns the role snapshot taken at mint time.
func (c *SessionClaims) Roles() []string {
	return c.UserRoles
}

// HasRole checks the role snapshot.
func (c *SessionClaims) HasRole(role string) bool {
	return slices.Contains(c.UserRoles, role)
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// Expires returns the lease expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// SessionDeadline returns the absolute ceiling for renewals.
func (c *SessionClaims) SessionDeadline(sessionDuration time.Duration) time.Time {
	return c.IssuedAt().Add(sessionDuration)
}
