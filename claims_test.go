package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-session-auth"
)

func TestSessionClaims_Accessors(t *testing.T) {
	claims := &auth.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(t0),
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Minute)),
		},
		UserRoles: []string{"read", "write"},
	}

	assert.Equal(t, "alice", claims.Subject())
	assert.Equal(t, []string{"read", "write"}, claims.Roles())
	assert.Equal(t, t0, claims.IssuedAt().UTC())
	assert.Equal(t, t0.Add(time.Minute), claims.Expires().UTC())
	assert.Equal(t, t0.Add(2*time.Hour), claims.SessionDeadline(2*time.Hour).UTC())
}

func TestSessionClaims_HasRole(t *testing.T) {
	claims := &auth.SessionClaims{UserRoles: []string{"read.any", "grant"}}

	tests := []struct {
		role     string
		expected bool
	}{
		{role: "read.any", expected: true},
		{role: "grant", expected: true},
		{role: "write.any", expected: false},
		{role: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.expected, claims.HasRole(tt.role))
		})
	}
}

func TestSessionClaims_MissingDates(t *testing.T) {
	claims := &auth.SessionClaims{}
	assert.True(t, claims.IssuedAt().IsZero())
	assert.True(t, claims.Expires().IsZero())
}
