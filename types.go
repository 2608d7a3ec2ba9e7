package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Arguments
// after the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// TokenCodec mints and decodes signed session tokens. Implementations
// must be pure: no store access, no request scoped state.
type TokenCodec interface {
	Mint(subject string, issuedAt, leaseAnchor time.Time, roles []string) (string, error)
	Decode(token string) (*SessionClaims, error)
	Inspect(token string) (*SessionClaims, error)
	Status(token string) TokenStatus
}

// CredentialStore persists one password record per user identity.
type CredentialStore interface {
	Create(ctx context.Context, username, clearPassword string, state CredentialState) (*Credential, error)
	Read(ctx context.Context, username string) (*Credential, error)
	Update(ctx context.Context, credential *Credential) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	Initialise(ctx context.Context) error
}

// RoleProvider is the read side of the authorization store the session
// manager needs to build token claims.
type RoleProvider interface {
	Roles(ctx context.Context, user string) ([]string, error)
}

// AuthorizationStore persists roles and the user/role membership relation.
type AuthorizationStore interface {
	RoleProvider

	AddRole(ctx context.Context, name, description string) (bool, error)
	DeleteRole(ctx context.Context, name string) (bool, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	Grant(ctx context.Context, user, role string) (bool, error)
	Revoke(ctx context.Context, user, role string) (bool, error)
	HasRole(ctx context.Context, user, role string) (bool, error)
	Users(ctx context.Context, role string) ([]string, error)
	Update(ctx context.Context, user string, roles []string) (bool, error)
	Initialise(ctx context.Context) error
}

// Verdict is the outcome of a password check. Infrastructure failures are
// reported through the error return, never as a verdict.
type Verdict int

const (
	VerdictUnknownUser Verdict = iota
	VerdictBadPassword
	VerdictDisabled
	VerdictOK
)

func (v Verdict) String() string {
	switch v {
	case VerdictOK:
		return "ok"
	case VerdictBadPassword:
		return "bad_password"
	case VerdictDisabled:
		return "disabled"
	default:
		return "unknown_user"
	}
}

// CredentialVerifier checks passwords and account validity against a
// backend (credential store, LDAP directory).
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (Verdict, error)
	IsValid(ctx context.Context, username string) (bool, error)
}

// PasswordHasher derives and checks password digests. The salt is the
// per credential salt kept by the store.
type PasswordHasher interface {
	Hash(password, salt string) (string, error)
	Compare(password, salt, encoded string) (bool, error)
}
