package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialState governs whether a credential may authenticate or renew.
type CredentialState string

const (
	CredentialActive   CredentialState = "active"
	CredentialDisabled CredentialState = "disabled"
)

// IsActive reports whether the state allows authentication.
func (s CredentialState) IsActive() bool {
	return s == CredentialActive
}

// Credential is the password record for a single user identity.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:crd"`
	ID            uuid.UUID       `bun:"id,pk,type:varchar(36)" json:"id"`
	Username      string          `bun:"username,notnull,unique" json:"username"`
	Salt          string          `bun:"salt,notnull" json:"-"`
	PasswordHash  string          `bun:"password_hash,notnull" json:"-"`
	State         CredentialState `bun:"state,notnull" json:"state"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// NewCredential builds a credential with a fresh ID and salt and the
// password hashed by hasher. It is not persisted.
func NewCredential(hasher PasswordHasher, username, clearPassword string, state CredentialState) (*Credential, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	if state == "" {
		state = CredentialActive
	}

	c := &Credential{
		ID:       uuid.New(),
		Username: username,
		Salt:     salt,
		State:    state,
	}

	if err := c.SetPassword(hasher, clearPassword); err != nil {
		return nil, err
	}

	return c, nil
}

// SetPassword replaces the password hash. The salt is kept.
func (c *Credential) SetPassword(hasher PasswordHasher, clearPassword string) error {
	if clearPassword == "" {
		return ErrNoEmptyString
	}
	hash, err := hasher.Hash(clearPassword, c.Salt)
	if err != nil {
		return internalError(err, "failed to hash password")
	}
	c.PasswordHash = hash
	return nil
}

// Verify compares clearPassword against the stored hash.
func (c *Credential) Verify(hasher PasswordHasher, clearPassword string) bool {
	if c == nil || c.PasswordHash == "" {
		return false
	}
	ok, err := hasher.Compare(clearPassword, c.Salt, c.PasswordHash)
	return err == nil && ok
}

// Role is an authorization label.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`
	Name          string    `bun:"name,notnull,unique" json:"name"`
	Description   *string   `bun:"description" json:"description,omitempty"`
}

// Membership links a credential to a role.
type Membership struct {
	bun.BaseModel `bun:"table:memberships,alias:mbr"`
	ID            uuid.UUID   `bun:"id,pk,type:varchar(36)" json:"id"`
	CredentialID  uuid.UUID   `bun:"credential_id,notnull,type:varchar(36),unique:credential_role" json:"credential_id"`
	RoleID        uuid.UUID   `bun:"role_id,notnull,type:varchar(36),unique:credential_role" json:"role_id"`
	Credential    *Credential `bun:"rel:belongs-to,join:credential_id=id" json:"-"`
	Role          *Role       `bun:"rel:belongs-to,join:role_id=id" json:"-"`
}

// NewSalt returns a random 128 bit salt, hex encoded.
func NewSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", internalError(err, "failed to generate salt")
	}
	return hex.EncodeToString(b), nil
}

// Baseline roles provisioned by Initialise.
const (
	RoleGrant    = "grant"
	RoleReadAny  = "read.any"
	RoleWriteAny = "write.any"

	// AdminUsername is the seeded administrative credential.
	AdminUsername = "admin"
)

// BaselineRoles returns the administrative role set seeded on initialise.
func BaselineRoles() []string {
	return []string{RoleGrant, RoleReadAny, RoleWriteAny}
}
