package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-session-auth"
)

// NewCredentialRecords returns the generic repository for credentials,
// keyed by username.
func NewCredentialRecords(db *bun.DB) repository.Repository[*auth.Credential] {
	return repository.NewRepository[*auth.Credential](db, repository.ModelHandlers[*auth.Credential]{
		NewRecord: func() *auth.Credential {
			return &auth.Credential{}
		},
		GetID: func(record *auth.Credential) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *auth.Credential, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})
}

// Credentials is a bun backed CredentialStore.
type Credentials struct {
	db           *bun.DB
	records      repository.Repository[*auth.Credential]
	hasher       auth.PasswordHasher
	seedPassword string
	now          func() time.Time
}

var _ auth.CredentialStore = (*Credentials)(nil)

// CredentialsOption configures Credentials
type CredentialsOption func(*Credentials)

// WithSeedAdminPassword makes Initialise create the admin credential.
func WithSeedAdminPassword(password string) CredentialsOption {
	return func(c *Credentials) {
		c.seedPassword = password
	}
}

// WithClock sets the clock used for timestamps
func WithClock(now func() time.Time) CredentialsOption {
	return func(c *Credentials) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCredentials(db *bun.DB, hasher auth.PasswordHasher, opts ...CredentialsOption) *Credentials {
	c := &Credentials{
		db:      db,
		records: NewCredentialRecords(db),
		hasher:  hasher,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Create inserts a new credential. The duplicate check and the insert run
// in one transaction.
func (c *Credentials) Create(ctx context.Context, username, clearPassword string, state auth.CredentialState) (*auth.Credential, error) {
	cred, err := auth.NewCredential(c.hasher, username, clearPassword, state)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	var created *auth.Credential
	err = c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*auth.Credential)(nil)).
			Where("username = ?", username).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return auth.ErrCredentialExists
		}

		created, err = c.records.CreateTx(ctx, tx, cred)
		return err
	})
	if err != nil {
		// a concurrent create can pass the exists check and lose on the
		// unique index
		if isUniqueViolation(err) {
			return nil, auth.ErrCredentialExists
		}
		return nil, storeError(err, "failed to create credential")
	}
	return created, nil
}

func (c *Credentials) Read(ctx context.Context, username string) (*auth.Credential, error) {
	cred, err := c.records.GetByIdentifier(ctx, username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, auth.ErrCredentialNotFound
		}
		return nil, storeError(err, "failed to read credential")
	}
	return cred, nil
}

// Update writes the password hash and state of the credential with the
// same ID. Username and salt are immutable.
func (c *Credentials) Update(ctx context.Context, credential *auth.Credential) (bool, error) {
	if credential == nil {
		return false, nil
	}
	credential.UpdatedAt = c.now().UTC()

	res, err := c.db.NewUpdate().
		Model(credential).
		Column("password_hash", "state", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return false, storeError(err, "failed to update credential")
	}
	return affected(res), nil
}

// Delete removes the credential and its memberships in one transaction.
func (c *Credentials) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var deleted bool
	err := c.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*auth.Membership)(nil)).
			Where("credential_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*auth.Credential)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}
		deleted = affected(res)
		return nil
	})
	if err != nil {
		return false, storeError(err, "failed to delete credential")
	}
	return deleted, nil
}

// Initialise creates the credentials table and seeds the admin
// credential when a seed password is configured.
func (c *Credentials) Initialise(ctx context.Context) error {
	if err := createTables(ctx, c.db, (*auth.Credential)(nil)); err != nil {
		return err
	}

	if c.seedPassword == "" {
		return nil
	}

	_, err := c.Create(ctx, auth.AdminUsername, c.seedPassword, auth.CredentialActive)
	if err != nil && !auth.HasTextCode(err, auth.TextCodeCredentialExists) {
		return err
	}
	return nil
}

// Usernames returns every username, sorted.
func (c *Credentials) Usernames(ctx context.Context) ([]string, error) {
	var names []string
	err := c.db.NewSelect().
		Model((*auth.Credential)(nil)).
		Column("username").
		Order("username ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, storeError(err, "failed to list credentials")
	}
	return names, nil
}
