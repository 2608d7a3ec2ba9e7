package repository

import (
	"context"
	"errors"
	"log"

	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-session-auth"
)

// Manager exposes the stores sharing one database handle.
type Manager interface {
	Validate() error
	MustValidate()
	Credentials() *Credentials
	Authorization() *Authorization
	Initialise(ctx context.Context) error
	Close() error
}

type mngr struct {
	db            *bun.DB
	credentials   *Credentials
	authorization *Authorization
}

// NewManager builds both stores over db.
func NewManager(db *bun.DB, hasher auth.PasswordHasher, opts ...CredentialsOption) Manager {
	return &mngr{
		db:            db,
		credentials:   NewCredentials(db, hasher, opts...),
		authorization: NewAuthorization(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	if m.authorization == nil {
		return errors.New("repository authorization should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// Initialise provisions the credentials first so the admin seed can be
// granted the baseline roles.
func (m mngr) Initialise(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := m.credentials.Initialise(ctx); err != nil {
		return err
	}
	return m.authorization.Initialise(ctx)
}

func (m mngr) Credentials() *Credentials {
	return m.credentials
}

func (m mngr) Authorization() *Authorization {
	return m.authorization
}

func (m mngr) Close() error {
	return m.db.Close()
}
