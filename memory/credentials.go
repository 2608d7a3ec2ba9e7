package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	auth "github.com/goliatone/go-session-auth"
)

// Credentials is an in process CredentialStore.
type Credentials struct {
	mu           sync.RWMutex
	byName       map[string]*auth.Credential
	hasher       auth.PasswordHasher
	seedPassword string
	now          func() time.Time
	onDelete     []func(username string)
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

// NewCredentials returns an empty store.
func NewCredentials(hasher auth.PasswordHasher, opts ...CredentialsOption) *Credentials {
	c := &Credentials{
		byName: map[string]*auth.Credential{},
		hasher: hasher,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Credentials) Create(ctx context.Context, username, clearPassword string, state auth.CredentialState) (*auth.Credential, error) {
	cred, err := auth.NewCredential(c.hasher, username, clearPassword, state)
	if err != nil {
		return nil, err
	}
	now := c.now()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[username]; ok {
		return nil, auth.ErrCredentialExists
	}
	c.byName[username] = cred

	return clone(cred), nil
}

func (c *Credentials) Read(ctx context.Context, username string) (*auth.Credential, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cred, ok := c.byName[username]
	if !ok {
		return nil, auth.ErrCredentialNotFound
	}
	return clone(cred), nil
}

// Update replaces the stored record with the same ID. The username is the
// lookup key and cannot change.
func (c *Credentials) Update(ctx context.Context, credential *auth.Credential) (bool, error) {
	if credential == nil {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.byName[credential.Username]
	if !ok || current.ID != credential.ID {
		return false, nil
	}

	next := clone(credential)
	next.Salt = current.Salt
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = c.now()
	c.byName[credential.Username] = next
	return true, nil
}

// Delete removes the credential and then its memberships in every
// Authorization built on this store.
func (c *Credentials) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	c.mu.Lock()
	removed := ""
	for name, cred := range c.byName {
		if cred.ID == id {
			delete(c.byName, name)
			removed = name
			break
		}
	}
	hooks := c.onDelete
	c.mu.Unlock()

	if removed == "" {
		return false, nil
	}
	for _, hook := range hooks {
		hook(removed)
	}
	return true, nil
}

// Initialise seeds the admin credential when a seed password is set.
func (c *Credentials) Initialise(ctx context.Context) error {
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
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.byName))
	for name := range c.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Credentials) subscribe(hook func(username string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDelete = append(c.onDelete, hook)
}

// exists is used by Authorization to check membership endpoints.
func (c *Credentials) exists(username string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byName[username]
	return ok
}

func clone(c *auth.Credential) *auth.Credential {
	out := *c
	return &out
}
