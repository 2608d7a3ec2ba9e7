package memory

import (
	"context"
	"sort"
	"sync"

	auth "github.com/goliatone/go-session-auth"
)

// Authorization is an in process AuthorizationStore. Every mutation holds
// the write lock for its whole duration, so readers never observe a
// partially applied Update.
type Authorization struct {
	mu      sync.RWMutex
	roles   map[string]*string
	members map[string]map[string]struct{}
	users   *Credentials
}

var _ auth.AuthorizationStore = (*Authorization)(nil)

// NewAuthorization returns an empty store. When users is not nil grants
// require an existing credential and deleting a credential drops its
// memberships.
func NewAuthorization(users *Credentials) *Authorization {
	a := &Authorization{
		roles:   map[string]*string{},
		members: map[string]map[string]struct{}{},
		users:   users,
	}
	if users != nil {
		users.subscribe(a.dropUser)
	}
	return a
}

func (a *Authorization) AddRole(ctx context.Context, name, description string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.roles[name]; ok {
		return false, nil
	}

	var desc *string
	if description != "" {
		desc = &description
	}
	a.roles[name] = desc
	return true, nil
}

// DeleteRole removes the role and every membership that references it.
func (a *Authorization) DeleteRole(ctx context.Context, name string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.roles[name]; !ok {
		return false, nil
	}
	delete(a.roles, name)
	for _, set := range a.members {
		delete(set, name)
	}
	return true, nil
}

func (a *Authorization) RoleExists(ctx context.Context, name string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.roles[name]
	return ok, nil
}

// Description returns the role description, if any.
func (a *Authorization) Description(ctx context.Context, name string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	desc, ok := a.roles[name]
	if !ok {
		return "", auth.ErrRoleNotFound
	}
	if desc == nil {
		return "", nil
	}
	return *desc, nil
}

// Grant adds the membership. An existing pair returns false with no error.
func (a *Authorization) Grant(ctx context.Context, user, role string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkLocked(user, role); err != nil {
		return false, err
	}

	set, ok := a.members[user]
	if !ok {
		set = map[string]struct{}{}
		a.members[user] = set
	}
	if _, ok := set[role]; ok {
		return false, nil
	}
	set[role] = struct{}{}
	return true, nil
}

// Revoke removes the membership. A missing pair returns false with no error.
func (a *Authorization) Revoke(ctx context.Context, user, role string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	set, ok := a.members[user]
	if !ok {
		return false, nil
	}
	if _, ok := set[role]; !ok {
		return false, nil
	}
	delete(set, role)
	if len(set) == 0 {
		delete(a.members, user)
	}
	return true, nil
}

func (a *Authorization) HasRole(ctx context.Context, user, role string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.members[user][role]
	return ok, nil
}

func (a *Authorization) Roles(ctx context.Context, user string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.members[user]))
	for role := range a.members[user] {
		out = append(out, role)
	}
	sort.Strings(out)
	return out, nil
}

func (a *Authorization) Users(ctx context.Context, role string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := []string{}
	for user, set := range a.members {
		if _, ok := set[role]; ok {
			out = append(out, user)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RoleNames returns every role name, sorted.
func (a *Authorization) RoleNames(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.roles))
	for name := range a.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Update replaces the memberships of user with roles. Unknown roles abort
// the update and leave the previous set untouched.
func (a *Authorization) Update(ctx context.Context, user string, roles []string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if err := a.checkLocked(user, role); err != nil {
			return false, err
		}
		next[role] = struct{}{}
	}

	if len(next) == 0 {
		delete(a.members, user)
	} else {
		a.members[user] = next
	}
	return true, nil
}

// Initialise provisions the baseline roles and grants them to the admin
// credential when it exists.
func (a *Authorization) Initialise(ctx context.Context) error {
	for _, role := range auth.BaselineRoles() {
		if _, err := a.AddRole(ctx, role, ""); err != nil {
			return err
		}
	}

	if a.users == nil || !a.users.exists(auth.AdminUsername) {
		return nil
	}

	for _, role := range auth.BaselineRoles() {
		if _, err := a.Grant(ctx, auth.AdminUsername, role); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authorization) checkLocked(user, role string) error {
	if _, ok := a.roles[role]; !ok {
		return auth.ErrRoleNotFound
	}
	if a.users != nil && !a.users.exists(user) {
		return auth.ErrCredentialNotFound
	}
	return nil
}

func (a *Authorization) dropUser(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.members, username)
}
