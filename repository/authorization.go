package repository

import (
	"context"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-session-auth"
)

// Authorization is a bun backed AuthorizationStore. Membership writes run
// in a transaction so concurrent readers see either the old or the new
// set.
type Authorization struct {
	db *bun.DB
}

var _ auth.AuthorizationStore = (*Authorization)(nil)

func NewAuthorization(db *bun.DB) *Authorization {
	return &Authorization{db: db}
}

// RoleID derives a stable role ID from its name.
func RoleID(name string) uuid.UUID {
	if id, err := hashid.NewUUID(name); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name))
}

func (a *Authorization) AddRole(ctx context.Context, name, description string) (bool, error) {
	role := &auth.Role{
		ID:   RoleID(name),
		Name: name,
	}
	if description != "" {
		role.Description = &description
	}

	res, err := a.db.NewInsert().
		Model(role).
		Ignore().
		Exec(ctx)
	if err != nil {
		return false, storeError(err, "failed to add role")
	}
	return affected(res), nil
}

// DeleteRole removes the role and its memberships in one transaction.
func (a *Authorization) DeleteRole(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		roleID, err := lookupRoleID(ctx, tx, name)
		if err != nil {
			if auth.HasTextCode(err, auth.TextCodeRoleNotFound) {
				return nil
			}
			return err
		}

		if _, err := tx.NewDelete().
			Model((*auth.Membership)(nil)).
			Where("role_id = ?", roleID).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*auth.Role)(nil)).
			Where("id = ?", roleID).
			Exec(ctx)
		if err != nil {
			return err
		}
		deleted = affected(res)
		return nil
	})
	if err != nil {
		return false, storeError(err, "failed to delete role")
	}
	return deleted, nil
}

func (a *Authorization) RoleExists(ctx context.Context, name string) (bool, error) {
	exists, err := a.db.NewSelect().
		Model((*auth.Role)(nil)).
		Where("name = ?", name).
		Exists(ctx)
	if err != nil {
		return false, storeError(err, "failed to check role")
	}
	return exists, nil
}

// Grant adds the membership. An existing pair returns false with no error.
func (a *Authorization) Grant(ctx context.Context, user, role string) (bool, error) {
	var granted bool
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		credentialID, err := lookupCredentialID(ctx, tx, user)
		if err != nil {
			return err
		}
		roleID, err := lookupRoleID(ctx, tx, role)
		if err != nil {
			return err
		}

		res, err := tx.NewInsert().
			Model(newMembership(credentialID, roleID)).
			Ignore().
			Exec(ctx)
		if err != nil {
			return err
		}
		granted = affected(res)
		return nil
	})
	if err != nil {
		return false, storeError(err, "failed to grant role")
	}
	return granted, nil
}

// Revoke removes the membership. A missing pair returns false with no error.
func (a *Authorization) Revoke(ctx context.Context, user, role string) (bool, error) {
	res, err := a.db.NewDelete().
		Model((*auth.Membership)(nil)).
		Where("credential_id IN (?)", a.credentialIDQuery(user)).
		Where("role_id IN (?)", a.roleIDQuery(role)).
		Exec(ctx)
	if err != nil {
		return false, storeError(err, "failed to revoke role")
	}
	return affected(res), nil
}

func (a *Authorization) HasRole(ctx context.Context, user, role string) (bool, error) {
	exists, err := a.db.NewSelect().
		Model((*auth.Membership)(nil)).
		Where("credential_id IN (?)", a.credentialIDQuery(user)).
		Where("role_id IN (?)", a.roleIDQuery(role)).
		Exists(ctx)
	if err != nil {
		return false, storeError(err, "failed to check membership")
	}
	return exists, nil
}

// Roles returns the sorted role names of user. Unknown users have none.
func (a *Authorization) Roles(ctx context.Context, user string) ([]string, error) {
	names := []string{}
	err := a.db.NewSelect().
		Model((*auth.Role)(nil)).
		ColumnExpr("rol.name").
		Join("JOIN memberships AS mbr ON mbr.role_id = rol.id").
		Join("JOIN credentials AS crd ON crd.id = mbr.credential_id").
		Where("crd.username = ?", user).
		Order("rol.name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, storeError(err, "failed to read roles")
	}
	return names, nil
}

// Users returns the sorted usernames holding role.
func (a *Authorization) Users(ctx context.Context, role string) ([]string, error) {
	names := []string{}
	err := a.db.NewSelect().
		Model((*auth.Credential)(nil)).
		ColumnExpr("crd.username").
		Join("JOIN memberships AS mbr ON mbr.credential_id = crd.id").
		Join("JOIN roles AS rol ON rol.id = mbr.role_id").
		Where("rol.name = ?", role).
		Order("crd.username ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, storeError(err, "failed to read role members")
	}
	return names, nil
}

// RoleNames returns every role name, sorted.
func (a *Authorization) RoleNames(ctx context.Context) ([]string, error) {
	names := []string{}
	err := a.db.NewSelect().
		Model((*auth.Role)(nil)).
		Column("name").
		Order("name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, storeError(err, "failed to list roles")
	}
	return names, nil
}

// Update replaces the memberships of user inside one transaction. An
// unknown role rolls the whole update back.
func (a *Authorization) Update(ctx context.Context, user string, roles []string) (bool, error) {
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		credentialID, err := lookupCredentialID(ctx, tx, user)
		if err != nil {
			return err
		}

		seen := map[string]bool{}
		memberships := make([]*auth.Membership, 0, len(roles))
		for _, role := range roles {
			if seen[role] {
				continue
			}
			seen[role] = true

			roleID, err := lookupRoleID(ctx, tx, role)
			if err != nil {
				return err
			}
			memberships = append(memberships, newMembership(credentialID, roleID))
		}

		if _, err := tx.NewDelete().
			Model((*auth.Membership)(nil)).
			Where("credential_id = ?", credentialID).
			Exec(ctx); err != nil {
			return err
		}

		if len(memberships) == 0 {
			return nil
		}

		_, err = tx.NewInsert().
			Model(&memberships).
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, storeError(err, "failed to update roles")
	}
	return true, nil
}

// Initialise creates the schema, the baseline roles and grants them to the
// admin credential when it exists.
func (a *Authorization) Initialise(ctx context.Context) error {
	if err := createTables(ctx, a.db,
		(*auth.Credential)(nil),
		(*auth.Role)(nil),
		(*auth.Membership)(nil),
	); err != nil {
		return err
	}

	for _, role := range auth.BaselineRoles() {
		if _, err := a.AddRole(ctx, role, ""); err != nil {
			return err
		}
	}

	if _, err := lookupCredentialID(ctx, a.db, auth.AdminUsername); err != nil {
		if auth.HasTextCode(err, auth.TextCodeCredentialNotFound) {
			return nil
		}
		return storeError(err, "failed to read admin credential")
	}

	for _, role := range auth.BaselineRoles() {
		if _, err := a.Grant(ctx, auth.AdminUsername, role); err != nil {
			return err
		}
	}
	return nil
}

func (a *Authorization) credentialIDQuery(user string) *bun.SelectQuery {
	return a.db.NewSelect().
		Model((*auth.Credential)(nil)).
		Column("id").
		Where("username = ?", user)
}

func (a *Authorization) roleIDQuery(role string) *bun.SelectQuery {
	return a.db.NewSelect().
		Model((*auth.Role)(nil)).
		Column("id").
		Where("name = ?", role)
}

func newMembership(credentialID, roleID uuid.UUID) *auth.Membership {
	return &auth.Membership{
		ID:           uuid.New(),
		CredentialID: credentialID,
		RoleID:       roleID,
	}
}

func lookupCredentialID(ctx context.Context, db bun.IDB, username string) (uuid.UUID, error) {
	var ids []string
	err := db.NewSelect().
		Model((*auth.Credential)(nil)).
		Column("id").
		Where("username = ?", username).
		Limit(1).
		Scan(ctx, &ids)
	if err != nil {
		return uuid.Nil, err
	}
	if len(ids) == 0 {
		return uuid.Nil, auth.ErrCredentialNotFound
	}
	return uuid.Parse(ids[0])
}

func lookupRoleID(ctx context.Context, db bun.IDB, name string) (uuid.UUID, error) {
	var ids []string
	err := db.NewSelect().
		Model((*auth.Role)(nil)).
		Column("id").
		Where("name = ?", name).
		Limit(1).
		Scan(ctx, &ids)
	if err != nil {
		return uuid.Nil, err
	}
	if len(ids) == 0 {
		return uuid.Nil, auth.ErrRoleNotFound
	}
	return uuid.Parse(ids[0])
}
