package repository_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/repository"
)

func setupManager(t *testing.T, opts ...repository.CredentialsOption) repository.Manager {
	t.Helper()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.Open(ctx, repository.DriverSQLite, dsn)
	require.NoError(t, err)

	m := repository.NewManager(db, auth.SHA512Hasher{}, opts...)
	m.MustValidate()
	require.NoError(t, m.Initialise(ctx))

	t.Cleanup(func() {
		_ = m.Close()
	})
	return m
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := repository.Open(context.Background(), "oracle", "dsn")
	require.Error(t, err)
	assert.Equal(t, auth.KindBadRequest, auth.KindOf(err))
}

func TestCredentials_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)

	created, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	read, err := m.Credentials().Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, read.ID)
	assert.Equal(t, created.Salt, read.Salt)
	assert.Equal(t, auth.CredentialActive, read.State)
	assert.True(t, read.Verify(auth.SHA512Hasher{}, "s3cret"))
	assert.False(t, read.Verify(auth.SHA512Hasher{}, "wrong"))
}

func TestCredentials_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)

	_, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)

	_, err = m.Credentials().Create(ctx, "alice", "other", auth.CredentialActive)
	require.Error(t, err)
	assert.Equal(t, auth.KindConflict, auth.KindOf(err))

	names, err := m.Credentials().Usernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}

func TestCredentials_ReadUnknown(t *testing.T) {
	m := setupManager(t)

	_, err := m.Credentials().Read(context.Background(), "nobody")
	require.Error(t, err)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func TestCredentials_UpdateStateAndPassword(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)

	cred, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)

	cred.State = auth.CredentialDisabled
	require.NoError(t, cred.SetPassword(auth.SHA512Hasher{}, "n3w"))

	ok, err := m.Credentials().Update(ctx, cred)
	require.NoError(t, err)
	assert.True(t, ok)

	read, err := m.Credentials().Read(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, auth.CredentialDisabled, read.State)
	assert.True(t, read.Verify(auth.SHA512Hasher{}, "n3w"))

	ghost := &auth.Credential{ID: uuid.New(), Username: "ghost", State: auth.CredentialActive}
	ok, err = m.Credentials().Update(ctx, ghost)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitialise_SeedsAdminWithBaselineRoles(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t, repository.WithSeedAdminPassword("trustno1"))

	require.NoError(t, m.Initialise(ctx))

	admin, err := m.Credentials().Read(ctx, auth.AdminUsername)
	require.NoError(t, err)
	assert.True(t, admin.Verify(auth.SHA512Hasher{}, "trustno1"))

	roles, err := m.Authorization().Roles(ctx, auth.AdminUsername)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleGrant, auth.RoleReadAny, auth.RoleWriteAny}, roles)
}

func TestAuthorization_GrantRevoke(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)
	authz := m.Authorization()

	_, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)

	added, err := authz.AddRole(ctx, "read", "read access")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = authz.AddRole(ctx, "read", "read access")
	require.NoError(t, err)
	assert.False(t, added)

	exists, err := authz.RoleExists(ctx, "read")
	require.NoError(t, err)
	assert.True(t, exists)

	granted, err := authz.Grant(ctx, "alice", "read")
	require.NoError(t, err)
	assert.True(t, granted)

	granted, err = authz.Grant(ctx, "alice", "read")
	require.NoError(t, err)
	assert.False(t, granted)

	roles, err := authz.Roles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, roles)

	has, err := authz.HasRole(ctx, "alice", "read")
	require.NoError(t, err)
	assert.True(t, has)

	users, err := authz.Users(ctx, "read")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	revoked, err := authz.Revoke(ctx, "alice", "read")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = authz.Revoke(ctx, "alice", "read")
	require.NoError(t, err)
	assert.False(t, revoked)

	roles, err = authz.Roles(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles)

	has, err = authz.HasRole(ctx, "alice", "read")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAuthorization_GrantUnknown(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)

	_, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)

	_, err = m.Authorization().Grant(ctx, "alice", "missing")
	require.Error(t, err)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))

	_, err = m.Authorization().Grant(ctx, "bob", auth.RoleReadAny)
	require.Error(t, err)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func TestAuthorization_UpdateRollsBackOnUnknownRole(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)
	authz := m.Authorization()

	_, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)

	ok, err := authz.Update(ctx, "alice", []string{auth.RoleReadAny, auth.RoleWriteAny, auth.RoleReadAny})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = authz.Update(ctx, "alice", []string{auth.RoleGrant, "missing"})
	require.Error(t, err)

	roles, err := authz.Roles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleReadAny, auth.RoleWriteAny}, roles)

	ok, err = authz.Update(ctx, "alice", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	roles, err = authz.Roles(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestDeleteCascadesMemberships(t *testing.T) {
	ctx := context.Background()
	m := setupManager(t)
	authz := m.Authorization()

	cred, err := m.Credentials().Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)
	_, err = authz.Update(ctx, "alice", []string{auth.RoleReadAny, auth.RoleWriteAny})
	require.NoError(t, err)

	deleted, err := authz.DeleteRole(ctx, auth.RoleWriteAny)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = authz.DeleteRole(ctx, auth.RoleWriteAny)
	require.NoError(t, err)
	assert.False(t, deleted)

	roles, err := authz.Roles(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleReadAny}, roles)

	deleted, err = m.Credentials().Delete(ctx, cred.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	users, err := authz.Users(ctx, auth.RoleReadAny)
	require.NoError(t, err)
	assert.Empty(t, users)

	deleted, err = m.Credentials().Delete(ctx, cred.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRoleID_IsStable(t *testing.T) {
	assert.Equal(t, repository.RoleID("read.any"), repository.RoleID("read.any"))
	assert.NotEqual(t, repository.RoleID("read.any"), repository.RoleID("write.any"))
}
