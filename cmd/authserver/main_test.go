package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
)

func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv(auth.EnvPrefix+"DB_DRIVER", "sqlite")
	t.Setenv(auth.EnvPrefix+"DB_DSN", "file:"+filepath.Join(t.TempDir(), "auth.db"))
	t.Setenv(auth.EnvPrefix+"PASSWORD_SCHEME", auth.SchemeSHA512)
	t.Setenv(auth.EnvPrefix+"SEED_ADMIN_PASSWORD", "admin-pass")
	t.Setenv(auth.EnvPrefix+"SIGNING_KEY", "0123456789abcdef0123456789abcdef")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, out)
	return out
}

func lines(s string) []string {
	return strings.Fields(s)
}

func TestInitSeedsRolesAndAdmin(t *testing.T) {
	setupEnv(t)

	assert.Contains(t, mustRun(t, "init"), "initialised")
	assert.Equal(t, []string{"grant", "read.any", "write.any"}, lines(mustRun(t, "role", "list")))
	assert.Equal(t, []string{"admin"}, lines(mustRun(t, "user", "list")))
	assert.Equal(t, []string{"grant", "read.any", "write.any"}, lines(mustRun(t, "role", "list", "admin")))

	// init is idempotent
	mustRun(t, "init")
	assert.Equal(t, []string{"admin"}, lines(mustRun(t, "user", "list")))
}

func TestUserAndRoleCommands(t *testing.T) {
	setupEnv(t)
	mustRun(t, "init")

	mustRun(t, "role", "add", "reports", "--description", "report readers")
	mustRun(t, "user", "create", "alice", "--password", "s3cret", "--role", "read.any")
	assert.Equal(t, []string{"read.any"}, lines(mustRun(t, "role", "list", "alice")))

	assert.Contains(t, mustRun(t, "role", "grant", "alice", "reports"), "granted")
	assert.Contains(t, mustRun(t, "role", "grant", "alice", "reports"), "already granted")
	assert.Equal(t, []string{"read.any", "reports"}, lines(mustRun(t, "role", "list", "alice")))

	mustRun(t, "role", "revoke", "alice", "read.any")
	assert.Equal(t, []string{"reports"}, lines(mustRun(t, "role", "list", "alice")))

	mustRun(t, "role", "set", "alice", "write.any", "grant")
	assert.Equal(t, []string{"grant", "write.any"}, lines(mustRun(t, "role", "list", "alice")))

	_, err := run(t, "role", "set", "alice", "write.any", "missing")
	require.Error(t, err)
	assert.Equal(t, []string{"grant", "write.any"}, lines(mustRun(t, "role", "list", "alice")))

	mustRun(t, "role", "delete", "reports")
	_, err = run(t, "role", "delete", "reports")
	assert.Error(t, err)

	mustRun(t, "user", "delete", "alice")
	assert.Equal(t, []string{"admin"}, lines(mustRun(t, "user", "list")))
}

func TestUserCommandErrors(t *testing.T) {
	setupEnv(t)
	mustRun(t, "init")

	_, err := run(t, "user", "create", "alice")
	assert.Error(t, err, "password flag is required")

	mustRun(t, "user", "create", "alice", "--password", "s3cret")
	_, err = run(t, "user", "create", "alice", "--password", "again")
	require.Error(t, err)
	assert.Equal(t, auth.KindConflict, auth.KindOf(err))

	_, err = run(t, "role", "grant", "alice", "nope")
	require.Error(t, err)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))

	_, err = run(t, "user", "disable", "bob")
	require.Error(t, err)
	assert.Equal(t, auth.KindNotFound, auth.KindOf(err))
}

func newTestServer(t *testing.T) (*cli, *stores, *prometheus.Registry) {
	t.Helper()
	c := &cli{logLevel: "error"}
	require.NoError(t, c.setup())
	c.cfg.CookieSecure = false

	ctx := context.Background()
	s, err := c.openStores(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	require.NoError(t, initialise(ctx, s))

	return c, s, prometheus.NewRegistry()
}

func login(t *testing.T, app *fiber.App, username, password string) *http.Response {
	t.Helper()
	body := `{"username":"` + username + `","password":"` + password + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res, err := app.Test(req, -1)
	require.NoError(t, err)
	return res
}

func TestServe_LoginAndMetrics(t *testing.T) {
	setupEnv(t)
	c, s, reg := newTestServer(t)

	srv, err := c.newServer(s, reg)
	require.NoError(t, err)
	app := srv.WrappedRouter()

	res := login(t, app, "admin", "admin-pass")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = login(t, app, "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `session_auth_authentications_total{outcome="ok"} 1`)
	assert.Contains(t, string(b), `session_auth_authentications_total{outcome="unauthorized"} 1`)
}

func TestServe_DisabledUserIsForbidden(t *testing.T) {
	setupEnv(t)
	c, s, reg := newTestServer(t)
	ctx := context.Background()

	_, err := s.credentials.Create(ctx, "carol", "pa55", auth.CredentialDisabled)
	require.NoError(t, err)

	srv, err := c.newServer(s, reg)
	require.NoError(t, err)
	app := srv.WrappedRouter()

	res := login(t, app, "carol", "pa55")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestServe_RequiresSigningKey(t *testing.T) {
	setupEnv(t)
	t.Setenv(auth.EnvPrefix+"SIGNING_KEY", "")

	_, err := run(t, "serve")
	assert.Error(t, err)
}
