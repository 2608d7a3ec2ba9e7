package auth_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
)

type httpFixture struct {
	*fixture
	app    *fiber.App
	auther *auth.RouteAuthenticator
}

func newHTTPFixture(t *testing.T, lease, session time.Duration) *httpFixture {
	t.Helper()
	f := newFixture(t, lease, session)

	cfg := auth.Config{
		CookieName:   "session_token",
		CookiePath:   "/",
		CookieMaxAge: int(session.Seconds()),
	}

	auther := auth.NewHTTPAuthenticator(f.sessions, cfg).
		WithClock(f.clock.Now).
		WithLogger(auth.NopLogger())

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{Views: auth.NewViewEngine()})
	})
	r := srv.Router()

	auth.RegisterAuthRoutes(r,
		auth.WithAuther(auther),
		auth.WithControllerLogger(auth.NopLogger()),
	)

	r.Get("/reports", func(c router.Context) error {
		claims, ok := auth.GetClaims(c.Context())
		if !ok {
			return c.Status(http.StatusInternalServerError).SendString("")
		}
		return c.SendString(claims.Subject())
	}, auther.ProtectedRoute(nil, "read"))
	r.Get("/admin", func(c router.Context) error {
		return c.SendString("admin")
	}, auther.ProtectedRoute(nil, "write"))

	app := srv.WrappedRouter()
	return &httpFixture{fixture: f, app: app, auther: auther}
}

func (h *httpFixture) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	res, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return res
}

func (h *httpFixture) login(t *testing.T) string {
	t.Helper()
	res := h.do(t, jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"s3cret"}`))
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out auth.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	return req
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	return req
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == "session_token" {
			return c
		}
	}
	return nil
}

func decodeError(t *testing.T, res *http.Response) auth.ErrorBody {
	t.Helper()
	var out auth.ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out.Error
}

func TestLoginPost_JSON(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	res := h.do(t, jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"s3cret"}`))
	require.Equal(t, http.StatusOK, res.StatusCode)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	var out auth.LoginResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, cookie.Value, out.Token)
	assert.Equal(t, "alice", out.Username)
	assert.Equal(t, []string{"read"}, out.Roles)
	assert.Equal(t, t0, out.IssuedAt.UTC())
	assert.Equal(t, t0.Add(time.Minute), out.ExpiresAt.UTC())
}

func TestLoginPost_FormWithRedirect(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	target := "/auth/login?redirect=" + url.QueryEscape("https://app.example.com/home")
	res := h.do(t, formRequest(target, url.Values{"username": {"alice"}, "password": {"s3cret"}}))

	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "https://app.example.com/home", res.Header.Get(fiber.HeaderLocation))
	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Equal(t, auth.TokenValid, h.sessions.Evaluate(cookie.Value))
}

func TestLoginPost_RedirectWithoutScheme(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	target := "/auth/login?redirect=" + url.QueryEscape("/home")
	res := h.do(t, formRequest(target, url.Values{"username": {"alice"}, "password": {"s3cret"}}))

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, auth.TextCodeBadRequest, decodeError(t, res).TextCode)
	assert.Nil(t, sessionCookie(res))
}

func TestLoginPost_FailureBackToReferer(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	target := "/auth/login?redirect=" + url.QueryEscape("https://app.example.com/home")
	req := formRequest(target, url.Values{"username": {"alice"}, "password": {"wrong"}})
	req.Header.Set(fiber.HeaderReferer, "https://app.example.com/login")

	res := h.do(t, req)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "https://app.example.com/login", res.Header.Get(fiber.HeaderLocation))
	assert.Nil(t, sessionCookie(res))
}

func TestLoginPost_FailuresAreUniform(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	wrongPassword := h.do(t, jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`))
	unknownUser := h.do(t, jsonRequest(http.MethodPost, "/auth/login", `{"username":"bob","password":"nope"}`))

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.StatusCode)

	a, err := io.ReadAll(wrongPassword.Body)
	require.NoError(t, err)
	b, err := io.ReadAll(unknownUser.Body)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Contains(t, string(a), auth.TextCodeUnauthorized)
}

func TestLoginPost_DisabledUserIsForbidden(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	h.disable(t, "alice")

	res := h.do(t, jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"s3cret"}`))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, auth.TextCodeForbidden, decodeError(t, res).TextCode)
}

func TestLoginPost_MissingPassword(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	res := h.do(t, jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice"}`))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestLoginShow_KeepsQueryInAction(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	res := h.do(t, httptest.NewRequest(http.MethodGet, "/auth/login?next=home", nil))
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `action="/auth/login?next=home"`)
}

func TestRenewToken(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	h.clock.Set(t0.Add(90 * time.Second))
	res := h.do(t, withSession(httptest.NewRequest(http.MethodPost, "/auth/renew_token", nil), token))
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.NotEqual(t, token, cookie.Value)
	assert.Equal(t, auth.TokenValid, h.sessions.Evaluate(cookie.Value))

	h.clock.Set(t0.Add(130 * time.Second))
	res = h.do(t, withSession(httptest.NewRequest(http.MethodPost, "/auth/renew_token", nil), cookie.Value))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRenewToken_FromCookie(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/renew_token", nil)
	req.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	res := h.do(t, req)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res = h.do(t, httptest.NewRequest(http.MethodPost, "/auth/renew_token", nil))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestWhoAmI(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	res := h.do(t, withSession(httptest.NewRequest(http.MethodGet, "/auth/whoami", nil), token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Nil(t, sessionCookie(res))

	var out auth.WhoAmIResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.Equal(t, "alice", out.Username)
	assert.False(t, out.Renewed)
}

func TestWhoAmI_RenewsAndSetsCookie(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	h.clock.Set(t0.Add(90 * time.Second))
	res := h.do(t, withSession(httptest.NewRequest(http.MethodGet, "/auth/whoami", nil), token))
	require.Equal(t, http.StatusOK, res.StatusCode)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)

	var out auth.WhoAmIResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	assert.True(t, out.Renewed)
	assert.Equal(t, t0, out.IssuedAt.UTC())
	assert.Equal(t, t0.Add(150*time.Second), out.ExpiresAt.UTC())
}

func TestWhoAmI_Unauthenticated(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)

	res := h.do(t, httptest.NewRequest(http.MethodGet, "/auth/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, auth.TextCodeUnauthorized, decodeError(t, res).TextCode)
}

func TestLogout_ClearsCookie(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	res := h.do(t, withSession(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), token))
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)

	target := "/auth/logout?redirect=" + url.QueryEscape("https://app.example.com/")
	res = h.do(t, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "https://app.example.com/", res.Header.Get(fiber.HeaderLocation))
}

func TestProtectedRoute(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	res := h.do(t, withSession(httptest.NewRequest(http.MethodGet, "/reports", nil), token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(body))

	res = h.do(t, withSession(httptest.NewRequest(http.MethodGet, "/admin", nil), token))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, auth.TextCodeForbidden, decodeError(t, res).TextCode)

	res = h.do(t, httptest.NewRequest(http.MethodGet, "/reports", nil))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestProtectedRoute_RenewsExpiredLease(t *testing.T) {
	h := newHTTPFixture(t, time.Minute, 2*time.Minute)
	token := h.login(t)

	h.clock.Set(t0.Add(90 * time.Second))
	res := h.do(t, withSession(httptest.NewRequest(http.MethodGet, "/reports", nil), token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotNil(t, sessionCookie(res))

	h.clock.Set(t0.Add(10 * time.Minute))
	res = h.do(t, withSession(httptest.NewRequest(http.MethodGet, "/reports", nil), token))
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestRegisterAuthRoutes_RequiresAuther(t *testing.T) {
	assert.Panics(t, func() {
		srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
			return fiber.New()
		})
		auth.RegisterAuthRoutes(srv.Router())
	})
}

func TestValidateRedirect(t *testing.T) {
	tests := []struct {
		redirect string
		wantErr  bool
	}{
		{redirect: "https://example.com/a", wantErr: false},
		{redirect: "http://localhost:3000", wantErr: false},
		{redirect: "/relative/path", wantErr: true},
		{redirect: "example.com", wantErr: true},
		{redirect: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.redirect, func(t *testing.T) {
			err := auth.ValidateRedirect(tt.redirect)
			if tt.wantErr {
				assert.ErrorIs(t, err, auth.ErrInvalidRedirect)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
