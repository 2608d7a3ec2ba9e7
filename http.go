package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-session-auth/middleware/jwtware"
)

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Domain string
	Path   string
	// MaxAge in seconds. It should cover the session duration so an expired
	// lease can still reach the renewal endpoint.
	MaxAge int
	Secure bool
}

// RouteAuthenticator binds the session manager to router requests: it
// finds the token, sets and clears the cookie and renders errors.
type RouteAuthenticator struct {
	sessions     *SessionManager
	cookie       CookieConfig
	tokenLookup  string
	authScheme   string
	contextKey   string
	now          func() time.Time
	Logger       Logger
	ErrorHandler router.ErrorHandler
}

// NewHTTPAuthenticator returns a RouteAuthenticator for sessions.
func NewHTTPAuthenticator(sessions *SessionManager, cfg Config) *RouteAuthenticator {
	a := &RouteAuthenticator{
		sessions:    sessions,
		cookie:      cfg.CookieConfig(),
		tokenLookup: cfg.TokenLookup,
		authScheme:  cfg.AuthScheme,
		contextKey:  "user",
		now:         time.Now,
		Logger:      defLogger(),
	}
	if a.tokenLookup == "" {
		a.tokenLookup = "header:" + router.HeaderAuthorization + ",cookie:" + a.cookie.Name
	}
	a.ErrorHandler = a.defaultErrHandler
	return a
}

// WithLogger sets the logger
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = normalizeLogger(logger)
	return a
}

// WithClock replaces the clock used for cookie expiry.
func (a *RouteAuthenticator) WithClock(now func() time.Time) *RouteAuthenticator {
	if now != nil {
		a.now = now
	}
	return a
}

// Sessions returns the session manager
func (a *RouteAuthenticator) Sessions() *SessionManager {
	return a.sessions
}

// ContextKey is the locals key the protected route stores claims under.
func (a *RouteAuthenticator) ContextKey() string {
	return a.contextKey
}

// ProtectedRoute returns middleware that resolves the session through
// WhoAmI, so an expired lease is renewed and the new cookie is set.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler router.ErrorHandler, requiredRole ...string) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.ErrorHandler
	}

	role := ""
	if len(requiredRole) > 0 {
		role = requiredRole[0]
	}

	return jwtware.New(jwtware.Config{
		ErrorHandler: func(c router.Context, err error) error {
			if errors.Is(err, jwtware.ErrForbiddenRole) {
				return errorHandler(c, ErrForbidden)
			}
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return errorHandler(c, ErrTokenMissing)
			}
			return errorHandler(c, err)
		},
		Resolver:     sessionResolver{sessions: a.sessions},
		ContextKey:   a.contextKey,
		TokenLookup:  a.tokenLookup,
		AuthScheme:   a.authScheme,
		RequiredRole: role,
		OnRenew:      a.setCookieToken,
		ContextEnricher: func(ctx context.Context, claims jwtware.SessionClaims) context.Context {
			if sc, ok := claims.(*SessionClaims); ok {
				return WithClaimsContext(ctx, sc)
			}
			return ctx
		},
	})
}

// Token returns the raw token carried by the request, or "".
func (a *RouteAuthenticator) Token(c router.Context) string {
	token, err := jwtware.ExtractRawTokenFromContext(c, jwtware.GetExtractors(a.tokenLookup, a.authScheme))
	if err != nil {
		return ""
	}
	return token
}

// Login authenticates and sets the session cookie.
func (a *RouteAuthenticator) Login(c router.Context, username, password string) (*IssuedToken, error) {
	issued, err := a.sessions.Authenticate(c.Context(), username, password)
	if err != nil {
		return nil, err
	}
	a.setCookieToken(c, issued.Token)
	return issued, nil
}

// Renew renews the request token and sets the new cookie.
func (a *RouteAuthenticator) Renew(c router.Context) (*IssuedToken, error) {
	token := a.Token(c)
	if token == "" {
		return nil, ErrTokenMissing
	}
	issued, err := a.sessions.Renew(c.Context(), token)
	if err != nil {
		return nil, err
	}
	a.setCookieToken(c, issued.Token)
	return issued, nil
}

// WhoAmI resolves the request session, setting the cookie when renewed.
func (a *RouteAuthenticator) WhoAmI(c router.Context) (*WhoAmIResult, error) {
	result, err := a.sessions.WhoAmI(c.Context(), a.Token(c))
	if err != nil {
		return nil, err
	}
	if result.Renewed() {
		a.setCookieToken(c, result.RenewedToken.Token)
	}
	return result, nil
}

// Logout clears the session cookie.
func (a *RouteAuthenticator) Logout(c router.Context) LogoutInstruction {
	out := a.sessions.Logout(c.Context(), a.Token(c))
	if out.ClearToken {
		a.cookieDel(c, a.cookie.Name)
	}
	return out
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string) {
	c.Cookie(&router.Cookie{
		Name:     a.cookie.Name,
		Value:    val,
		Domain:   a.cookie.Domain,
		Path:     a.cookie.Path,
		Expires:  a.now().Add(time.Duration(a.cookie.MaxAge) * time.Second),
		HTTPOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Domain:   a.cookie.Domain,
		Path:     a.cookie.Path,
		Expires:  a.now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: "Lax",
	})
}

// ErrorResponse is the JSON body sent for failed requests.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the public error fields only.
type ErrorBody struct {
	Code     int    `json:"code"`
	TextCode string `json:"text_code"`
	Message  string `json:"message"`
}

// defaultErrHandler collapses err to its public shape. Details stay in
// the logs.
func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	public := PublicError(err)
	if public == nil {
		public = ErrInternal
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		a.Logger.Info(
			"request rejected",
			"kind", KindOf(err),
			"path", c.Path(),
			"details", print.MaybePrettyJSON(richErr.Metadata),
		)
	} else {
		a.Logger.Error("request failed", "error", err, "path", c.Path())
	}

	return c.JSON(public.Code, ErrorResponse{
		Error: ErrorBody{
			Code:     public.Code,
			TextCode: public.TextCode,
			Message:  public.Message,
		},
	})
}

type sessionResolver struct {
	sessions *SessionManager
}

func (r sessionResolver) Resolve(ctx context.Context, token string) (jwtware.SessionClaims, string, error) {
	result, err := r.sessions.WhoAmI(ctx, token)
	if err != nil {
		return nil, "", err
	}
	renewed := ""
	if result.Renewed() {
		renewed = result.RenewedToken.Token
	}
	return result.Claims, renewed, nil
}
