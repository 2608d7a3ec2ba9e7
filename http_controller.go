package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts the login, renewal, whoami and logout
// endpoints under the controller path prefix.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Get(controller.path(controller.Routes.Login), controller.LoginShow).
		SetName("sign-in.get")

	app.Post(controller.path(controller.Routes.Login), controller.LoginPost).
		SetName("sign-in.post")

	app.Post(controller.path(controller.Routes.Renew), controller.RenewToken).
		SetName("renew-token.post")

	app.Get(controller.path(controller.Routes.WhoAmI), controller.WhoAmI).
		SetName("whoami.get")

	app.Get(controller.path(controller.Routes.Logout), controller.LogOut).
		SetName("sign-out.get")
	app.Post(controller.path(controller.Routes.Logout), controller.LogOut).
		SetName("sign-out.post")

	return controller
}

type AuthControllerRoutes struct {
	Login  string
	Renew  string
	WhoAmI string
	Logout string
}

type AuthControllerViews struct {
	Login string
}

type AuthController struct {
	Debug        bool
	PathPrefix   string
	Logger       Logger
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Auther       *RouteAuthenticator
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithAuther sets the route authenticator
func WithAuther(auther *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithPathPrefix sets the prefix for every route
func WithPathPrefix(prefix string) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.PathPrefix = strings.TrimSuffix(prefix, "/")
		return c
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

// WithErrorHandler overrides how failures are rendered
func WithErrorHandler(handler router.ErrorHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		PathPrefix: "/auth",
		Logger:     defLogger(),
		Routes: &AuthControllerRoutes{
			Login:  "/login",
			Renew:  "/renew_token",
			WhoAmI: "/whoami",
			Logout: "/logout",
		},
		Views: &AuthControllerViews{
			Login: "login",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.Auther.ErrorHandler
	}

	return c
}

func (a *AuthController) path(route string) string {
	return a.PathPrefix + route
}

// LoginShow renders the login form. The query string is kept in the form
// action so the redirect survives the post.
func (a *AuthController) LoginShow(ctx router.Context) error {
	action := a.path(a.Routes.Login)
	if u, err := url.Parse(ctx.OriginalURL()); err == nil && u.RawQuery != "" {
		action += "?" + u.RawQuery
	}
	return ctx.Render(a.Views.Login, map[string]any{
		"action": action,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() *errors.Error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&r,
			validation.Field(&r.Username, validation.Required, validation.Length(1, 255)),
			validation.Field(&r.Password, validation.Required),
		)
	}, "Invalid login request payload")
}

// ValidateRedirect checks that redirect is an absolute URL with a scheme.
func ValidateRedirect(redirect string) error {
	err := validation.Validate(redirect, validation.By(func(value any) error {
		s, _ := value.(string)
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" {
			return ErrInvalidRedirect
		}
		return nil
	}))
	if err != nil {
		return ErrInvalidRedirect
	}
	return nil
}

// LoginResponse is returned when the login has no redirect.
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	redirect := ctx.Query("redirect")
	if redirect != "" {
		if err := ValidateRedirect(redirect); err != nil {
			return a.ErrorHandler(ctx, err)
		}
	}

	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Debug("login parse payload", "error", err)
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	issued, err := a.Auther.Login(ctx, payload.Username, payload.Password)
	if err != nil {
		if redirect != "" && KindOf(err) != KindInternal {
			if referer := string(ctx.Referer()); referer != "" {
				return ctx.Redirect(referer, http.StatusFound)
			}
		}
		return a.ErrorHandler(ctx, err)
	}

	if redirect != "" {
		return ctx.Redirect(redirect, http.StatusFound)
	}

	return ctx.JSON(http.StatusOK, LoginResponse{
		Token:     issued.Token,
		Username:  issued.Claims.Subject(),
		Roles:     issued.Claims.Roles(),
		IssuedAt:  issued.Claims.IssuedAt(),
		ExpiresAt: issued.Claims.Expires(),
	})
}

// RenewToken answers 204 with the new cookie.
func (a *AuthController) RenewToken(ctx router.Context) error {
	if _, err := a.Auther.Renew(ctx); err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}

// WhoAmIResponse describes the current session
type WhoAmIResponse struct {
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Renewed   bool      `json:"renewed"`
}

func (a *AuthController) WhoAmI(ctx router.Context) error {
	result, err := a.Auther.WhoAmI(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}
	return ctx.JSON(http.StatusOK, WhoAmIResponse{
		Username:  result.Username(),
		Roles:     result.Claims.Roles(),
		IssuedAt:  result.Claims.IssuedAt(),
		ExpiresAt: result.Claims.Expires(),
		Renewed:   result.Renewed(),
	})
}

// LogOut clears the cookie and redirects when a valid redirect is given.
func (a *AuthController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)

	if redirect := ctx.Query("redirect"); redirect != "" {
		if err := ValidateRedirect(redirect); err != nil {
			return a.ErrorHandler(ctx, err)
		}
		return ctx.Redirect(redirect, http.StatusFound)
	}
	return ctx.Status(http.StatusNoContent).SendString("")
}
