package auth

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
)

// EnvPrefix is prepended to every configuration variable name.
const EnvPrefix = "SESSION_AUTH_"

// Config holds every setting the server consumes. It is read once at start
// and passed by value into constructors.
type Config struct {
	SigningKey      string        `env:"SIGNING_KEY"`
	Issuer          string        `env:"ISSUER" envDefault:"go-session-auth"`
	LeaseDuration   time.Duration `env:"LEASE_DURATION" envDefault:"15m"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"12h"`

	CookieName   string `env:"COOKIE_NAME" envDefault:"session_token"`
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookiePath   string `env:"COOKIE_PATH" envDefault:"/"`
	CookieMaxAge int    `env:"COOKIE_MAX_AGE" envDefault:"43200"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"true"`

	TokenLookup string `env:"TOKEN_LOOKUP" envDefault:"header:Authorization,cookie:session_token"`
	AuthScheme  string `env:"AUTH_SCHEME" envDefault:"Bearer"`
	PathPrefix  string `env:"PATH_PREFIX" envDefault:"/auth"`
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":10000"`

	DatabaseDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DB_DSN" envDefault:"file:auth.db?cache=shared"`

	PasswordScheme    string `env:"PASSWORD_SCHEME" envDefault:"argon2id"`
	SeedAdminPassword string `env:"SEED_ADMIN_PASSWORD"`

	LDAPURL          string `env:"LDAP_URL"`
	LDAPBindDN       string `env:"LDAP_BIND_DN"`
	LDAPBindPassword string `env:"LDAP_BIND_PASSWORD"`
	LDAPBaseDN       string `env:"LDAP_BASE_DN"`
}

// ParseConfig reads Config from environment variables prefixed with
// EnvPrefix without validating it. Admin tooling that never signs tokens
// uses it directly.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadConfig is ParseConfig followed by Validate.
func LoadConfig() (Config, error) {
	cfg, err := ParseConfig()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate will run validation rules
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.LeaseDuration, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.SessionDuration,
			validation.Required,
			validation.By(durationAtLeast(c.LeaseDuration, "session duration must not be shorter than lease duration")),
		),
		validation.Field(&c.CookieName, validation.Required),
		validation.Field(&c.TokenLookup, validation.Required),
		validation.Field(&c.DatabaseDriver, validation.In("sqlite", "postgres", "mysql", "memory")),
		validation.Field(&c.PasswordScheme, validation.In(SchemeArgon2id, SchemeBcrypt, SchemeSHA512)),
	)
}

// CodecConfig returns the token codec settings.
func (c Config) CodecConfig() CodecConfig {
	return CodecConfig{
		SigningKey:    []byte(c.SigningKey),
		Issuer:        c.Issuer,
		LeaseDuration: c.LeaseDuration,
	}
}

// SessionConfig returns the session manager settings.
func (c Config) SessionConfig() SessionConfig {
	return SessionConfig{
		SessionDuration: c.SessionDuration,
	}
}

// CookieConfig returns the cookie settings used by the HTTP layer.
func (c Config) CookieConfig() CookieConfig {
	return CookieConfig{
		Name:   c.CookieName,
		Domain: c.CookieDomain,
		Path:   c.CookiePath,
		MaxAge: c.CookieMaxAge,
		Secure: c.CookieSecure,
	}
}

func durationAtLeast(min time.Duration, msg string) validation.RuleFunc {
	return func(value any) error {
		d, ok := value.(time.Duration)
		if !ok {
			return fmt.Errorf("expected duration")
		}
		if d < min {
			return fmt.Errorf("%s", msg)
		}
		return nil
	}
}
