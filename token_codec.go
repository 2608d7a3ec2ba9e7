package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenStatus is the non failing classification of a presented token.
type TokenStatus int

const (
	// TokenMissing covers absent and structurally invalid tokens.
	TokenMissing TokenStatus = iota
	// TokenExpired means the signature verifies but the lease has passed.
	TokenExpired
	// TokenValid means the signature verifies and the lease is current.
	TokenValid
)

func (s TokenStatus) String() string {
	switch s {
	case TokenExpired:
		return "expired"
	case TokenValid:
		return "valid"
	default:
		return "missing"
	}
}

// CodecConfig is the fixed configuration of a JWTCodec.
type CodecConfig struct {
	SigningKey    []byte
	Issuer        string
	LeaseDuration time.Duration
}

// CodecOption configures a JWTCodec
type CodecOption func(*JWTCodec)

// WithCodecClock replaces the wall clock used to check lease expiry.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *JWTCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCodecLogger sets the codec logger
func WithCodecLogger(logger Logger) CodecOption {
	return func(c *JWTCodec) {
		c.logger = normalizeLogger(logger)
	}
}

// JWTCodec signs session claims with HMAC-SHA256.
type JWTCodec struct {
	signingKey []byte
	issuer     string
	lease      time.Duration
	now        func() time.Time
	logger     Logger
}

var _ TokenCodec = (*JWTCodec)(nil)

// NewJWTCodec returns a codec for cfg.
func NewJWTCodec(cfg CodecConfig, opts ...CodecOption) *JWTCodec {
	c := &JWTCodec{
		signingKey: cfg.SigningKey,
		issuer:     cfg.Issuer,
		lease:      cfg.LeaseDuration,
		now:        time.Now,
		logger:     defLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// LeaseDuration returns the configured lease
func (c *JWTCodec) LeaseDuration() time.Duration {
	return c.lease
}

// Mint signs a token for subject. The lease runs from leaseAnchor while
// issuedAt is embedded as is.
func (c *JWTCodec) Mint(subject string, issuedAt, leaseAnchor time.Time, roles []string) (string, error) {
	if subject == "" {
		return "", errors.New("subject must not be empty", errors.CategoryBadInput).
			WithTextCode(TextCodeBadRequest).
			WithCode(errors.CodeBadRequest)
	}

	if roles == nil {
		roles = []string{}
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(leaseAnchor.Add(c.lease)),
		},
		UserRoles: roles,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT").
			WithTextCode(TextCodeInternal)
	}
	return signed, nil
}

// Decode verifies signature, issuer and lease expiry. The lease end is
// inclusive: a token is still valid at exactly its exp instant.
func (c *JWTCodec) Decode(tokenString string) (*SessionClaims, error) {
	claims, err := c.Inspect(tokenString)
	if err != nil {
		return nil, err
	}
	if c.now().After(claims.Expires()) {
		return nil, ErrTokenExpired
	}
	return claims, nil
}

// Inspect verifies signature and issuer but not the lease. Only the
// renewal path may use it.
func (c *JWTCodec) Inspect(tokenString string) (*SessionClaims, error) {
	claims, err := c.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrTokenMalformed
	}
	if claims.RegisteredClaims.IssuedAt == nil || claims.RegisteredClaims.ExpiresAt == nil {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// Status classifies tokenString without returning an error.
func (c *JWTCodec) Status(tokenString string) TokenStatus {
	if tokenString == "" {
		return TokenMissing
	}
	_, err := c.Decode(tokenString)
	switch {
	case err == nil:
		return TokenValid
	case IsTokenExpiredError(err):
		return TokenExpired
	default:
		return TokenMissing
	}
}

func (c *JWTCodec) parse(tokenString string, opts ...jwt.ParserOption) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenMissing
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("JWTCodec encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, opts...)

	if err != nil {
		c.logger.Debug("JWTCodec rejected token", "error", err)
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
