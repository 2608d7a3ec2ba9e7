package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeBadRequest         = "BAD_REQUEST"
	TextCodeUnauthorized       = "UNAUTHORIZED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeConflict           = "CONFLICT"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeInternal           = "INTERNAL"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeUserInvalid        = "USER_INVALID"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenMissing       = "TOKEN_MISSING"
	TextCodeCredentialExists   = "CREDENTIAL_EXISTS"
	TextCodeCredentialNotFound = "CREDENTIAL_NOT_FOUND"
	TextCodeRoleNotFound       = "ROLE_NOT_FOUND"
	TextCodeInvalidRedirect    = "INVALID_REDIRECT"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeMissingCredentials = "MISSING_CREDENTIALS"
)

// Public errors. These are the only shapes a client ever sees, one per
// failure kind.
var (
	ErrBadRequest = goerrors.New("bad request", goerrors.CategoryBadInput).
			WithTextCode(TextCodeBadRequest).
			WithCode(goerrors.CodeBadRequest)

	ErrUnauthorized = goerrors.New("authentication required", goerrors.CategoryAuth).
			WithTextCode(TextCodeUnauthorized).
			WithCode(goerrors.CodeUnauthorized)

	ErrForbidden = goerrors.New("access forbidden", goerrors.CategoryAuthz).
			WithTextCode(TextCodeForbidden).
			WithCode(goerrors.CodeForbidden)

	ErrConflict = goerrors.New("resource already exists", goerrors.CategoryConflict).
			WithTextCode(TextCodeConflict).
			WithCode(goerrors.CodeConflict)

	ErrNotFound = goerrors.New("resource not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeNotFound).
			WithCode(goerrors.CodeNotFound)

	ErrInternal = goerrors.New("internal error", goerrors.CategoryInternal).
			WithTextCode(TextCodeInternal).
			WithCode(goerrors.CodeInternal)
)

// Session manager errors.
var (
	// ErrUserNotFound is returned when no credential exists for a username.
	ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryAuth).
			WithTextCode(TextCodeUserNotFound).
			WithCode(goerrors.CodeUnauthorized)

	// ErrInvalidCredentials is returned when the password does not match.
	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	// ErrUserInvalid is returned for a known user whose account is not active.
	ErrUserInvalid = goerrors.New("user is not active", goerrors.CategoryAuthz).
			WithTextCode(TextCodeUserInvalid).
			WithCode(goerrors.CodeForbidden)

	// ErrSessionExpired is returned when the absolute session window elapsed.
	ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
				WithTextCode(TextCodeSessionExpired).
				WithCode(goerrors.CodeUnauthorized)

	// ErrTokenExpired is returned when the token lease has passed.
	ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(goerrors.CodeUnauthorized)

	// ErrTokenMalformed covers bad signatures and structurally invalid tokens.
	ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
				WithTextCode(TextCodeTokenMalformed).
				WithCode(goerrors.CodeUnauthorized)

	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = goerrors.New("username and password are required", goerrors.CategoryBadInput).
				WithTextCode(TextCodeMissingCredentials).
				WithCode(goerrors.CodeBadRequest)

	// ErrTokenMissing is returned when a request carries no token.
	ErrTokenMissing = goerrors.New("token is missing", goerrors.CategoryAuth).
			WithTextCode(TextCodeTokenMissing).
			WithCode(goerrors.CodeUnauthorized)
)

// Store errors.
var (
	ErrCredentialExists = goerrors.New("credential already exists", goerrors.CategoryConflict).
				WithTextCode(TextCodeCredentialExists).
				WithCode(goerrors.CodeConflict)

	ErrCredentialNotFound = goerrors.New("credential not found", goerrors.CategoryNotFound).
				WithTextCode(TextCodeCredentialNotFound).
				WithCode(goerrors.CodeNotFound)

	ErrRoleNotFound = goerrors.New("role not found", goerrors.CategoryNotFound).
			WithTextCode(TextCodeRoleNotFound).
			WithCode(goerrors.CodeNotFound)

	ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
				WithTextCode(TextCodeEmptyPassword).
				WithCode(goerrors.CodeBadRequest)

	ErrInvalidRedirect = goerrors.New("redirect url must include a scheme", goerrors.CategoryBadInput).
				WithTextCode(TextCodeInvalidRedirect).
				WithCode(goerrors.CodeBadRequest)
)

// ErrorKind is the failure taxonomy surfaced to callers.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindBadRequest   ErrorKind = "bad_request"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindInternal     ErrorKind = "internal"
)

// KindOf classifies err. Errors that are not *goerrors.Error are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return KindInternal
	}

	switch richErr.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return KindBadRequest
	case goerrors.CategoryAuth:
		return KindUnauthorized
	case goerrors.CategoryAuthz:
		return KindForbidden
	case goerrors.CategoryConflict:
		return KindConflict
	case goerrors.CategoryNotFound:
		return KindNotFound
	default:
		return KindInternal
	}
}

// PublicError maps err to the client facing error for its kind. Unknown
// user and wrong password both come out as ErrUnauthorized.
func PublicError(err error) *goerrors.Error {
	switch KindOf(err) {
	case KindNone:
		return nil
	case KindBadRequest:
		return ErrBadRequest
	case KindUnauthorized:
		return ErrUnauthorized
	case KindForbidden:
		return ErrForbidden
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	default:
		return ErrInternal
	}
}

// HasTextCode reports whether err carries the given text code anywhere
// in its chain.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			return false
		}
		if richErr.TextCode == code {
			return true
		}
		err = richErr.Source
	}
	return false
}

// internalError wraps infrastructure failures so raw driver errors never
// leave the package unclassified.
func internalError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if HasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
