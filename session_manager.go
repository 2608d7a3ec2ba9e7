package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// SessionConfig holds the session policy.
type SessionConfig struct {
	// SessionDuration is the absolute ceiling measured from the original
	// authentication time. No renewal is possible past it.
	SessionDuration time.Duration
}

// SessionState names the steps of a request through the session manager.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
	StateLeaseExpired    SessionState = "lease_expired"
	StateRenewing        SessionState = "renewing"
	StateRenewed         SessionState = "renewed"
	StateSessionExpired  SessionState = "session_expired"
	StateRejected        SessionState = "rejected"
)

// IssuedToken is a freshly minted token and its claims.
type IssuedToken struct {
	Token  string
	Claims *SessionClaims
}

// WhoAmIResult is the outcome of WhoAmI. RenewedToken is set when the
// presented token was lease expired and a new one was minted; callers must
// hand it back to the client.
type WhoAmIResult struct {
	Claims       *SessionClaims
	RenewedToken *IssuedToken
	State        SessionState
}

// Username returns the authenticated subject
func (r *WhoAmIResult) Username() string {
	if r == nil || r.Claims == nil {
		return ""
	}
	return r.Claims.Subject()
}

// Renewed reports whether a new token was minted.
func (r *WhoAmIResult) Renewed() bool {
	return r != nil && r.RenewedToken != nil
}

// LogoutInstruction tells the transport to drop the client held token.
// Tokens are not revoked server side and stay valid until their lease ends.
type LogoutInstruction struct {
	ClearToken bool
	Username   string
}

// SessionManager runs authentication, evaluation and renewal. It holds no
// mutable state after construction and is safe for concurrent use.
type SessionManager struct {
	verifier        CredentialVerifier
	roles           RoleProvider
	codec           TokenCodec
	sessionDuration time.Duration
	now             func() time.Time
	logger          Logger
	activitySink    ActivitySink
	observer        Observer
}

// NewSessionManager returns a session manager. Configure it with the With
// methods before sharing it between goroutines.
func NewSessionManager(verifier CredentialVerifier, roles RoleProvider, codec TokenCodec, cfg SessionConfig) *SessionManager {
	return &SessionManager{
		verifier:        verifier,
		roles:           roles,
		codec:           codec,
		sessionDuration: cfg.SessionDuration,
		now:             time.Now,
		logger:          defLogger(),
		activitySink:    noopActivitySink{},
		observer:        noopObserver{},
	}
}

// WithLogger sets the logger
func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	m.logger = normalizeLogger(logger)
	return m
}

// WithClock replaces the wall clock. The codec must share the same clock.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	if now != nil {
		m.now = now
	}
	return m
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (m *SessionManager) WithActivitySink(sink ActivitySink) *SessionManager {
	m.activitySink = normalizeActivitySink(sink)
	return m
}

// WithObserver configures a metrics observer.
func (m *SessionManager) WithObserver(observer Observer) *SessionManager {
	m.observer = normalizeObserver(observer)
	return m
}

// SessionDuration returns the absolute session ceiling
func (m *SessionManager) SessionDuration() time.Duration {
	return m.sessionDuration
}

// Authenticate verifies username and password and mints a token whose
// issued at and lease anchor are both now. It is the only operation that
// starts a new session.
func (m *SessionManager) Authenticate(ctx context.Context, username, password string) (*IssuedToken, error) {
	start := m.now()
	issued, err := m.authenticate(ctx, username, password)
	kind := KindOf(err)
	m.observer.ObserveAuthenticate(kind, m.now().Sub(start))

	if err != nil {
		// the kind is logged, not the reason, so logs do not reveal
		// whether the username exists
		m.logger.Info("authentication rejected", "kind", kind)
		m.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Username:  username,
			State:     StateRejected,
			Kind:      kind,
		})
		return nil, err
	}

	m.logger.Debug("authentication succeeded", "username", username)
	m.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Username:  username,
		State:     StateAuthenticated,
	})
	return issued, nil
}

func (m *SessionManager) authenticate(ctx context.Context, username, password string) (*IssuedToken, error) {
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	verdict, err := m.verifier.Verify(ctx, username, password)
	if err != nil {
		return nil, internalError(err, "failed to verify credentials")
	}

	switch verdict {
	case VerdictOK:
	case VerdictUnknownUser:
		return nil, ErrUserNotFound
	case VerdictBadPassword:
		return nil, ErrInvalidCredentials
	case VerdictDisabled:
		return nil, ErrUserInvalid
	default:
		return nil, internalError(errors.New("unexpected verdict", errors.CategoryInternal), verdict.String())
	}

	now := m.now()
	return m.mint(ctx, username, now, now)
}

// Evaluate classifies token without touching any store. A token whose
// lease is current but whose session window has closed is reported as
// expired, so the follow up renewal fails with a session expired error.
func (m *SessionManager) Evaluate(token string) TokenStatus {
	status := m.codec.Status(token)
	if status == TokenValid {
		if claims, err := m.codec.Decode(token); err == nil && m.sessionElapsed(claims) {
			status = TokenExpired
		}
	}
	m.observer.ObserveEvaluate(status)
	return status
}

// Renew mints a new token for the subject of token. The signature must
// verify; the lease may have passed. The original issued at is kept and
// the roles are read again.
func (m *SessionManager) Renew(ctx context.Context, token string) (*IssuedToken, error) {
	start := m.now()
	issued, claims, err := m.renew(ctx, token)
	kind := KindOf(err)
	m.observer.ObserveRenew(kind, m.now().Sub(start))

	username := ""
	if claims != nil {
		username = claims.Subject()
	}

	if err != nil {
		state := StateRejected
		eventType := ActivityEventRenewFailure
		if HasTextCode(err, TextCodeSessionExpired) {
			state = StateSessionExpired
			eventType = ActivityEventSessionExpired
		}
		m.logger.Info("renewal rejected", "kind", kind, "state", state)
		m.record(ctx, ActivityEvent{
			EventType: eventType,
			Username:  username,
			State:     state,
			Kind:      kind,
		})
		return nil, err
	}

	m.logger.Debug("session renewed", "username", username, "expires", issued.Claims.Expires())
	m.record(ctx, ActivityEvent{
		EventType: ActivityEventRenewSuccess,
		Username:  username,
		State:     StateRenewed,
	})
	return issued, nil
}

func (m *SessionManager) renew(ctx context.Context, token string) (*IssuedToken, *SessionClaims, error) {
	claims, err := m.codec.Inspect(token)
	if err != nil {
		if KindOf(err) == KindUnauthorized {
			return nil, nil, err
		}
		return nil, nil, internalError(err, "failed to inspect token")
	}

	if m.sessionElapsed(claims) {
		return nil, claims, ErrSessionExpired
	}

	subject := claims.Subject()
	valid, err := m.verifier.IsValid(ctx, subject)
	if err != nil {
		return nil, claims, internalError(err, "failed to validate user")
	}
	if !valid {
		return nil, claims, ErrUserInvalid
	}

	issued, err := m.mint(ctx, subject, claims.IssuedAt(), m.now())
	if err != nil {
		return nil, claims, err
	}
	return issued, claims, nil
}

// WhoAmI returns the session behind token. A lease expired token is
// renewed in the same call and the new token is returned in the result.
func (m *SessionManager) WhoAmI(ctx context.Context, token string) (*WhoAmIResult, error) {
	switch m.Evaluate(token) {
	case TokenValid:
		claims, err := m.codec.Decode(token)
		if err != nil {
			return nil, unauthorized(err)
		}
		return &WhoAmIResult{Claims: claims, State: StateAuthenticated}, nil

	case TokenExpired:
		issued, err := m.Renew(ctx, token)
		if err != nil {
			if KindOf(err) == KindInternal {
				return nil, err
			}
			return nil, unauthorized(err)
		}
		return &WhoAmIResult{
			Claims:       issued.Claims,
			RenewedToken: issued,
			State:        StateRenewed,
		}, nil

	default:
		return nil, ErrTokenMissing
	}
}

// Logout returns the instruction to clear the client token. There is no
// revocation list.
func (m *SessionManager) Logout(ctx context.Context, token string) LogoutInstruction {
	out := LogoutInstruction{ClearToken: true}
	if claims, err := m.codec.Inspect(token); err == nil {
		out.Username = claims.Subject()
	}

	m.record(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Username:  out.Username,
		State:     StateUnauthenticated,
	})
	return out
}

func (m *SessionManager) mint(ctx context.Context, subject string, issuedAt, leaseAnchor time.Time) (*IssuedToken, error) {
	roles, err := m.roles.Roles(ctx, subject)
	if err != nil {
		return nil, internalError(err, "failed to read roles")
	}

	token, err := m.codec.Mint(subject, issuedAt, leaseAnchor, roles)
	if err != nil {
		return nil, internalError(err, "failed to mint token")
	}

	claims, err := m.codec.Inspect(token)
	if err != nil {
		return nil, internalError(err, "failed to read minted token")
	}

	return &IssuedToken{Token: token, Claims: claims}, nil
}

func (m *SessionManager) sessionElapsed(claims *SessionClaims) bool {
	return m.now().After(claims.SessionDeadline(m.sessionDuration))
}

func (m *SessionManager) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	if err := m.activitySink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink failed", "event", event.EventType, "error", err)
	}
}

// unauthorized reclassifies err as an authentication failure while
// keeping it as the source.
func unauthorized(err error) error {
	out := errors.New("authentication required", errors.CategoryAuth).
		WithTextCode(TextCodeUnauthorized).
		WithCode(errors.CodeUnauthorized)
	out.Source = err
	return out
}
