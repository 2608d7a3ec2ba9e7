package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/memory"
)

var t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// fakeClock is a settable clock. Times are kept second aligned since JWT
// numeric dates drop sub second precision.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// MockVerifier implements auth.CredentialVerifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, username, password string) (auth.Verdict, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(auth.Verdict), args.Error(1)
}

func (m *MockVerifier) IsValid(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

// MockRoleProvider implements auth.RoleProvider
type MockRoleProvider struct {
	mock.Mock
}

func (m *MockRoleProvider) Roles(ctx context.Context, user string) ([]string, error) {
	args := m.Called(ctx, user)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

type fixture struct {
	clock    *fakeClock
	creds    *memory.Credentials
	authz    *memory.Authorization
	codec    *auth.JWTCodec
	sessions *auth.SessionManager
	sink     *recordingSink
}

// newFixture wires the session manager over memory stores with the given
// lease and session durations. alice/s3cret is active and holds "read".
func newFixture(t *testing.T, lease, session time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := newFakeClock(t0)
	creds := memory.NewCredentials(auth.SHA512Hasher{})
	authz := memory.NewAuthorization(creds)

	_, err := creds.Create(ctx, "alice", "s3cret", auth.CredentialActive)
	require.NoError(t, err)
	_, err = authz.AddRole(ctx, "read", "")
	require.NoError(t, err)
	_, err = authz.AddRole(ctx, "write", "")
	require.NoError(t, err)
	_, err = authz.Grant(ctx, "alice", "read")
	require.NoError(t, err)

	codec := auth.NewJWTCodec(auth.CodecConfig{
		SigningKey:    []byte(testSigningKey),
		Issuer:        "test-issuer",
		LeaseDuration: lease,
	}, auth.WithCodecClock(clock.Now), auth.WithCodecLogger(auth.NopLogger()))

	sink := &recordingSink{}
	sessions := auth.NewSessionManager(
		auth.NewStoreVerifier(creds, auth.SHA512Hasher{}),
		authz,
		codec,
		auth.SessionConfig{SessionDuration: session},
	).
		WithClock(clock.Now).
		WithLogger(auth.NopLogger()).
		WithActivitySink(sink)

	return &fixture{
		clock:    clock,
		creds:    creds,
		authz:    authz,
		codec:    codec,
		sessions: sessions,
		sink:     sink,
	}
}

func (f *fixture) disable(t *testing.T, username string) {
	t.Helper()
	ctx := context.Background()
	cred, err := f.creds.Read(ctx, username)
	require.NoError(t, err)
	cred.State = auth.CredentialDisabled
	ok, err := f.creds.Update(ctx, cred)
	require.NoError(t, err)
	require.True(t, ok)
}
