package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventRenewSuccess   ActivityEventType = "auth.renew.success"
	ActivityEventRenewFailure   ActivityEventType = "auth.renew.failure"
	ActivityEventSessionExpired ActivityEventType = "auth.session.expired"
	ActivityEventLogout         ActivityEventType = "auth.logout"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Username   string
	State      SessionState
	Kind       ErrorKind
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// Observer receives session outcomes for metrics. See the metrics package.
type Observer interface {
	ObserveAuthenticate(kind ErrorKind, duration time.Duration)
	ObserveRenew(kind ErrorKind, duration time.Duration)
	ObserveEvaluate(status TokenStatus)
}

type noopObserver struct{}

func (noopObserver) ObserveAuthenticate(ErrorKind, time.Duration) {}
func (noopObserver) ObserveRenew(ErrorKind, time.Duration)        {}
func (noopObserver) ObserveEvaluate(TokenStatus)                  {}

func normalizeObserver(o Observer) Observer {
	if o == nil {
		return noopObserver{}
	}
	return o
}
