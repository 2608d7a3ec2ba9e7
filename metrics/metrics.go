// Package metrics exposes session manager activity as Prometheus metrics.
//
// Metric naming follows Prometheus conventions:
//   - session_auth_ prefix for all metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	auth "github.com/goliatone/go-session-auth"
)

// outcomeOK labels operations that returned no error.
const outcomeOK = "ok"

// Observer implements auth.Observer on a set of Prometheus collectors.
type Observer struct {
	AuthenticationsTotal *prometheus.CounterVec
	AuthenticateSeconds  *prometheus.HistogramVec
	RenewalsTotal        *prometheus.CounterVec
	RenewSeconds         *prometheus.HistogramVec
	EvaluationsTotal     *prometheus.CounterVec
}

var _ auth.Observer = (*Observer)(nil)

// New creates the collectors and registers them with reg. A nil reg
// skips registration.
func New(reg prometheus.Registerer) (*Observer, error) {
	o := &Observer{
		AuthenticationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_auth_authentications_total",
				Help: "Total authentication attempts by outcome.",
			},
			[]string{"outcome"},
		),
		AuthenticateSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "session_auth_authenticate_duration_seconds",
				Help:    "Duration of authentication attempts in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"outcome"},
		),
		RenewalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_auth_renewals_total",
				Help: "Total token renewal attempts by outcome.",
			},
			[]string{"outcome"},
		),
		RenewSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "session_auth_renew_duration_seconds",
				Help:    "Duration of token renewals in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"outcome"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_auth_evaluations_total",
				Help: "Total token evaluations by status.",
			},
			[]string{"status"},
		),
	}

	if reg == nil {
		return o, nil
	}

	for _, c := range o.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg prometheus.Registerer) *Observer {
	o, err := New(reg)
	if err != nil {
		panic(err)
	}
	return o
}

func (o *Observer) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.AuthenticationsTotal,
		o.AuthenticateSeconds,
		o.RenewalsTotal,
		o.RenewSeconds,
		o.EvaluationsTotal,
	}
}

// ObserveAuthenticate records one Authenticate call.
func (o *Observer) ObserveAuthenticate(kind auth.ErrorKind, d time.Duration) {
	outcome := outcomeLabel(kind)
	o.AuthenticationsTotal.WithLabelValues(outcome).Inc()
	o.AuthenticateSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveRenew records one Renew call.
func (o *Observer) ObserveRenew(kind auth.ErrorKind, d time.Duration) {
	outcome := outcomeLabel(kind)
	o.RenewalsTotal.WithLabelValues(outcome).Inc()
	o.RenewSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveEvaluate records one Evaluate call.
func (o *Observer) ObserveEvaluate(status auth.TokenStatus) {
	o.EvaluationsTotal.WithLabelValues(status.String()).Inc()
}

func outcomeLabel(kind auth.ErrorKind) string {
	if kind == auth.KindNone {
		return outcomeOK
	}
	return string(kind)
}
