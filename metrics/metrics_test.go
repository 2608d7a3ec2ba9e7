package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-session-auth"
)

func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	m := &dto.Metric{}
	if err := cv.WithLabelValues(labels...).Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func getHistogramCount(hv *prometheus.HistogramVec, labels ...string) uint64 {
	m := &dto.Metric{}
	if c, ok := hv.WithLabelValues(labels...).(prometheus.Metric); ok {
		if err := c.Write(m); err != nil {
			return 0
		}
		return m.GetHistogram().GetSampleCount()
	}
	return 0
}

func TestObserveAuthenticate(t *testing.T) {
	o, err := New(nil)
	require.NoError(t, err)

	o.ObserveAuthenticate(auth.KindNone, 10*time.Millisecond)
	o.ObserveAuthenticate(auth.KindNone, 20*time.Millisecond)
	o.ObserveAuthenticate(auth.KindUnauthorized, 5*time.Millisecond)

	assert.Equal(t, 2.0, getCounterValue(o.AuthenticationsTotal, "ok"))
	assert.Equal(t, 1.0, getCounterValue(o.AuthenticationsTotal, "unauthorized"))
	assert.Equal(t, uint64(2), getHistogramCount(o.AuthenticateSeconds, "ok"))
}

func TestObserveRenew(t *testing.T) {
	o, err := New(nil)
	require.NoError(t, err)

	o.ObserveRenew(auth.KindNone, time.Millisecond)
	o.ObserveRenew(auth.KindForbidden, time.Millisecond)

	assert.Equal(t, 1.0, getCounterValue(o.RenewalsTotal, "ok"))
	assert.Equal(t, 1.0, getCounterValue(o.RenewalsTotal, "forbidden"))
	assert.Equal(t, uint64(1), getHistogramCount(o.RenewSeconds, "forbidden"))
}

func TestObserveEvaluate(t *testing.T) {
	o, err := New(nil)
	require.NoError(t, err)

	o.ObserveEvaluate(auth.TokenValid)
	o.ObserveEvaluate(auth.TokenExpired)
	o.ObserveEvaluate(auth.TokenExpired)

	assert.Equal(t, 1.0, getCounterValue(o.EvaluationsTotal, "valid"))
	assert.Equal(t, 2.0, getCounterValue(o.EvaluationsTotal, "expired"))
	assert.Equal(t, 0.0, getCounterValue(o.EvaluationsTotal, "missing"))
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	o, err := New(reg)
	require.NoError(t, err)
	o.ObserveEvaluate(auth.TokenMissing)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "session_auth_evaluations_total")

	_, err = New(reg)
	assert.Error(t, err, "second registration must collide")
	assert.Panics(t, func() { MustNew(reg) })
}
