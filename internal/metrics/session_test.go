package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSessionsTotalIncrements(t *testing.T) {
	SessionsTotal.WithLabelValues("sent").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(SessionsTotal.WithLabelValues("sent")))
}

func TestAuthFailuresIncrements(t *testing.T) {
	before := testutil.ToFloat64(AuthFailures)
	AuthFailures.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AuthFailures))
}

func TestListenerActiveGauge(t *testing.T) {
	ListenerActive.Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(ListenerActive))
	ListenerActive.Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(ListenerActive))
}
