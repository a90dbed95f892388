package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.UserRegistered("guia")
	m.UserRegistered("guia")
	m.CadasturValidated(OutcomeInvalid)
	m.ObserveRequest("POST", "POST /api/auth/register", 201, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UsersRegistered.WithLabelValues("guia")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CadasturValidations.WithLabelValues(OutcomeInvalid)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "POST /api/auth/register", "201")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPDuration))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.UserRegistered("trekker")
		m.CadasturValidated(OutcomeValid)
		m.ObserveRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
