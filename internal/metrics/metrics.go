// Package metrics holds the Prometheus collectors the service exports.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Validation outcomes.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	UsersRegistered     *prometheus.CounterVec
	CadasturValidations *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UsersRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trekko_users_registered_total",
			Help: "Accounts created, by user type.",
		}, []string{"user_type"}),
		CadasturValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trekko_cadastur_validations_total",
			Help: "CADASTUR validations, by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trekko_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trekko_http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) UserRegistered(userType string) {
	if m == nil {
		return
	}
	m.UsersRegistered.WithLabelValues(userType).Inc()
}

func (m *Metrics) CadasturValidated(outcome string) {
	if m == nil {
		return
	}
	m.CadasturValidations.WithLabelValues(outcome).Inc()
}

// ObserveRequest records one finished HTTP request. route should be the
// matched pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
