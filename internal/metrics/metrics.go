package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the rest of the service reports to
type Recorder interface {
	RecordTokenIssued(grantType string)
	RecordTokenFailure(grantType, code string)
	RecordLogin(connection string, success bool)
	RecordLoginSessionState(state string)
	RecordAuditDropped()
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	TokensIssuedTotal      *prometheus.CounterVec
	TokenFailuresTotal     *prometheus.CounterVec
	LoginsTotal            *prometheus.CounterVec
	LoginSessionStateTotal *prometheus.CounterVec
	AuditDroppedTotal      prometheus.Counter
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		TokensIssuedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_tokens_issued_total",
				Help: "Total number of token responses issued",
			},
			[]string{"grant_type"},
		),
		TokenFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_token_failures_total",
				Help: "Total number of failed token requests",
			},
			[]string{"grant_type", "error"},
		),
		LoginsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_logins_total",
				Help: "Total number of interactive login attempts",
			},
			[]string{"connection", "result"}, // result: success, failure
		),
		LoginSessionStateTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idp_login_session_transitions_total",
				Help: "Login session transitions by target state",
			},
			[]string{"state"},
		),
		AuditDroppedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "idp_audit_dropped_total",
				Help: "Audit entries dropped because the buffer was full",
			},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordTokenIssued(grantType string) {
	m.TokensIssuedTotal.WithLabelValues(grantType).Inc()
}

func (m *Metrics) RecordTokenFailure(grantType, code string) {
	m.TokenFailuresTotal.WithLabelValues(grantType, code).Inc()
}

func (m *Metrics) RecordLogin(connection string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.LoginsTotal.WithLabelValues(connection, result).Inc()
}

func (m *Metrics) RecordLoginSessionState(state string) {
	m.LoginSessionStateTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordAuditDropped() {
	m.AuditDroppedTotal.Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// NoopMetrics discards everything. Used in tests and when metrics are disabled.
type NoopMetrics struct{}

var _ Recorder = NoopMetrics{}

func (NoopMetrics) RecordTokenIssued(string)                              {}
func (NoopMetrics) RecordTokenFailure(string, string)                     {}
func (NoopMetrics) RecordLogin(string, bool)                              {}
func (NoopMetrics) RecordLoginSessionState(string)                        {}
func (NoopMetrics) RecordAuditDropped()                                   {}
func (NoopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
