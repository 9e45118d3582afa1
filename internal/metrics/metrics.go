package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the client
type Metrics struct {
	Requests        *prometheus.CounterVec
	RefreshAttempts *prometheus.CounterVec
	Logins          *prometheus.CounterVec
	SessionsEnded   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// New creates and registers all metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secureguard_client_requests_total",
			Help: "Total number of backend requests by status class",
		}, []string{"class"}),
		RefreshAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secureguard_client_token_refresh_total",
			Help: "Total number of access token refresh attempts by outcome",
		}, []string{"outcome"}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secureguard_client_logins_total",
			Help: "Total number of login attempts by outcome",
		}, []string{"outcome"}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "secureguard_client_sessions_ended_total",
			Help: "Total number of sessions ended by reason",
		}, []string{"reason"}),
	}
}

// Default returns the process-wide metrics registered on the default registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// Discard returns metrics registered on a throwaway registry
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// ObserveRequest counts a response by status class ("2xx", "4xx", "network")
func (m *Metrics) ObserveRequest(statusCode int) {
	class := "network"
	if statusCode > 0 {
		class = strconv.Itoa(statusCode/100) + "xx"
	}
	m.Requests.WithLabelValues(class).Inc()
}

func (m *Metrics) ObserveRefresh(ok bool) {
	m.RefreshAttempts.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ObserveLogin(ok bool) {
	m.Logins.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ObserveSessionEnded(reason string) {
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
